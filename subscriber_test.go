package tradewire

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainChannel implements Channel without topic filter support.
type plainChannel struct{}

func (plainChannel) Open(ctx context.Context) error { return nil }

func (plainChannel) Close() error { return nil }

func (plainChannel) Send(f Frames) error { return nil }

func (plainChannel) IsOpen() bool { return false }

func (plainChannel) OnFrames(fn func(Frames) error) {}

func newTestSubscriber(t *testing.T) (*Subscriber, *mockChannel, *captureLogger) {
	t.Helper()

	channel := newMockChannel()
	logger := &captureLogger{}

	sub, err := NewSubscriber("S-001", "localhost:5556",
		ChannelOption(channel),
		LoggerOption(logger),
	)
	require.NoError(t, err)

	return sub, channel, logger
}

// feedFrames builds the wire frame group for one feed message.
func feedFrames(t *testing.T, topic string, payload []byte) Frames {
	t.Helper()

	f, err := NewFrameCodec(SnappyCompressor{}).EncodeMessage(topic, payload)
	require.NoError(t, err)
	return f
}

func TestNewSubscriber_RejectsUnfilterableChannel(t *testing.T) {
	_, err := NewSubscriber("S-001", "localhost:5556", ChannelOption(plainChannel{}))
	assert.ErrorIs(t, err, ErrChannelNotFilterable)
}

func TestSubscriber_AlwaysConnected(t *testing.T) {
	sub, channel, _ := newTestSubscriber(t)

	assert.True(t, sub.IsConnected())
	require.NoError(t, sub.Connect(context.Background()))
	assert.True(t, channel.IsOpen())
	require.NoError(t, sub.Disconnect())
	assert.False(t, channel.IsOpen())
	assert.True(t, sub.IsConnected())
}

func TestSubscriber_SubscribeUnsubscribe_RoundTrip(t *testing.T) {
	sub, _, _ := newTestSubscriber(t)

	before := sub.Topics()
	require.NoError(t, sub.Subscribe("orders"))
	assert.Contains(t, sub.Topics(), "orders")
	require.NoError(t, sub.Unsubscribe("orders"))
	assert.ElementsMatch(t, before, sub.Topics())
}

func TestSubscriber_EmptyTopic(t *testing.T) {
	sub, _, _ := newTestSubscriber(t)

	assert.ErrorIs(t, sub.Subscribe(""), ErrEmptyTopic)
	assert.ErrorIs(t, sub.Unsubscribe(""), ErrEmptyTopic)
}

func TestSubscriber_Dispatch(t *testing.T) {
	sub, channel, _ := newTestSubscriber(t)

	var mu sync.Mutex
	var gotTopic string
	var gotPayload []byte
	sub.RegisterHandler(func(topic string, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		gotTopic = topic
		gotPayload = payload
	})

	require.NoError(t, channel.deliver(feedFrames(t, "orders.filled", []byte(`{"qty":100}`))))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "orders.filled", gotTopic)
	assert.Equal(t, []byte(`{"qty":100}`), gotPayload)
	assert.Equal(t, int64(1), sub.ReceivedCount())
}

func TestSubscriber_DefaultHandlerWarns(t *testing.T) {
	sub, channel, logger := newTestSubscriber(t)

	require.NoError(t, channel.deliver(feedFrames(t, "trades", []byte("tick"))))

	assert.True(t, logger.has("warn", "no handler registered for topic"))
	assert.Equal(t, int64(1), sub.ReceivedCount())
}

func TestSubscriber_UndecodableFrames(t *testing.T) {
	sub, channel, logger := newTestSubscriber(t)

	require.NoError(t, channel.deliver(Frames{[]byte("orders"), []byte("1")}))

	assert.True(t, logger.has("error", "dropping undecodable frame group"))
	assert.Equal(t, int64(1), sub.ReceivedCount())
}
