package tradewire

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint_Accessors(t *testing.T) {
	client, _, _, _ := newTestClient(t)

	assert.Equal(t, "C-001", client.ClientID())
	assert.Equal(t, "localhost:5555", client.Addr())
}

func TestEndpoint_ChannelGuards(t *testing.T) {
	client, channel, _, _ := newTestClient(t)

	require.NoError(t, client.connectChannel(context.Background()))
	require.NoError(t, client.connectChannel(context.Background()))
	assert.True(t, channel.IsOpen())

	require.NoError(t, client.disconnectChannel())
	require.NoError(t, client.disconnectChannel())
	assert.False(t, channel.IsOpen())
}

// sessionPeer speaks the server end of the handshake protocol over real TCP:
// Connect gets a Connected reply, Request gets an echoing Response, both as
// Response-tagged envelopes.
func sessionPeer(t *testing.T) *testPeer {
	t.Helper()

	codec := NewFrameCodec(SnappyCompressor{})

	return newTestPeer(t, func(conn net.Conn) {
		reader := bufio.NewReader(conn)
		for {
			frames, err := readFrames(reader)
			if err != nil {
				return
			}

			_, _, payload, err := codec.DecodeMessage(frames)
			if err != nil {
				return
			}
			msg, err := JSONDeserializer{}.Deserialize(payload)
			if err != nil {
				return
			}

			var reply *Message
			switch msg.Type {
			case MessageTypeConnect:
				reply = &Message{
					ID:            uuid.New(),
					Type:          MessageTypeConnected,
					Timestamp:     time.Now(),
					CorrelationID: msg.ID,
					SessionID:     msg.SessionID,
					Text:          "session established",
				}
			case MessageTypeDisconnect:
				reply = &Message{
					ID:            uuid.New(),
					Type:          MessageTypeDisconnected,
					Timestamp:     time.Now(),
					CorrelationID: msg.ID,
					Text:          "session closed",
				}
			case MessageTypeRequest:
				reply = &Message{
					ID:            uuid.New(),
					Type:          MessageTypeResponse,
					Timestamp:     time.Now(),
					CorrelationID: msg.ID,
					Payload:       msg.Payload,
				}
			default:
				continue
			}

			data, err := JSONSerializer{}.Serialize(reply)
			if err != nil {
				return
			}
			out, err := codec.EncodeMessage(string(MessageTypeResponse), data)
			if err != nil {
				return
			}
			var buf bytes.Buffer
			if err := writeFrames(&buf, out); err != nil {
				return
			}
			if _, err := conn.Write(buf.Bytes()); err != nil {
				return
			}
		}
	})
}

func TestEndToEnd_SessionAndRequest(t *testing.T) {
	peer := sessionPeer(t)

	logger := &captureLogger{}
	client, err := NewClient("C-001", peer.addr(), LoggerOption(logger))
	require.NoError(t, err)

	handler := &recordingHandler{}
	client.RegisterHandler(handler)

	require.NoError(t, client.Connect(context.Background()))
	require.Eventually(t, client.IsConnected, time.Second, 5*time.Millisecond)
	assert.True(t, logger.has("info", "connected"))

	requestID, err := client.SendRequest([]byte(`{"symbol":"EURUSD"}`))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return handler.replyCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, requestID, handler.reply(0).CorrelationID)

	require.NoError(t, client.Disconnect())
	require.Eventually(t, func() bool {
		return !client.IsConnected()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, client.registry.size())
}
