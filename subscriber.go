package tradewire

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Subscriber errors.
var (
	// ErrEmptyTopic is returned when subscribing or unsubscribing an empty
	// topic string.
	ErrEmptyTopic = errors.New("topic must not be empty")
	// ErrChannelNotFilterable is returned when the injected channel cannot
	// filter by topic.
	ErrChannelNotFilterable = errors.New("channel does not support topic filters")
)

// TopicHandler receives inbound topic/payload pairs. It runs on the
// channel's read context.
type TopicHandler func(topic string, payload []byte)

// Subscriber is the receive-only endpoint for a topic-filtered feed. It has
// no handshake and no keep-alive, so IsConnected always reports true; the
// underlying channel state remains observable through the channel itself.
type Subscriber struct {
	endpoint
	opts    options
	filters TopicFilterer

	mu      sync.Mutex
	handler TopicHandler

	receivedCount atomic.Int64
}

// NewSubscriber creates a subscriber for the given identity and feed
// address. A default handler is installed at construction: it logs a warning
// for every delivery until RegisterHandler installs a real one, so silent
// message loss never occurs.
func NewSubscriber(clientID, addr string, opt ...Option) (*Subscriber, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	base, err := newEndpoint(clientID, addr, opts)
	if err != nil {
		return nil, err
	}

	filters, ok := base.channel.(TopicFilterer)
	if !ok {
		return nil, ErrChannelNotFilterable
	}

	s := &Subscriber{
		endpoint: base,
		opts:     opts,
		filters:  filters,
	}
	s.handler = func(topic string, payload []byte) {
		s.logger.Warn("no handler registered for topic",
			"client_id", s.clientID, "topic", topic, "payload_size", len(payload))
	}
	s.channel.OnFrames(s.handleFrames)

	return s, nil
}

// IsConnected always reports true: the subscriber has no handshake and no
// keep-alive in this core.
func (s *Subscriber) IsConnected() bool {
	return true
}

// Connect opens the underlying channel.
func (s *Subscriber) Connect(ctx context.Context) error {
	return s.connectChannel(ctx)
}

// Disconnect closes the underlying channel.
func (s *Subscriber) Disconnect() error {
	return s.disconnectChannel()
}

// Subscribe installs a topic filter at the channel level. Matching is by
// prefix, so subscribing "orders" admits "orders.filled" as well.
func (s *Subscriber) Subscribe(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	s.filters.SubscribeTopic(topic)
	s.logger.Info("subscribed", "client_id", s.clientID, "topic", topic)
	return nil
}

// Unsubscribe removes a topic filter.
func (s *Subscriber) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	s.filters.UnsubscribeTopic(topic)
	s.logger.Info("unsubscribed", "client_id", s.clientID, "topic", topic)
	return nil
}

// Topics returns the currently subscribed topic filters.
func (s *Subscriber) Topics() []string {
	return s.filters.TopicFilters()
}

// RegisterHandler installs the topic handler, replacing the previous one.
// Replacement is logged, not an error.
func (s *Subscriber) RegisterHandler(handler TopicHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()

	s.logger.Info("handler replaced", "client_id", s.clientID)
}

// ReceivedCount returns the number of frame groups received.
func (s *Subscriber) ReceivedCount() int64 {
	return s.receivedCount.Load()
}

// handleFrames processes one inbound frame group: the first frame is the
// topic, the second the declared payload size, the third the compressed
// payload. Undecodable groups are dropped with an error log.
func (s *Subscriber) handleFrames(f Frames) error {
	s.receivedCount.Add(1)

	topic, declaredSize, payload, err := s.codec.DecodeMessage(f)
	if err != nil {
		s.logger.Error("dropping undecodable frame group", "client_id", s.clientID, "error", err)
		return nil
	}
	s.logger.Debug("feed message", "topic", topic, "declared_size", declaredSize)

	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	handler(topic, payload)
	return nil
}
