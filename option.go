package tradewire

import (
	"time"

	"github.com/benbjohnson/clock"
)

// ErrorAction defines the action to take when a channel error occurs.
type ErrorAction int

const (
	// Disconnect closes the channel when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and keeps the channel open.
	Continue
)

// options holds the configuration shared by clients and their channels.
type options struct {
	logger       Logger
	clk          clock.Clock
	idGenerator  IDGenerator
	compressor   Compressor
	serializer   Serializer
	deserializer Deserializer
	channel      Channel

	// onError is called when a channel read/write error occurs.
	// Returns Disconnect to close the channel, Continue to suppress the error.
	onError func(error) ErrorAction

	bufferSize          int           // size of the channel send buffer
	maxFrameLength      int           // maximum size of a single frame group
	idleTimeout         time.Duration // read/write deadline base, 0 disables deadlines
	handshakeCheckDelay time.Duration // delay before the handshake check fires
}

// Option is a function that configures client options.
type Option func(*options)

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// ClockOption returns an Option that sets the clock used for message
// timestamps and handshake check timers. Tests inject a mock clock here.
func ClockOption(clk clock.Clock) Option {
	return func(o *options) {
		o.clk = clk
	}
}

// IDGeneratorOption returns an Option that sets the message id generator.
func IDGeneratorOption(g IDGenerator) Option {
	return func(o *options) {
		o.idGenerator = g
	}
}

// CompressorOption returns an Option that sets the payload compressor.
// The same algorithm is applied on send and receive.
func CompressorOption(c Compressor) Option {
	return func(o *options) {
		o.compressor = c
	}
}

// SerializerOption returns an Option that sets the outgoing message serializer.
func SerializerOption(s Serializer) Option {
	return func(o *options) {
		o.serializer = s
	}
}

// DeserializerOption returns an Option that sets the inbound message deserializer.
func DeserializerOption(d Deserializer) Option {
	return func(o *options) {
		o.deserializer = d
	}
}

// ChannelOption returns an Option that replaces the default TCP channel with
// a custom Channel implementation.
func ChannelOption(ch Channel) Option {
	return func(o *options) {
		o.channel = ch
	}
}

// BufferSizeOption returns an Option that sets the size of the send buffer.
// A larger buffer allows more frame groups to be queued before Send reports
// backpressure.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// MaxFrameLengthOption returns an Option that sets the maximum wire size of a
// single frame group. Larger messages cannot be received.
func MaxFrameLengthOption(size int) Option {
	return func(o *options) {
		o.maxFrameLength = size
	}
}

// IdleTimeoutOption returns an Option that sets the read/write deadline base.
// Zero (the default) disables deadlines, which suits long-lived idle sessions.
func IdleTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// HandshakeCheckDelayOption returns an Option that sets how long after a
// Connect or Disconnect send the one-shot state check fires.
func HandshakeCheckDelayOption(d time.Duration) Option {
	return func(o *options) {
		o.handshakeCheckDelay = d
	}
}

// OnErrorOption returns an Option that sets the channel error callback.
// Return Disconnect to close the channel, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// Default configuration values.
const (
	// defaultBufferSize is the default size of the send buffer.
	defaultBufferSize = 64
	// defaultMaxFrameLength is the default maximum size of a frame group (1MB).
	defaultMaxFrameLength = 1024 * 1024
	// defaultHandshakeCheckDelay is how long after a handshake send the
	// observational state check fires.
	defaultHandshakeCheckDelay = 2 * time.Second
)

// checkOptions validates and sets default values for client options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxFrameLength <= 0 {
		opts.maxFrameLength = defaultMaxFrameLength
	}

	if opts.handshakeCheckDelay <= 0 {
		opts.handshakeCheckDelay = defaultHandshakeCheckDelay
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.clk == nil {
		opts.clk = clock.New()
	}

	if opts.idGenerator == nil {
		opts.idGenerator = UUIDGenerator{}
	}

	if opts.compressor == nil {
		opts.compressor = SnappyCompressor{}
	}

	if opts.serializer == nil {
		opts.serializer = JSONSerializer{}
	}

	if opts.deserializer == nil {
		opts.deserializer = JSONDeserializer{}
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	return nil
}
