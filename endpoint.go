package tradewire

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// Errors returned by endpoint constructors.
var (
	// ErrEmptyClientID is returned when no client identifier is provided.
	ErrEmptyClientID = errors.New("client id must not be empty")
	// ErrEmptyAddress is returned when no target address is provided.
	ErrEmptyAddress = errors.New("address must not be empty")
)

// Endpoint is the capability common to all tradewire clients. Each concrete
// client defines its own connection semantics: the request/reply Client is
// connected while it holds a live session id, the Subscriber has no
// handshake and always reports connected.
type Endpoint interface {
	IsConnected() bool
	Connect(ctx context.Context) error
	Disconnect() error
}

// endpoint holds the identity and collaborator services shared by the
// concrete clients, and owns the underlying channel lifecycle.
type endpoint struct {
	clientID string
	addr     string
	channel  Channel
	codec    *FrameCodec
	clk      clock.Clock
	idGen    IDGenerator
	logger   Logger
}

func newEndpoint(clientID, addr string, opts options) (endpoint, error) {
	if clientID == "" {
		return endpoint{}, ErrEmptyClientID
	}
	if addr == "" {
		return endpoint{}, ErrEmptyAddress
	}

	channel := opts.channel
	if channel == nil {
		ch, err := NewTCPChannel(addr,
			LoggerOption(opts.logger),
			BufferSizeOption(opts.bufferSize),
			MaxFrameLengthOption(opts.maxFrameLength),
			IdleTimeoutOption(opts.idleTimeout),
			OnErrorOption(opts.onError),
		)
		if err != nil {
			return endpoint{}, err
		}
		channel = ch
	}

	return endpoint{
		clientID: clientID,
		addr:     addr,
		channel:  channel,
		codec:    NewFrameCodec(opts.compressor),
		clk:      opts.clk,
		idGen:    opts.idGenerator,
		logger:   opts.logger,
	}, nil
}

// connectChannel opens the underlying channel. No-op when already open.
func (e *endpoint) connectChannel(ctx context.Context) error {
	if e.channel.IsOpen() {
		return nil
	}
	return e.channel.Open(ctx)
}

// disconnectChannel closes the underlying channel. No-op when already closed.
func (e *endpoint) disconnectChannel() error {
	if !e.channel.IsOpen() {
		return nil
	}
	return e.channel.Close()
}

// ClientID returns the endpoint's stable identity.
func (e *endpoint) ClientID() string {
	return e.clientID
}

// Addr returns the target address.
func (e *endpoint) Addr() string {
	return e.addr
}
