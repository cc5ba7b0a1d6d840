// Package tradewire implements the client side of a session-oriented trading
// messaging protocol. It provides a request/reply Client that drives the
// Connect/Connected, Disconnect/Disconnected handshake and correlates
// asynchronous replies to their requests, and a receive-only Subscriber for
// topic-filtered feeds. Both run over a persistent duplex channel carrying
// three-frame messages (type tag, declared size, compressed payload).
package tradewire

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MessageHandler receives traffic dispatched by a Client: bare strings that
// bypassed correlation, and reply messages that are neither Connected nor
// Disconnected. Handlers run on the channel's read context and must be safe
// for concurrent use with application calls.
type MessageHandler interface {
	HandleString(s string)
	HandleReply(m *Message)
}

// Client is the request/reply endpoint. It is logically connected exactly
// while it holds a non-empty session id, which is set by a Connected reply
// and cleared by a Disconnected reply.
type Client struct {
	endpoint
	opts options

	registry *pendingRegistry

	mu              sync.Mutex
	sessionID       string
	handler         MessageHandler
	connectCheck    *clock.Timer
	disconnectCheck *clock.Timer

	sentCount     atomic.Int64
	receivedCount atomic.Int64
}

// NewClient creates a request/reply client for the given identity and
// server address. The client starts disconnected; call Connect to initiate
// the session handshake.
func NewClient(clientID, addr string, opt ...Option) (*Client, error) {
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

	c := &Client{
		endpoint: base,
		opts:     opts,
		registry: newPendingRegistry(opts.logger),
	}
	c.channel.OnFrames(c.handleFrames)

	return c, nil
}

// IsConnected reports whether a session is established.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sessionID != ""
}

// SessionID returns the live session identifier, empty while disconnected.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sessionID
}

// RegisterHandler installs the application handler, replacing any previously
// registered one. Replacement is expected during reconfiguration and is
// logged, not an error.
func (c *Client) RegisterHandler(handler MessageHandler) {
	c.mu.Lock()
	replaced := c.handler != nil
	c.handler = handler
	c.mu.Unlock()

	if replaced {
		c.logger.Info("handler replaced", "client_id", c.clientID)
	}
}

// Connect opens the channel and sends a Connect message carrying a freshly
// minted session id proposal. It returns after the send; the handshake
// outcome is observed asynchronously through the reply path. A one-shot
// check fires later and logs a warning if the client is still not connected
// by then — purely observational, no retry or abort.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.connectChannel(ctx); err != nil {
		return errors.Wrap(err, "open channel")
	}

	msg := &Message{
		ID:        c.idGen.Generate(),
		Type:      MessageTypeConnect,
		Timestamp: c.clk.Now(),
		SessionID: c.mintSessionID(),
	}

	c.armCheck(&c.connectCheck, fmt.Sprintf("%s-is_connected?", msg.ID), func() bool {
		return c.IsConnected()
	})

	c.logger.Info("connecting", "client_id", c.clientID, "addr", c.addr, "session_id", msg.SessionID)
	return c.Send(msg)
}

// Disconnect sends a Disconnect message carrying the live session id. When
// no session is active it logs a warning and returns with no side effects.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	session := c.sessionID
	c.mu.Unlock()

	if session == "" {
		c.logger.Warn("disconnect requested but no active session", "client_id", c.clientID)
		return nil
	}

	msg := &Message{
		ID:        c.idGen.Generate(),
		Type:      MessageTypeDisconnect,
		Timestamp: c.clk.Now(),
		SessionID: session,
	}

	c.armCheck(&c.disconnectCheck, fmt.Sprintf("%s-is_disconnected?", msg.ID), func() bool {
		return !c.IsConnected()
	})

	c.logger.Info("disconnecting", "client_id", c.clientID, "session_id", session)
	return c.Send(msg)
}

// SendRequest builds and sends a Request carrying the given payload and
// returns its id for correlation by the caller.
func (c *Client) SendRequest(payload []byte) (uuid.UUID, error) {
	msg := &Message{
		ID:        c.idGen.Generate(),
		Type:      MessageTypeRequest,
		Timestamp: c.clk.Now(),
		Payload:   payload,
	}
	return msg.ID, c.Send(msg)
}

// Send transmits a correlable message. The message is registered in the
// pending-reply registry before its frames reach the wire, so a reply
// arriving concurrently with the send cannot race ahead of registration.
// A message whose frames never left is deregistered again: no reply can
// arrive for it and the entry would otherwise linger forever.
func (c *Client) Send(m *Message) error {
	c.registry.register(m)

	data, err := c.opts.serializer.Serialize(m)
	if err != nil {
		c.registry.deregister(m.ID)
		return errors.Wrap(err, "serialize message")
	}

	frames, err := c.codec.EncodeMessage(string(m.Type), data)
	if err != nil {
		c.registry.deregister(m.ID)
		return err
	}

	if err := c.channel.Send(frames); err != nil {
		c.registry.deregister(m.ID)
		return err
	}

	c.sentCount.Add(1)
	return nil
}

// SendString sends a bare string payload. Strings bypass correlation
// entirely: no registry entry, no reply expected.
func (c *Client) SendString(s string) error {
	frames, err := c.codec.EncodeMessage(StringTag, []byte(s))
	if err != nil {
		return err
	}

	if err := c.channel.Send(frames); err != nil {
		return err
	}

	c.sentCount.Add(1)
	return nil
}

// SentCount returns the number of messages sent, independent of type.
func (c *Client) SentCount() int64 {
	return c.sentCount.Load()
}

// ReceivedCount returns the number of frame groups received.
func (c *Client) ReceivedCount() int64 {
	return c.receivedCount.Load()
}

// handleFrames processes one inbound frame group from the channel's read
// context. A bare string is decoded and forwarded directly to the handler.
// Anything else must carry the Response tag; other tags are a protocol
// violation and the group is dropped with an error log, never a failure.
func (c *Client) handleFrames(f Frames) error {
	c.receivedCount.Add(1)

	typeTag, declaredSize, payload, err := c.codec.DecodeMessage(f)
	if err != nil {
		c.logger.Error("dropping undecodable frame group", "client_id", c.clientID, "error", err)
		return nil
	}

	switch typeTag {
	case StringTag:
		c.dispatchString(string(payload))
		return nil
	case string(MessageTypeResponse):
	default:
		c.logger.Error("unexpected frame type, dropping", "client_id", c.clientID, "type", typeTag)
		return nil
	}

	reply, err := c.opts.deserializer.Deserialize(payload)
	if err != nil {
		c.logger.Error("cannot deserialize reply", "client_id", c.clientID, "error", err)
		return nil
	}
	c.logger.Debug("reply received",
		"type", reply.Type,
		"correlation_id", reply.CorrelationID,
		"declared_size", declaredSize)

	entry := c.registry.deregister(reply.CorrelationID)

	switch reply.Type {
	case MessageTypeConnected:
		c.onConnected(reply)
	case MessageTypeDisconnected:
		c.onDisconnected(reply)
	default:
		// The deregister already logged "no awaiting message": the reply is
		// unsolicited or a duplicate and must not reach the handler.
		if entry == nil {
			return nil
		}
		c.dispatchReply(reply)
	}

	return nil
}

// onConnected applies a Connected reply. A duplicate or late reply while a
// session is already live is logged as a warning but still applied:
// last-write-wins, the session id is overwritten with the new value.
func (c *Client) onConnected(m *Message) {
	c.mu.Lock()
	already := c.sessionID != ""
	c.sessionID = m.SessionID
	check := c.connectCheck
	c.connectCheck = nil
	c.mu.Unlock()

	if check != nil {
		check.Stop()
	}

	if already {
		c.logger.Warn("already connected, session replaced",
			"client_id", c.clientID, "session_id", m.SessionID, "note", m.Text)
		return
	}
	c.logger.Info("connected", "client_id", c.clientID, "session_id", m.SessionID, "note", m.Text)
}

// onDisconnected applies a Disconnected reply. A stale reply with no live
// session is logged as a warning; in both cases the session id is cleared
// and the channel closed.
func (c *Client) onDisconnected(m *Message) {
	c.mu.Lock()
	had := c.sessionID != ""
	c.sessionID = ""
	check := c.disconnectCheck
	c.disconnectCheck = nil
	c.mu.Unlock()

	if check != nil {
		check.Stop()
	}

	if had {
		c.logger.Info("disconnected", "client_id", c.clientID, "note", m.Text)
	} else {
		c.logger.Warn("stale disconnected reply", "client_id", c.clientID, "note", m.Text)
	}

	if err := c.disconnectChannel(); err != nil {
		c.logger.Error("closing channel", "client_id", c.clientID, "error", err)
	}
}

func (c *Client) dispatchString(s string) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	if handler == nil {
		c.logger.Warn("no handler registered, dropping string", "client_id", c.clientID)
		return
	}
	handler.HandleString(s)
}

func (c *Client) dispatchReply(m *Message) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	if handler == nil {
		c.logger.Warn("no handler registered, dropping reply",
			"client_id", c.clientID, "correlation_id", m.CorrelationID)
		return
	}
	handler.HandleReply(m)
}

// armCheck schedules the one-shot handshake state check. The check is
// cancellable: the matching reply stops it before it fires. When it does
// fire without the expected transition it logs a warning, never more.
func (c *Client) armCheck(slot **clock.Timer, label string, ok func() bool) {
	timer := c.clk.AfterFunc(c.opts.handshakeCheckDelay, func() {
		if !ok() {
			c.logger.Warn("handshake check failed", "client_id", c.clientID, "check", label)
		}
	})

	c.mu.Lock()
	if *slot != nil {
		(*slot).Stop()
	}
	*slot = timer
	c.mu.Unlock()
}

// mintSessionID combines the client identity, the current clock reading and
// a short nonce into a session id proposal.
func (c *Client) mintSessionID() string {
	nonce := c.idGen.Generate().String()[:8]
	return fmt.Sprintf("%s-%d-%s", c.clientID, c.clk.Now().UnixNano(), nonce)
}
