package tradewire

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by channel operations.
var (
	// ErrChannelClosed is returned when sending on a closed channel.
	ErrChannelClosed = errors.New("channel closed")
	// ErrBufferFull is returned when the send buffer cannot accept more
	// frame groups. This signals backpressure, the message was NOT queued.
	ErrBufferFull = errors.New("send buffer full")
	// ErrFrameTooLarge is returned when an inbound frame group exceeds the
	// maximum allowed size.
	ErrFrameTooLarge = errors.New("frame group too large")
	// ErrMissingOnFrames is returned when the channel is opened without a
	// frames callback.
	ErrMissingOnFrames = errors.New("missing on frames callback")
)

// Channel is the persistent duplex transport a client endpoint runs on.
// Open and Close manage the underlying connection; Send queues one complete
// frame group; inbound frame groups are delivered through the callback
// registered with OnFrames from the channel's own read context.
type Channel interface {
	Open(ctx context.Context) error
	Close() error
	Send(f Frames) error
	IsOpen() bool
	OnFrames(fn func(Frames) error)
}

// TopicFilterer is implemented by channels that can restrict inbound traffic
// to subscribed topic prefixes before dispatch.
type TopicFilterer interface {
	SubscribeTopic(topic string)
	UnsubscribeTopic(topic string)
	TopicFilters() []string
}

// limitedReader wraps a reader and returns ErrFrameTooLarge when the limit
// is exceeded.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func newLimitedReader(r io.Reader, limit int64) *limitedReader {
	return &limitedReader{r: r, remaining: limit}
}

func (l *limitedReader) Read(p []byte) (n int, err error) {
	if l.remaining <= 0 {
		return 0, ErrFrameTooLarge
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err = l.r.Read(p)
	l.remaining -= int64(n)
	return
}

// reset resets the limit counter for reuse with the next frame group.
// Only remaining is reset because the underlying bufio.Reader maintains its
// own buffer state and continues reading from where it left off.
func (l *limitedReader) reset(limit int64) {
	l.remaining = limit
}

// TCPChannel is the default Channel implementation: a dialed TCP connection
// carrying uint32 length-prefixed frame groups, with concurrent read and
// write loops. A closed channel can be reopened, which supports the
// connect/disconnect/connect session cycle.
type TCPChannel struct {
	addr     string
	logger   Logger
	opts     options
	onFrames func(Frames) error

	open atomic.Bool

	mu         sync.Mutex // guards all state transitions across reopen
	opening    bool
	conn       *net.TCPConn
	cancel     context.CancelFunc
	sendCh     chan []byte
	limited    *limitedReader
	generation uint64 // bumped on every successful Open

	filterMu sync.Mutex
	filters  map[string]struct{}
}

// NewTCPChannel creates a channel that will dial addr when opened.
func NewTCPChannel(addr string, opt ...Option) (*TCPChannel, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return &TCPChannel{
		addr:   addr,
		logger: opts.logger,
		opts:   opts,
	}, nil
}

// OnFrames registers the inbound frames callback. Must be set before Open.
func (c *TCPChannel) OnFrames(fn func(Frames) error) {
	c.onFrames = fn
}

// Open dials the remote address and starts the read and write loops.
// It returns once the connection is established; delivery of inbound frame
// groups happens asynchronously through the OnFrames callback.
func (c *TCPChannel) Open(ctx context.Context) error {
	if c.onFrames == nil {
		return ErrMissingOnFrames
	}

	c.mu.Lock()
	if c.opening || c.open.Load() {
		c.mu.Unlock()
		return nil // already open or another Open in flight
	}
	c.opening = true
	c.mu.Unlock()

	raddr, err := net.ResolveTCPAddr("tcp", c.addr)
	if err != nil {
		c.abortOpen()
		return errors.Wrap(err, "resolve address")
	}

	conn, err := net.DialTCP("tcp", nil, raddr)
	if err != nil {
		c.abortOpen()
		return errors.Wrap(err, "dial")
	}
	_ = conn.SetNoDelay(true)

	ctx, cancel := context.WithCancel(ctx)
	reader := bufio.NewReaderSize(conn, c.opts.maxFrameLength)
	limited := newLimitedReader(reader, int64(c.opts.maxFrameLength))
	sendCh := make(chan []byte, c.opts.bufferSize)

	// The generation bump and the open flag flip happen under the same lock
	// a stale run's teardown takes, so the teardown either sees the new
	// generation and backs off, or finishes before this connection goes live.
	c.mu.Lock()
	c.opening = false
	c.generation++
	generation := c.generation
	c.conn = conn
	c.cancel = cancel
	c.sendCh = sendCh
	c.limited = limited
	c.open.Store(true)
	c.mu.Unlock()

	go c.run(ctx, generation, conn, limited, sendCh)

	return nil
}

func (c *TCPChannel) abortOpen() {
	c.mu.Lock()
	c.opening = false
	c.mu.Unlock()
}

// run drives the read and write loops until either fails or the context is
// canceled, then tears the connection down. The open flag is cleared only
// while this run's generation is still current: a reopen may have replaced
// this connection already, and a stale teardown must not clobber its state.
func (c *TCPChannel) run(ctx context.Context, generation uint64, conn *net.TCPConn, limited *limitedReader, sendCh chan []byte) {
	c.logger.Info("channel open", "addr", c.addr)

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child, conn, limited)
	})

	group.Go(func() error {
		return c.writeLoop(child, conn, sendCh)
	})

	err := group.Wait()

	c.mu.Lock()
	if generation == c.generation {
		c.open.Store(false)
	}
	c.mu.Unlock()
	conn.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("channel closed with error", "addr", c.addr, "error", err)
	} else {
		c.logger.Info("channel closed", "addr", c.addr)
	}
}

// Close closes the channel and the underlying connection.
// Safe to call multiple times.
func (c *TCPChannel) Close() error {
	c.mu.Lock()
	if !c.open.Load() {
		c.mu.Unlock()
		return nil // already closed
	}
	c.open.Store(false)
	cancel, conn := c.cancel, c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsOpen returns true while the channel is connected.
func (c *TCPChannel) IsOpen() bool {
	return c.open.Load()
}

// Send queues one frame group for transmission without blocking.
// Returns ErrBufferFull when the send buffer cannot accept it and
// ErrChannelClosed when the channel is not open.
func (c *TCPChannel) Send(f Frames) error {
	if !c.open.Load() {
		return ErrChannelClosed
	}

	var buf bytes.Buffer
	if err := writeFrames(&buf, f); err != nil {
		return err
	}

	c.mu.Lock()
	sendCh := c.sendCh
	c.mu.Unlock()

	select {
	case sendCh <- buf.Bytes():
		return nil
	default:
		return ErrBufferFull
	}
}

// SubscribeTopic installs a topic prefix filter. While at least one filter
// is installed, inbound frame groups whose topic frame matches no filter are
// dropped in the read loop. With no filters, everything is admitted.
func (c *TCPChannel) SubscribeTopic(topic string) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()

	if c.filters == nil {
		c.filters = make(map[string]struct{})
	}
	c.filters[topic] = struct{}{}
}

// UnsubscribeTopic removes a topic prefix filter.
func (c *TCPChannel) UnsubscribeTopic(topic string) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()

	delete(c.filters, topic)
}

// TopicFilters returns the currently installed filters.
func (c *TCPChannel) TopicFilters() []string {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()

	filters := make([]string, 0, len(c.filters))
	for f := range c.filters {
		filters = append(filters, f)
	}
	return filters
}

// admits reports whether the topic frame passes the installed filters.
func (c *TCPChannel) admits(topic []byte) bool {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()

	if len(c.filters) == 0 {
		return true
	}
	t := string(topic)
	for f := range c.filters {
		if strings.HasPrefix(t, f) {
			return true
		}
	}
	return false
}

// readLoop continuously reads frame groups from the connection and hands
// them to the OnFrames callback. Groups exceeding maxFrameLength fail with
// ErrFrameTooLarge.
func (c *TCPChannel) readLoop(ctx context.Context, conn *net.TCPConn, limited *limitedReader) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if c.opts.idleTimeout > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(c.opts.idleTimeout * 2))
			}

			// Reset the limit for each frame group
			limited.reset(int64(c.opts.maxFrameLength))

			frames, err := readFrames(limited)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Debug("read error", "addr", c.addr, "error", err)
				if c.opts.onError(err) == Disconnect {
					return err
				}
				continue
			}

			if !c.admits(frames[0]) {
				c.logger.Debug("frame group filtered", "topic", string(frames[0]))
				continue
			}

			if err = c.onFrames(frames); err != nil {
				return err
			}
		}
	}
}

// writeLoop continuously sends queued frame groups to the connection.
func (c *TCPChannel) writeLoop(ctx context.Context, conn *net.TCPConn, sendCh chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-sendCh:
			if err := c.write(conn, data); err != nil {
				return err
			}
		}
	}
}

// write sends one encoded frame group with an optional deadline.
// If an error occurs and onError returns Continue, the error is suppressed
// and writing continues.
func (c *TCPChannel) write(conn *net.TCPConn, data []byte) error {
	if c.opts.idleTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.opts.idleTimeout * 2))
	}

	_, err := conn.Write(data)
	if err != nil {
		c.logger.Debug("write error", "addr", c.addr, "error", err)
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}

	return nil
}
