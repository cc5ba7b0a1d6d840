// Command example runs a request/reply client and a topic subscriber against
// a small in-process peer, demonstrating the session handshake, request
// correlation and the topic feed.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradewire/tradewire"
)

func main() {
	logger := tradewire.NewZerologLogger(
		zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger(),
	)

	serverAddr, feedAddr, err := startPeer(logger)
	if err != nil {
		logger.Error("starting peer", "error", err)
		os.Exit(1)
	}

	client, err := tradewire.NewClient("EXAMPLE-001", serverAddr,
		tradewire.LoggerOption(logger),
	)
	if err != nil {
		logger.Error("creating client", "error", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	client.RegisterHandler(&replyPrinter{logger: logger, done: done})

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		logger.Error("connect", "error", err)
		os.Exit(1)
	}

	waitFor(client.IsConnected)

	if _, err := client.SendRequest([]byte(`{"symbol":"EURUSD","action":"quote"}`)); err != nil {
		logger.Error("send request", "error", err)
	}
	<-done

	subscriber, err := tradewire.NewSubscriber("EXAMPLE-001", feedAddr,
		tradewire.LoggerOption(logger),
	)
	if err != nil {
		logger.Error("creating subscriber", "error", err)
		os.Exit(1)
	}

	ticks := make(chan struct{})
	subscriber.RegisterHandler(func(topic string, payload []byte) {
		logger.Info("tick", "topic", topic, "payload", string(payload))
		ticks <- struct{}{}
	})

	if err := subscriber.Subscribe("quotes.EURUSD"); err != nil {
		logger.Error("subscribe", "error", err)
	}
	if err := subscriber.Connect(ctx); err != nil {
		logger.Error("subscriber connect", "error", err)
		os.Exit(1)
	}
	<-ticks

	if err := subscriber.Disconnect(); err != nil {
		logger.Error("subscriber disconnect", "error", err)
	}
	if err := client.Disconnect(); err != nil {
		logger.Error("disconnect", "error", err)
	}
	waitFor(func() bool { return !client.IsConnected() })

	logger.Info("done", "sent", client.SentCount(), "received", client.ReceivedCount())
}

func waitFor(cond func() bool) {
	for !cond() {
		time.Sleep(10 * time.Millisecond)
	}
}

// replyPrinter logs dispatched replies and strings.
type replyPrinter struct {
	logger tradewire.Logger
	done   chan struct{}
}

func (p *replyPrinter) HandleString(s string) {
	p.logger.Info("string received", "value", s)
}

func (p *replyPrinter) HandleReply(m *tradewire.Message) {
	p.logger.Info("reply received",
		"correlation_id", m.CorrelationID, "payload", string(m.Payload))
	close(p.done)
}

// startPeer runs the in-process server end: a session endpoint answering the
// handshake and echoing requests, and a feed endpoint publishing one tick.
func startPeer(logger tradewire.Logger) (serverAddr, feedAddr string, err error) {
	codec := tradewire.NewFrameCodec(tradewire.SnappyCompressor{})

	server, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", "", err
	}
	go func() {
		conn, err := server.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serveSession(conn, codec, logger)
	}()

	feed, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", "", err
	}
	go func() {
		conn, err := feed.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		frames, err := codec.EncodeMessage("quotes.EURUSD", []byte(`{"bid":"1.0812","ask":"1.0813"}`))
		if err != nil {
			return
		}
		for {
			if err := writeWire(conn, frames); err != nil {
				return
			}
			time.Sleep(250 * time.Millisecond)
		}
	}()

	return server.Addr().String(), feed.Addr().String(), nil
}

func serveSession(conn net.Conn, codec *tradewire.FrameCodec, logger tradewire.Logger) {
	reader := bufio.NewReader(conn)
	for {
		frames, err := readWire(reader)
		if err != nil {
			return
		}

		_, _, payload, err := codec.DecodeMessage(frames)
		if err != nil {
			logger.Error("peer decode", "error", err)
			return
		}
		msg, err := (tradewire.JSONDeserializer{}).Deserialize(payload)
		if err != nil {
			logger.Error("peer deserialize", "error", err)
			return
		}

		var reply *tradewire.Message
		switch msg.Type {
		case tradewire.MessageTypeConnect:
			reply = &tradewire.Message{
				ID:            uuid.New(),
				Type:          tradewire.MessageTypeConnected,
				Timestamp:     time.Now(),
				CorrelationID: msg.ID,
				SessionID:     msg.SessionID,
				Text:          "session established",
			}
		case tradewire.MessageTypeDisconnect:
			reply = &tradewire.Message{
				ID:            uuid.New(),
				Type:          tradewire.MessageTypeDisconnected,
				Timestamp:     time.Now(),
				CorrelationID: msg.ID,
				Text:          "session closed",
			}
		case tradewire.MessageTypeRequest:
			reply = &tradewire.Message{
				ID:            uuid.New(),
				Type:          tradewire.MessageTypeResponse,
				Timestamp:     time.Now(),
				CorrelationID: msg.ID,
				Payload:       []byte(`{"symbol":"EURUSD","bid":"1.0812","ask":"1.0813"}`),
			}
		default:
			continue
		}

		data, err := (tradewire.JSONSerializer{}).Serialize(reply)
		if err != nil {
			return
		}
		out, err := codec.EncodeMessage(string(tradewire.MessageTypeResponse), data)
		if err != nil {
			return
		}
		if err := writeWire(conn, out); err != nil {
			return
		}
	}
}

// writeWire marshals a frame group as uint32 big-endian length-prefixed
// chunks, the wire encoding the TCP channel expects.
func writeWire(w io.Writer, frames tradewire.Frames) error {
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, frame := range frames {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
		buf.Write(lenBuf[:])
		buf.Write(frame)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// readWire reads one three-frame group.
func readWire(r io.Reader) (tradewire.Frames, error) {
	frames := make(tradewire.Frames, 0, 3)
	var lenBuf [4]byte
	for i := 0; i < 3; i++ {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, err
		}
		frame := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(r, frame); err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
