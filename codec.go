package tradewire

import (
	"encoding/binary"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// frameCount is the number of frames in one logical message:
// type tag, declared size, payload.
const frameCount = 3

// ErrFrameCount is returned when a frame group does not contain exactly
// three frames.
var ErrFrameCount = errors.New("frame group must contain exactly three frames")

// Frames is one logical message on the wire: type tag, declared size,
// payload, in that order.
type Frames [][]byte

// FrameCodec turns an outgoing logical payload into the three-frame wire
// unit and parses inbound frame groups back, applying the configured
// compressor in both directions.
type FrameCodec struct {
	compressor Compressor
}

// NewFrameCodec returns a codec using the given compressor.
func NewFrameCodec(compressor Compressor) *FrameCodec {
	return &FrameCodec{compressor: compressor}
}

// EncodeMessage builds the frame group for a serialized payload. The size
// frame carries the decimal pre-compression byte length of the payload; it
// is diagnostic metadata only — frame boundaries come from the wire
// encoding, never from this field.
func (c *FrameCodec) EncodeMessage(typeTag string, payload []byte) (Frames, error) {
	compressed, err := c.compressor.Compress(payload)
	if err != nil {
		return nil, errors.Wrap(err, "compress payload")
	}

	return Frames{
		[]byte(typeTag),
		[]byte(strconv.Itoa(len(payload))),
		compressed,
	}, nil
}

// DecodeMessage parses an inbound frame group into its type tag, declared
// size and decompressed payload. The declared size is returned as metadata
// and is not used for control flow.
func (c *FrameCodec) DecodeMessage(f Frames) (typeTag string, declaredSize int, payload []byte, err error) {
	if len(f) != frameCount {
		return "", 0, nil, ErrFrameCount
	}

	payload, err = c.compressor.Decompress(f[2])
	if err != nil {
		return "", 0, nil, errors.Wrap(err, "decompress payload")
	}

	declaredSize, err = strconv.Atoi(string(f[1]))
	if err != nil {
		return "", 0, nil, errors.Wrap(err, "parse size frame")
	}

	return string(f[0]), declaredSize, payload, nil
}

// writeFrames marshals a frame group as uint32 big-endian length-prefixed
// chunks. The length prefix reproduces the message-oriented delivery the
// protocol assumes from its transport.
func writeFrames(w io.Writer, f Frames) error {
	if len(f) != frameCount {
		return ErrFrameCount
	}

	var lenBuf [4]byte
	for _, frame := range f {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return errors.Wrap(err, "write frame length")
		}
		if _, err := w.Write(frame); err != nil {
			return errors.Wrap(err, "write frame body")
		}
	}

	return nil
}

// readFrames reads one complete frame group from r. It reads exactly the
// bytes needed, so a stream transport can deliver messages back to back.
func readFrames(r io.Reader) (Frames, error) {
	f := make(Frames, 0, frameCount)

	var lenBuf [4]byte
	for i := 0; i < frameCount; i++ {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, err
		}

		frame := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(r, frame); err != nil {
			return nil, err
		}
		f = append(f, frame)
	}

	return f, nil
}
