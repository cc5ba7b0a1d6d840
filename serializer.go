package tradewire

import (
	"encoding/json"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// JSONSerializer encodes messages as JSON envelopes.
type JSONSerializer struct{}

// Serialize implements Serializer.
func (JSONSerializer) Serialize(m *Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "serialize message")
	}
	return data, nil
}

// JSONDeserializer parses JSON envelopes back into messages.
type JSONDeserializer struct{}

// Deserialize implements Deserializer.
func (JSONDeserializer) Deserialize(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "deserialize message")
	}
	return &m, nil
}

// SnappyCompressor compresses payload frames with snappy block encoding.
type SnappyCompressor struct{}

// Compress implements Compressor.
func (SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

// Decompress implements Compressor.
func (SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, errors.Wrap(err, "snappy decode")
	}
	return out, nil
}

// IdentityCompressor passes payloads through untouched. Useful when the
// server side runs without compression.
type IdentityCompressor struct{}

// Compress implements Compressor.
func (IdentityCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

// Decompress implements Compressor.
func (IdentityCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

// UUIDGenerator mints random version 4 identifiers.
type UUIDGenerator struct{}

// Generate implements IDGenerator.
func (UUIDGenerator) Generate() uuid.UUID { return uuid.New() }
