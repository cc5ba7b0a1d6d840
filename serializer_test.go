package tradewire

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerializer_RoundTrip(t *testing.T) {
	original := &Message{
		ID:            uuid.New(),
		Type:          MessageTypeResponse,
		Timestamp:     time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		CorrelationID: uuid.New(),
		SessionID:     "C-001-1234-abcd",
		Text:          "session established",
		Payload:       []byte(`{"bid":"1.0812"}`),
	}

	data, err := JSONSerializer{}.Serialize(original)
	require.NoError(t, err)

	decoded, err := JSONDeserializer{}.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestJSONDeserializer_Invalid(t *testing.T) {
	_, err := JSONDeserializer{}.Deserialize([]byte("not json"))
	require.Error(t, err)
}

func TestSnappyCompressor_RoundTrip(t *testing.T) {
	payload := []byte(`{"symbol":"EURUSD","bid":"1.0812","ask":"1.0813"}`)

	compressed, err := SnappyCompressor{}.Compress(payload)
	require.NoError(t, err)

	decompressed, err := SnappyCompressor{}.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, decompressed)
}

func TestSnappyCompressor_InvalidInput(t *testing.T) {
	_, err := SnappyCompressor{}.Decompress([]byte("not snappy data"))
	require.Error(t, err)
}

func TestIdentityCompressor(t *testing.T) {
	payload := []byte("untouched")

	compressed, err := IdentityCompressor{}.Compress(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, compressed)

	decompressed, err := IdentityCompressor{}.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, decompressed)
}

func TestUUIDGenerator_Unique(t *testing.T) {
	gen := UUIDGenerator{}
	assert.NotEqual(t, gen.Generate(), gen.Generate())
}

func TestMessage_IsReply(t *testing.T) {
	replies := []MessageType{MessageTypeConnected, MessageTypeDisconnected, MessageTypeResponse}
	for _, mt := range replies {
		assert.True(t, (&Message{Type: mt}).IsReply(), string(mt))
	}

	requests := []MessageType{MessageTypeConnect, MessageTypeDisconnect, MessageTypeRequest}
	for _, mt := range requests {
		assert.False(t, (&Message{Type: mt}).IsReply(), string(mt))
	}
}
