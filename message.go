package tradewire

import (
	"time"

	"github.com/google/uuid"
)

// MessageType tags a message variant. Handshake variants (Connect, Connected,
// Disconnect, Disconnected) drive the session state machine; Request and
// Response carry application traffic.
type MessageType string

// Message variants.
const (
	MessageTypeConnect      MessageType = "Connect"
	MessageTypeConnected    MessageType = "Connected"
	MessageTypeDisconnect   MessageType = "Disconnect"
	MessageTypeDisconnected MessageType = "Disconnected"
	MessageTypeRequest      MessageType = "Request"
	MessageTypeResponse     MessageType = "Response"
)

// StringTag is the frame type tag for bare string payloads. Strings bypass
// correlation entirely: no registry entry, no reply expected.
const StringTag = "String"

// Message is the logical unit exchanged with the server. Every message
// carries a unique id, a type tag and a creation timestamp. The remaining
// fields are variant-specific: CorrelationID references the originating
// request on replies, SessionID rides on handshake messages, Text carries
// the human-readable note on Connected/Disconnected, Payload holds the
// application body of Request/Response.
type Message struct {
	ID            uuid.UUID   `json:"id"`
	Type          MessageType `json:"type"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID uuid.UUID   `json:"correlation_id"`
	SessionID     string      `json:"session_id,omitempty"`
	Text          string      `json:"text,omitempty"`
	Payload       []byte      `json:"payload,omitempty"`
}

// IsReply reports whether the message is one of the reply variants carried
// under the Response wire tag.
func (m *Message) IsReply() bool {
	switch m.Type {
	case MessageTypeConnected, MessageTypeDisconnected, MessageTypeResponse:
		return true
	}
	return false
}

// Serializer turns an outgoing message into bytes for the payload frame.
type Serializer interface {
	Serialize(m *Message) ([]byte, error)
}

// Deserializer parses a decompressed payload frame back into a message.
type Deserializer interface {
	Deserialize(data []byte) (*Message, error)
}

// Compressor is the symmetric payload compression service applied by the
// framing codec in both directions.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// IDGenerator mints message identifiers.
type IDGenerator interface {
	Generate() uuid.UUID
}
