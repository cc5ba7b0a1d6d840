package tradewire

import (
	"sync"

	"github.com/google/uuid"
)

// pendingRegistry tracks correlable messages awaiting a reply, keyed by the
// originating message's id. Register and deregister are called from the
// application context and the channel's read context concurrently; a mutex
// makes them linearizable with respect to each other.
type pendingRegistry struct {
	logger Logger

	mu      sync.Mutex
	entries map[uuid.UUID]*Message
}

func newPendingRegistry(logger Logger) *pendingRegistry {
	return &pendingRegistry{
		logger:  logger,
		entries: make(map[uuid.UUID]*Message),
	}
}

// register tracks a message before its frames reach the wire, so a reply
// arriving concurrently with the send cannot race ahead of registration.
func (r *pendingRegistry) register(m *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[m.ID] = m
}

// deregister removes and returns the entry for the given correlation id.
// When no entry exists the reply is unsolicited or a duplicate: an error is
// logged and nil is returned, the caller is not failed.
func (r *pendingRegistry) deregister(correlationID uuid.UUID) *Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[correlationID]
	if !ok {
		r.logger.Error("no awaiting message", "correlation_id", correlationID)
		return nil
	}

	delete(r.entries, correlationID)
	return entry
}

// size returns the number of in-flight entries.
func (r *pendingRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}
