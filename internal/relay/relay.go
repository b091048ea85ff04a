// Package relay fans routed realtime frames out to the server instances
// that hold the target user's sessions.
package relay

import (
	"context"
	"sync"

	"github.com/matheus3301/collab/internal/protocol"
)

// Frame is one envelope addressed to every session in a user's room.
type Frame struct {
	UserID   string            `json:"userId"`
	Envelope protocol.Envelope `json:"envelope"`
	// ExcludeSession skips the session the frame originated from.
	ExcludeSession string `json:"excludeSession,omitempty"`
	// Receipt, when set, is sent as messageDelivered to ReceiptTo once at
	// least one session in the room received the frame.
	Receipt   *protocol.Delivered `json:"receipt,omitempty"`
	ReceiptTo string              `json:"receiptTo,omitempty"`
}

// Handler delivers a frame to the sessions held by this instance.
type Handler func(Frame)

// Relay moves frames between instances.
type Relay interface {
	Start(h Handler) error
	Publish(ctx context.Context, f Frame) error
	Close() error
}

// Local delivers frames in-process. It is the relay of a single-instance server.
type Local struct {
	mu sync.RWMutex
	h  Handler
}

// NewLocal creates an in-process relay.
func NewLocal() *Local {
	return &Local{}
}

// Start implements Relay.
func (l *Local) Start(h Handler) error {
	l.mu.Lock()
	l.h = h
	l.mu.Unlock()
	return nil
}

// Publish implements Relay. The handler runs synchronously.
func (l *Local) Publish(_ context.Context, f Frame) error {
	l.mu.RLock()
	h := l.h
	l.mu.RUnlock()
	if h != nil {
		h(f)
	}
	return nil
}

// Close implements Relay.
func (l *Local) Close() error {
	l.mu.Lock()
	l.h = nil
	l.mu.Unlock()
	return nil
}
