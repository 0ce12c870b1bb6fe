// Package dispatch routes inbound messages to the handler registered for
// their type. Each consumer builds one dispatcher for the endpoint and
// events it declared at construction.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/academyos/realtime/internal/protocol"
)

// Handler processes one inbound message.
type Handler func(msg protocol.Message)

// Stats contains routing counters.
type Stats struct {
	Received   int64
	Dispatched int64
	Dropped    int64
}

// Dispatcher routes messages by their type field. Registration happens
// before Run; the routing table is not mutated afterwards.
type Dispatcher struct {
	logger   *slog.Logger
	handlers map[string]Handler
	fallback Handler

	mu    sync.Mutex
	stats Stats
}

// New creates an empty dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a message type.
func (d *Dispatcher) Register(msgType string, h Handler) {
	d.handlers[msgType] = h
}

// RegisterFallback binds the handler for declared-but-untyped events, the
// extension point for domain-specific messages.
func (d *Dispatcher) RegisterFallback(h Handler) {
	d.fallback = h
}

// Dispatch routes a single message. Messages with no matching handler and
// no fallback are counted and dropped.
func (d *Dispatcher) Dispatch(msg protocol.Message) {
	d.mu.Lock()
	d.stats.Received++
	d.mu.Unlock()

	h, ok := d.handlers[msg.Type]
	if !ok {
		h = d.fallback
	}
	if h == nil {
		d.logger.Debug("no handler for message type", "type", msg.Type)
		d.mu.Lock()
		d.stats.Dropped++
		d.mu.Unlock()
		return
	}

	h(msg)

	d.mu.Lock()
	d.stats.Dispatched++
	d.mu.Unlock()
}

// Run dispatches from the channel until it closes or the context ends.
func (d *Dispatcher) Run(ctx context.Context, in <-chan protocol.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			d.Dispatch(msg)
		}
	}
}

// Stats returns current routing counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
