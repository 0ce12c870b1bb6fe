// Package conntest provides an in-process connection.Conn for consumer
// tests, so reducers can be exercised without a WebSocket server.
package conntest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/academyos/realtime/internal/connection"
	"github.com/academyos/realtime/internal/protocol"
)

// Fake is a scriptable connection.Conn. Tests inject inbound messages and
// state transitions, and inspect everything the consumer sent.
type Fake struct {
	mu        sync.Mutex
	connected bool
	sent      []protocol.Message
	lastMsg   *protocol.Message
	history   []protocol.Message

	messages chan protocol.Message
	states   chan connection.State
	errs     chan error
}

var _ connection.Conn = (*Fake)(nil)

// New creates a disconnected fake.
func New() *Fake {
	return &Fake{
		messages: make(chan protocol.Message, 64),
		states:   make(chan connection.State, 16),
		errs:     make(chan error, 8),
	}
}

// Connect marks the fake connected and emits the Connected transition.
func (f *Fake) Connect(ctx context.Context) error {
	f.SetConnected(true)
	return nil
}

// Close marks the fake disconnected.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

// Send records the message. Returns true while connected, mirroring the
// real manager's sent-vs-queued contract.
func (f *Fake) Send(msg protocol.Message) bool {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.connected
}

// SendType builds an envelope and sends it.
func (f *Fake) SendType(msgType string, payload any) bool {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return false
	}
	return f.Send(msg)
}

func (f *Fake) Messages() <-chan protocol.Message { return f.messages }
func (f *Fake) States() <-chan connection.State   { return f.states }
func (f *Fake) Errors() <-chan error              { return f.errs }

// State reports Connected or Disconnected per the flag.
func (f *Fake) State() connection.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return connection.StateConnected
	}
	return connection.StateDisconnected
}

// IsConnected reports the connected flag.
func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// LastMessage returns the most recently injected message.
func (f *Fake) LastMessage() (protocol.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastMsg == nil {
		return protocol.Message{}, false
	}
	return *f.lastMsg, true
}

// History returns every injected message, oldest first.
func (f *Fake) History() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]protocol.Message, len(f.history))
	copy(out, f.history)
	return out
}

// ClearHistory drops the injected history. LastMessage is unaffected.
func (f *Fake) ClearHistory() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = nil
}

// SetConnected flips the flag and emits the matching state transition.
func (f *Fake) SetConnected(connected bool) {
	f.mu.Lock()
	f.connected = connected
	f.mu.Unlock()

	if connected {
		f.states <- connection.StateConnected
	} else {
		f.states <- connection.StateDisconnected
	}
}

// Inject delivers an inbound message to the consumer.
func (f *Fake) Inject(msg protocol.Message) {
	f.mu.Lock()
	f.lastMsg = &msg
	f.history = append(f.history, msg)
	f.mu.Unlock()
	f.messages <- msg
}

// InjectType builds an envelope for the payload and delivers it.
func (f *Fake) InjectType(msgType string, payload any) error {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	f.Inject(msg)
	return nil
}

// Fail delivers a connection error to the consumer.
func (f *Fake) Fail(err error) {
	f.errs <- err
}

// Sent returns all messages the consumer sent, in order.
func (f *Fake) Sent() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentOfType filters Sent by message type.
func (f *Fake) SentOfType(msgType string) []protocol.Message {
	var out []protocol.Message
	for _, msg := range f.Sent() {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}
	return out
}
