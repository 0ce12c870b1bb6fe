package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/academyos/realtime/internal/protocol"
	"github.com/academyos/realtime/internal/toast"
)

// Conn is the duplex connection owned by a single consumer.
type Conn interface {
	// Connect starts the manager. The dial happens asynchronously; watch
	// States for the Connected transition.
	Connect(ctx context.Context) error

	// Close tears the connection down with a normal-closure frame and
	// cancels all timers. No reconnection follows an intentional close.
	Close() error

	// Send delivers a message if connected, or queues it for the next
	// open. Returns true if sent immediately, false if queued. Missing
	// id/timestamp fields are stamped here.
	Send(msg protocol.Message) bool

	// SendType builds an envelope for the payload and sends it.
	SendType(msgType string, payload any) bool

	// Messages yields inbound messages in transport order. Pongs are
	// consumed by the manager and never appear here.
	Messages() <-chan protocol.Message

	// States yields connection state transitions.
	States() <-chan State

	// Errors yields transport errors and the fatal ErrReconnectExhausted.
	Errors() <-chan error

	// State returns the current connection state.
	State() State

	// IsConnected reports whether the state is Connected.
	IsConnected() bool

	// LastMessage returns the most recent inbound message, if any.
	LastMessage() (protocol.Message, bool)

	// History returns recent inbound messages, oldest first, capped at
	// the last 100. Pongs never appear, same as Messages.
	History() []protocol.Message

	// ClearHistory drops the history. LastMessage is unaffected.
	ClearHistory()
}

// historyLimit caps the inbound message history.
const historyLimit = 100

// manager implements Conn.
type manager struct {
	cfg    Config
	logger *slog.Logger
	alerts toast.Sink // nil = no user-facing notices

	messages chan protocol.Message
	states   chan State
	errs     chan error

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	queue    []protocol.Message
	attempts int
	lastMsg  *protocol.Message
	history  []protocol.Message
	started  bool
	closed   bool

	// Write serialization
	writeMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a connection manager. alerts receives the fatal disconnect
// notice once reconnection is exhausted; it may be nil.
func New(cfg Config, alerts toast.Sink, logger *slog.Logger) Conn {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &manager{
		cfg:      cfg,
		logger:   logger,
		alerts:   alerts,
		messages: make(chan protocol.Message, cfg.BufferSize),
		states:   make(chan State, 16),
		errs:     make(chan error, 8),
		state:    StateDisconnected,
		done:     make(chan struct{}),
	}
}

// Connect starts the connection loop.
func (m *manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrAlreadyClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run(ctx)

	return nil
}

// Close tears down the connection and stops all reconnection.
func (m *manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.conn
	m.mu.Unlock()

	close(m.done)
	if m.cancel != nil {
		m.cancel()
	}

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}

	m.wg.Wait()
	m.setState(StateDisconnected)
	return nil
}

// Send sends immediately when connected, otherwise queues.
func (m *manager) Send(msg protocol.Message) bool {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.queue = append(m.queue, msg)
		m.mu.Unlock()
		return false
	}
	conn := m.conn
	m.mu.Unlock()

	if err := m.write(conn, msg); err != nil {
		m.logger.Warn("send failed, queueing message", "type", msg.Type, "error", err)
		m.reportError(err)

		m.mu.Lock()
		m.queue = append(m.queue, msg)
		m.mu.Unlock()
		return false
	}

	return true
}

// SendType builds and sends a stamped envelope.
func (m *manager) SendType(msgType string, payload any) bool {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		m.logger.Error("failed to build message", "type", msgType, "error", err)
		return false
	}
	return m.Send(msg)
}

func (m *manager) Messages() <-chan protocol.Message { return m.messages }
func (m *manager) States() <-chan State              { return m.states }
func (m *manager) Errors() <-chan error              { return m.errs }

// State returns the current state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the connection is open.
func (m *manager) IsConnected() bool {
	return m.State() == StateConnected
}

// LastMessage returns the most recent inbound message.
func (m *manager) LastMessage() (protocol.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastMsg == nil {
		return protocol.Message{}, false
	}
	return *m.lastMsg, true
}

// History returns a snapshot of recent inbound messages, oldest first.
func (m *manager) History() []protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]protocol.Message, len(m.history))
	copy(out, m.history)
	return out
}

// ClearHistory drops the inbound message history.
func (m *manager) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}

// run owns the connect / read / reconnect cycle.
func (m *manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		m.setState(StateConnecting)

		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				m.setState(StateDisconnected)
				return
			}
			m.logger.Warn("dial failed", "url", m.cfg.URL, "error", err)
			m.reportError(err)
			m.setState(StateDisconnected)
			if !m.backoff(ctx) {
				return
			}
			continue
		}

		// Close may have run while the dial was in flight. The conn is not
		// committed yet, so nobody else will close it.
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			conn.Close()
			return
		}
		m.conn = conn
		m.attempts = 0
		m.mu.Unlock()

		m.logger.Info("connected", "url", m.cfg.URL)
		m.setState(StateConnected)

		// Queued messages go out first, before any heartbeat ping.
		m.flushQueue(conn)

		hbDone := make(chan struct{})
		m.wg.Add(1)
		go m.heartbeat(conn, hbDone)

		normal := m.readLoop(conn)
		close(hbDone)

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()

		m.setState(StateDisconnected)

		if normal || ctx.Err() != nil {
			return
		}
		if !m.backoff(ctx) {
			return
		}
	}
}

func (m *manager) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, m.cfg.URL, nil)
	return conn, err
}

// backoff waits base * 2^attempts before the next attempt. Returns false
// once attempts are exhausted or the manager is shutting down.
func (m *manager) backoff(ctx context.Context) bool {
	m.mu.Lock()
	attempt := m.attempts
	if attempt >= m.cfg.MaxReconnectAttempts {
		m.mu.Unlock()
		m.fatal()
		return false
	}
	m.attempts++
	m.mu.Unlock()

	delay := m.cfg.ReconnectBaseDelay * (1 << attempt)
	m.logger.Info("reconnecting",
		"attempt", attempt+1,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"delay", delay,
	)

	select {
	case <-ctx.Done():
		return false
	case <-m.done:
		return false
	case <-time.After(delay):
		return true
	}
}

// fatal surfaces the end of automatic recovery. The user has to re-trigger
// the connection, typically by reloading.
func (m *manager) fatal() {
	m.logger.Error("reconnect attempts exhausted", "url", m.cfg.URL)

	// Consumers reset their replicated state on this signal, so it must
	// not be lost. Evict the oldest buffered error until it fits.
	for sent := false; !sent; {
		select {
		case m.errs <- ErrReconnectExhausted:
			sent = true
		default:
			select {
			case <-m.errs:
			default:
			}
		}
	}

	if m.alerts != nil {
		m.alerts.Push(toast.Notification{
			Level: toast.LevelError,
			Title: "Connection lost",
			Body:  "Lost connection to server. Please refresh the page.",
		})
	}
}

// readLoop delivers inbound frames until the connection dies. Returns true
// for a normal or intentional closure.
func (m *manager) readLoop(conn *websocket.Conn) bool {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-m.done:
				return true
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				m.logger.Info("connection closed normally")
				return true
			}
			m.setState(StateError)
			m.logger.Warn("connection closed abnormally", "error", err)
			m.reportError(err)
			return false
		}

		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			m.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		// Heartbeat replies stop here.
		if msg.Type == protocol.TypePong {
			continue
		}

		m.mu.Lock()
		m.lastMsg = &msg
		m.history = append(m.history, msg)
		if len(m.history) > historyLimit {
			m.history = m.history[len(m.history)-historyLimit:]
		}
		m.mu.Unlock()

		select {
		case m.messages <- msg:
		case <-m.done:
			return true
		default:
			m.logger.Warn("message buffer full, dropping message", "type", msg.Type)
		}
	}
}

// heartbeat sends a ping message every interval while the connection is up.
func (m *manager) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-m.done:
			return
		case <-ticker.C:
			msg, err := protocol.NewMessage(protocol.TypePing, nil)
			if err != nil {
				continue
			}
			if err := m.write(conn, msg); err != nil {
				m.logger.Debug("heartbeat send failed", "error", err)
			}
		}
	}
}

// flushQueue drains the outbound queue in submission order. Messages that
// fail to write go back to the front of the queue.
func (m *manager) flushQueue(conn *websocket.Conn) {
	m.mu.Lock()
	pending := m.queue
	m.queue = nil
	m.mu.Unlock()

	for i, msg := range pending {
		if err := m.write(conn, msg); err != nil {
			m.logger.Warn("queue flush interrupted", "sent", i, "pending", len(pending)-i, "error", err)
			m.mu.Lock()
			m.queue = append(pending[i:], m.queue...)
			m.mu.Unlock()
			return
		}
	}

	if len(pending) > 0 {
		m.logger.Debug("flushed queued messages", "count", len(pending))
	}
}

func (m *manager) write(conn *websocket.Conn, msg protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (m *manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	select {
	case m.states <- s:
	default:
		m.logger.Debug("state channel full, dropping transition", "state", s)
	}
}

func (m *manager) reportError(err error) {
	select {
	case m.errs <- err:
	default:
	}
}
