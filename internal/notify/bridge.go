package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/academyos/realtime/internal/connection"
	"github.com/academyos/realtime/internal/dispatch"
	"github.com/academyos/realtime/internal/protocol"
	"github.com/academyos/realtime/internal/toast"
)

// PlatformNotification is an OS-level notification. OnClick, when set, is
// the action to invoke if the user clicks it.
type PlatformNotification struct {
	ID      string
	Title   string
	Body    string
	OnClick string
}

// Platform raises OS-level notifications. Implementations decide how the
// click action is dispatched.
type Platform interface {
	// PermissionGranted reports whether notifications may be raised.
	PermissionGranted() bool

	// RequestPermission asks the user for notification permission.
	RequestPermission(ctx context.Context) (bool, error)

	// Raise shows one notification.
	Raise(n PlatformNotification) error
}

// Bridge converts inbound notification messages into toasts and platform
// notifications. It owns its own connection to the notifications endpoint.
type Bridge struct {
	conn     connection.Conn
	toasts   toast.Sink
	platform Platform // nil = in-app only
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a bridge. platform may be nil for in-app-only delivery.
func New(conn connection.Conn, toasts toast.Sink, platform Platform, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		conn:     conn,
		toasts:   toasts,
		platform: platform,
		logger:   logger,
	}
}

// Start connects to the notifications endpoint.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect notifications: %w", err)
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.run(ctx)

	return nil
}

// Stop tears down the connection.
func (b *Bridge) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	err := b.conn.Close()
	b.wg.Wait()
	return err
}

// IsConnected reports the underlying connection state.
func (b *Bridge) IsConnected() bool { return b.conn.IsConnected() }

// RequestPermission asks the platform for notification permission. Called
// by the UI at a moment of its choosing; never invoked automatically.
func (b *Bridge) RequestPermission(ctx context.Context) (bool, error) {
	if b.platform == nil {
		return false, nil
	}
	return b.platform.RequestPermission(ctx)
}

func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()

	d := dispatch.New(b.logger)
	d.Register(protocol.TypeNotification, b.onNotification)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-b.conn.Messages():
			if !ok {
				return
			}
			d.Dispatch(msg)
		case err, ok := <-b.conn.Errors():
			if !ok {
				return
			}
			b.logger.Warn("notification connection error", "error", err)
		}
	}
}

func (b *Bridge) onNotification(msg protocol.Message) {
	var p protocol.NotificationPayload
	if err := msg.DecodePayload(&p); err != nil {
		b.logger.Warn("dropping notification", "error", err)
		return
	}

	level := toast.Level(p.Type)
	if level == "" {
		level = toast.LevelInfo
	}
	b.toasts.Push(toast.Notification{
		Level: level,
		Title: p.Title,
		Body:  p.Body,
	})

	if b.platform == nil || !b.platform.PermissionGranted() {
		return
	}

	n := PlatformNotification{
		ID:    msg.ID,
		Title: p.Title,
		Body:  p.Body,
	}
	if p.Actions != nil {
		n.OnClick = p.Actions.OnClick
	}
	if err := b.platform.Raise(n); err != nil {
		b.logger.Warn("platform notification failed", "error", err)
	}
}
