// synctail connects the real-time consumers to an academy server and
// tails live updates to the console.
// Usage: go run ./cmd/synctail --config configs/client.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/academyos/realtime/internal/collab"
	"github.com/academyos/realtime/internal/config"
	"github.com/academyos/realtime/internal/connection"
	"github.com/academyos/realtime/internal/datasync"
	"github.com/academyos/realtime/internal/model"
	"github.com/academyos/realtime/internal/notify"
	"github.com/academyos/realtime/internal/presence"
	"github.com/academyos/realtime/internal/protocol"
	"github.com/academyos/realtime/internal/toast"
	"github.com/academyos/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	room := flag.String("room", "", "presence room to join")
	document := flag.String("document", "", "shared document to follow")
	verbose := flag.Bool("verbose", false, "print full update JSON")
	desktop := flag.Bool("desktop", false, "raise desktop-style notifications on stdout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	logger.Info("synctail starting",
		"version", version.String(),
		"server", cfg.Server.BaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	toasts := toast.NewStore(100)
	connCfg := connection.Config{
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.Connection.ReconnectBaseDelay,
		HeartbeatInterval:    cfg.Connection.HeartbeatInterval,
		HandshakeTimeout:     cfg.Connection.HandshakeTimeout,
		WriteTimeout:         cfg.Connection.WriteTimeout,
		BufferSize:           cfg.Connection.BufferSize,
	}
	newConn := func(url string) connection.Conn {
		c := connCfg
		c.URL = url
		return connection.New(c, toasts, logger)
	}

	g, ctx := errgroup.WithContext(ctx)

	// Data synchronizer
	syncCfg := datasync.Config{
		Endpoint: cfg.Sync.Endpoint,
		Events:   cfg.Sync.Events,
	}
	if syncCfg.Endpoint == "" {
		syncCfg.Endpoint = "students"
		syncCfg.Events = []string{
			model.EventStudentCreated,
			model.EventStudentUpdated,
			model.EventInvoiceUpdated,
			model.EventAttendanceMarked,
		}
	}
	if cfg.Auth.UserID != "" {
		syncCfg.Auth = &protocol.AuthPayload{
			UserID: cfg.Auth.UserID,
			Token:  cfg.Auth.Token,
		}
	}
	sync := datasync.New(syncCfg, newConn(cfg.Server.DataURL()), logger)
	if err := sync.Start(ctx); err != nil {
		logger.Error("failed to start synchronizer", "error", err)
		os.Exit(1)
	}
	g.Go(func() error {
		defer sync.Stop()
		return tailUpdates(ctx, sync, *verbose)
	})

	// Notifications
	var platform notify.Platform
	if *desktop {
		platform = &consolePlatform{}
	}
	bridge := notify.New(newConn(cfg.Server.NotificationsURL()), toasts, platform, logger)
	if err := bridge.Start(ctx); err != nil {
		logger.Error("failed to start notification bridge", "error", err)
		os.Exit(1)
	}
	g.Go(func() error {
		defer bridge.Stop()
		<-ctx.Done()
		return nil
	})

	// Presence (optional)
	if *room != "" {
		self := protocol.UserDescriptor{
			ID:     cfg.Auth.UserID,
			Name:   cfg.Auth.Name,
			Avatar: cfg.Auth.Avatar,
		}
		tracker := presence.New(*room, self, newConn(cfg.Server.PresenceURL()), logger)
		if err := tracker.Start(ctx); err != nil {
			logger.Error("failed to start presence tracker", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			defer tracker.Stop()
			return tailPresence(ctx, tracker)
		})
	}

	// Collaboration (optional)
	if *document != "" {
		store := collab.New(*document, newConn(cfg.Server.CollaborationURL()), logger)
		if err := store.Start(ctx); err != nil {
			logger.Error("failed to start collaboration store", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			defer store.Stop()
			return tailDocument(ctx, store)
		})
	}

	logger.Info("tailing - press Ctrl+C to stop")

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("tail stopped", "error", err)
		os.Exit(1)
	}

	for _, n := range toasts.All() {
		fmt.Printf("[TOAST %s] %s: %s\n", n.Level, n.Title, n.Body)
	}
	logger.Info("shutdown complete")
}

func tailUpdates(ctx context.Context, s *datasync.Synchronizer, verbose bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-s.Updates():
			if verbose {
				data, _ := json.MarshalIndent(u, "", "  ")
				fmt.Printf("[UPDATE] %s\n", data)
				continue
			}
			switch {
			case u.Deleted != "":
				fmt.Printf("[DELETE] event=%s id=%s\n", u.Event, u.Deleted)
			case u.Data != nil:
				fmt.Printf("[PATCH] event=%s id=%s\n", u.Event, u.Data.ID())
			default:
				fmt.Printf("[EVENT] event=%s\n", u.Event)
			}
		case err := <-s.Errors():
			fmt.Printf("[SYNC ERROR] %v\n", err)
		}
	}
}

func tailPresence(ctx context.Context, t *presence.Tracker) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			users := t.OnlineUsers()
			names := make([]string, 0, len(users))
			for _, u := range users {
				names = append(names, u.Name)
			}
			fmt.Printf("[PRESENCE] online=%d %v\n", len(users), names)
		}
	}
}

func tailDocument(ctx context.Context, s *collab.Store) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			doc := s.Document()
			if doc == nil {
				continue
			}
			fmt.Printf("[DOCUMENT] len=%d locked=%v cursors=%d\n",
				len(doc.Content), s.IsLocked(), len(s.Cursors()))
		}
	}
}

// consolePlatform raises "desktop" notifications on stdout. Permission is
// granted implicitly by passing --desktop.
type consolePlatform struct{}

func (p *consolePlatform) PermissionGranted() bool { return true }

func (p *consolePlatform) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (p *consolePlatform) Raise(n notify.PlatformNotification) error {
	if n.OnClick != "" {
		fmt.Printf("[DESKTOP] %s: %s (click: %s)\n", n.Title, n.Body, n.OnClick)
		return nil
	}
	fmt.Printf("[DESKTOP] %s: %s\n", n.Title, n.Body)
	return nil
}
