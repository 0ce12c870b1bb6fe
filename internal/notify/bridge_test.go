package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/academyos/realtime/internal/conntest"
	"github.com/academyos/realtime/internal/protocol"
	"github.com/academyos/realtime/internal/toast"
)

type fakePlatform struct {
	mu      sync.Mutex
	granted bool
	asked   bool
	raised  []PlatformNotification
}

func (p *fakePlatform) PermissionGranted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

func (p *fakePlatform) RequestPermission(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = true
	p.granted = true
	return true, nil
}

func (p *fakePlatform) Raise(n PlatformNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raised = append(p.raised, n)
	return nil
}

func (p *fakePlatform) raisedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.raised)
}

func startBridge(t *testing.T, platform Platform) (*Bridge, *conntest.Fake, *toast.Store) {
	t.Helper()

	fake := conntest.New()
	toasts := toast.NewStore(10)
	bridge := New(fake, toasts, platform, nil)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { bridge.Stop() })

	return bridge, fake, toasts
}

func eventually(t *testing.T, cond func() bool, desc string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", desc)
}

func TestBridge_ToastsEveryNotification(t *testing.T) {
	_, fake, toasts := startBridge(t, nil)

	fake.InjectType(protocol.TypeNotification, protocol.NotificationPayload{
		Title: "Invoice paid",
		Body:  "Invoice inv1 settled",
		Type:  "success",
	})
	eventually(t, func() bool { return len(toasts.All()) == 1 }, "toast")

	got := toasts.All()[0]
	if got.Level != toast.LevelSuccess || got.Title != "Invoice paid" {
		t.Errorf("toast = %+v", got)
	}
}

func TestBridge_UnknownLevelDefaultsToInfo(t *testing.T) {
	_, fake, toasts := startBridge(t, nil)

	fake.InjectType(protocol.TypeNotification, protocol.NotificationPayload{Title: "Hi"})
	eventually(t, func() bool { return len(toasts.All()) == 1 }, "toast")

	if got := toasts.All()[0].Level; got != toast.LevelInfo {
		t.Errorf("level = %s, want info", got)
	}
}

func TestBridge_PlatformNeedsPermission(t *testing.T) {
	platform := &fakePlatform{}
	bridge, fake, toasts := startBridge(t, platform)

	fake.InjectType(protocol.TypeNotification, protocol.NotificationPayload{Title: "first"})
	eventually(t, func() bool { return len(toasts.All()) == 1 }, "toast without permission")

	if platform.raisedCount() != 0 {
		t.Error("platform notification raised without permission")
	}

	granted, err := bridge.RequestPermission(context.Background())
	if err != nil || !granted {
		t.Fatalf("RequestPermission = %v, %v", granted, err)
	}

	fake.InjectType(protocol.TypeNotification, protocol.NotificationPayload{
		Title:   "second",
		Actions: &protocol.NotificationActions{OnClick: "/invoices/inv1"},
	})
	eventually(t, func() bool { return platform.raisedCount() == 1 }, "platform notification")

	platform.mu.Lock()
	raised := platform.raised[0]
	platform.mu.Unlock()
	if raised.Title != "second" || raised.OnClick != "/invoices/inv1" || raised.ID == "" {
		t.Errorf("raised = %+v", raised)
	}

	// In-app toasts keep flowing alongside platform delivery.
	eventually(t, func() bool { return len(toasts.All()) == 2 }, "second toast")
}

func TestBridge_NilPlatformPermission(t *testing.T) {
	bridge, _, _ := startBridge(t, nil)

	granted, err := bridge.RequestPermission(context.Background())
	if err != nil {
		t.Fatalf("RequestPermission failed: %v", err)
	}
	if granted {
		t.Error("nil platform can never grant permission")
	}
}

func TestBridge_MalformedNotificationDropped(t *testing.T) {
	_, fake, toasts := startBridge(t, nil)

	fake.Inject(protocol.Message{Type: protocol.TypeNotification, Payload: []byte(`"just a string"`)})
	fake.InjectType(protocol.TypeNotification, protocol.NotificationPayload{Title: "ok"})

	eventually(t, func() bool { return len(toasts.All()) == 1 }, "valid toast")
	if got := toasts.All()[0].Title; got != "ok" {
		t.Errorf("toast = %q", got)
	}
}
