package datasync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/academyos/realtime/internal/connection"
	"github.com/academyos/realtime/internal/conntest"
	"github.com/academyos/realtime/internal/protocol"
)

func startSynchronizer(t *testing.T, cfg Config) (*Synchronizer, *conntest.Fake) {
	t.Helper()

	fake := conntest.New()
	sync := New(cfg, fake, nil)
	if err := sync.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { sync.Stop() })

	return sync, fake
}

func waitSent(t *testing.T, fake *conntest.Fake, want int) []protocol.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sent := fake.Sent(); len(sent) >= want {
			return sent
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d sent messages, have %d", want, len(fake.Sent()))
	return nil
}

func waitUpdate(t *testing.T, sync *Synchronizer) Update {
	t.Helper()
	select {
	case u := <-sync.Updates():
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for update")
		return Update{}
	}
}

func inject(t *testing.T, fake *conntest.Fake, msgType, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := fake.InjectType(msgType, protocol.DataEventPayload{Event: event, Data: raw}); err != nil {
		t.Fatalf("inject: %v", err)
	}
}

func TestSynchronizer_Handshake(t *testing.T) {
	_, fake := startSynchronizer(t, Config{
		Endpoint: "students",
		Events:   []string{"student_created", "student_updated"},
		Auth:     &protocol.AuthPayload{UserID: "u1", Token: "tok"},
	})

	sent := waitSent(t, fake, 4)

	// Auth first, then every subscription, then the initial fetch.
	if sent[0].Type != protocol.TypeAuth {
		t.Errorf("first message = %s, want auth", sent[0].Type)
	}
	for i, event := range []string{"student_created", "student_updated"} {
		if sent[1+i].Type != protocol.TypeSubscribe {
			t.Fatalf("message %d = %s, want subscribe", 1+i, sent[1+i].Type)
		}
		var p protocol.SubscribePayload
		if err := sent[1+i].DecodePayload(&p); err != nil {
			t.Fatalf("decode subscribe: %v", err)
		}
		if p.Event != event || p.Endpoint != "students" {
			t.Errorf("subscribe %d = %+v", i, p)
		}
	}
	if sent[3].Type != protocol.TypeFetchData {
		t.Errorf("last message = %s, want fetch_data", sent[3].Type)
	}
}

func TestSynchronizer_NoAuthSkipsAuth(t *testing.T) {
	_, fake := startSynchronizer(t, Config{Endpoint: "students", Events: []string{"e"}})

	sent := waitSent(t, fake, 2)
	if sent[0].Type != protocol.TypeSubscribe {
		t.Errorf("first message = %s, want subscribe", sent[0].Type)
	}
}

func TestSynchronizer_UpdateReplacesAndClearsLoading(t *testing.T) {
	sync, fake := startSynchronizer(t, Config{Endpoint: "students", Events: []string{"student_updated"}})

	if snap := sync.Snapshot(); !snap.Loading {
		t.Error("cache should start in loading state")
	}

	inject(t, fake, protocol.TypeDataUpdate, "student_updated", []map[string]any{
		{"id": "s1", "name": "Aya"},
		{"id": "s2", "name": "Ben"},
	})
	waitUpdate(t, sync)

	snap := sync.Snapshot()
	if snap.Loading {
		t.Error("loading should clear after first data_update")
	}
	if !snap.IsList || len(snap.List) != 2 || snap.List[0].ID() != "s1" {
		t.Errorf("snapshot = %+v", snap)
	}

	// A second update replaces wholesale.
	inject(t, fake, protocol.TypeDataUpdate, "student_updated", []map[string]any{
		{"id": "s3"},
	})
	waitUpdate(t, sync)

	snap = sync.Snapshot()
	if len(snap.List) != 1 || snap.List[0].ID() != "s3" {
		t.Errorf("after replace: %+v", snap.List)
	}
}

func TestSynchronizer_SingleEntityCache(t *testing.T) {
	sync, fake := startSynchronizer(t, Config{Endpoint: "invoices", Events: []string{"invoice_updated"}})

	inject(t, fake, protocol.TypeDataUpdate, "invoice_updated", map[string]any{
		"id": "inv1", "status": "pending", "amount": 120,
	})
	waitUpdate(t, sync)

	snap := sync.Snapshot()
	if snap.IsList {
		t.Fatal("object payload should produce a single-entity cache")
	}
	if snap.Item.ID() != "inv1" || snap.Item["status"] != "pending" {
		t.Errorf("item = %+v", snap.Item)
	}

	// Patch merges shallowly: status flips, amount survives.
	inject(t, fake, protocol.TypeDataUpdated, "invoice_updated", map[string]any{
		"id": "inv1", "status": "paid",
	})
	waitUpdate(t, sync)

	item := sync.Snapshot().Item
	if item["status"] != "paid" {
		t.Errorf("status = %v, want paid", item["status"])
	}
	if item["amount"] != float64(120) {
		t.Errorf("amount = %v, want 120 preserved", item["amount"])
	}
}

func TestSynchronizer_CreatedPrepends(t *testing.T) {
	sync, fake := startSynchronizer(t, Config{Endpoint: "students", Events: []string{"student_created"}})

	inject(t, fake, protocol.TypeDataUpdate, "student_created", []map[string]any{{"id": "s1"}})
	waitUpdate(t, sync)

	inject(t, fake, protocol.TypeDataCreated, "student_created", map[string]any{"id": "s2"})
	waitUpdate(t, sync)

	list := sync.Snapshot().List
	if len(list) != 2 || list[0].ID() != "s2" || list[1].ID() != "s1" {
		t.Errorf("list = %+v, want new entity first", list)
	}
}

func TestSynchronizer_UpdatedMergesByID(t *testing.T) {
	sync, fake := startSynchronizer(t, Config{Endpoint: "invoices", Events: []string{"invoice_updated"}})

	inject(t, fake, protocol.TypeDataUpdate, "invoice_updated", []map[string]any{
		{"id": "inv1", "status": "pending", "studentId": "s1"},
		{"id": "inv2", "status": "pending", "studentId": "s2"},
	})
	waitUpdate(t, sync)

	inject(t, fake, protocol.TypeDataUpdated, "invoice_updated", map[string]any{
		"id": "inv1", "status": "paid",
	})
	u := waitUpdate(t, sync)
	if u.Data.ID() != "inv1" {
		t.Errorf("update data = %+v", u.Data)
	}

	list := sync.Snapshot().List
	if list[0]["status"] != "paid" || list[0]["studentId"] != "s1" {
		t.Errorf("inv1 = %+v, want status merged and studentId preserved", list[0])
	}
	if list[1]["status"] != "pending" {
		t.Errorf("inv2 = %+v, should be untouched", list[1])
	}
}

func TestSynchronizer_DeletedRemoves(t *testing.T) {
	sync, fake := startSynchronizer(t, Config{Endpoint: "students", Events: []string{"student_updated"}})

	inject(t, fake, protocol.TypeDataUpdate, "student_updated", []map[string]any{
		{"id": "s1"}, {"id": "s2"},
	})
	waitUpdate(t, sync)

	if err := fake.InjectType(protocol.TypeDataDeleted, protocol.DataEventPayload{
		Event: "student_updated",
		ID:    "s1",
	}); err != nil {
		t.Fatalf("inject: %v", err)
	}
	u := waitUpdate(t, sync)
	if u.Deleted != "s1" {
		t.Errorf("deleted = %q, want s1", u.Deleted)
	}

	list := sync.Snapshot().List
	if len(list) != 1 || list[0].ID() != "s2" {
		t.Errorf("list = %+v", list)
	}
}

func TestSynchronizer_UndeclaredEventIgnored(t *testing.T) {
	sync, fake := startSynchronizer(t, Config{Endpoint: "students", Events: []string{"student_updated"}})

	inject(t, fake, protocol.TypeDataUpdate, "schedule_updated", []map[string]any{{"id": "x"}})
	inject(t, fake, protocol.TypeDataUpdate, "student_updated", []map[string]any{{"id": "s1"}})
	waitUpdate(t, sync)

	list := sync.Snapshot().List
	if len(list) != 1 || list[0].ID() != "s1" {
		t.Errorf("list = %+v, undeclared event should not apply", list)
	}
}

func TestSynchronizer_ServerErrorKeepsCache(t *testing.T) {
	sync, fake := startSynchronizer(t, Config{Endpoint: "students", Events: []string{"student_updated"}})

	inject(t, fake, protocol.TypeDataUpdate, "student_updated", []map[string]any{{"id": "s1"}})
	waitUpdate(t, sync)

	fake.Inject(protocol.Message{Type: protocol.TypeError, Payload: []byte(`{"message":"boom"}`)})

	select {
	case err := <-sync.Errors():
		var srvErr *ServerError
		if !errors.As(err, &srvErr) {
			t.Errorf("error = %v, want ServerError", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for server error")
	}

	if list := sync.Snapshot().List; len(list) != 1 {
		t.Errorf("cache should survive server errors, got %+v", list)
	}
}

func TestSynchronizer_CustomEventForwarded(t *testing.T) {
	sync, fake := startSynchronizer(t, Config{
		Endpoint: "attendance",
		Events:   []string{"attendance_marked"},
	})

	// Undeclared types are dropped, declared ones forwarded verbatim.
	fake.Inject(protocol.Message{Type: "grade_posted", ID: "g1"})
	fake.Inject(protocol.Message{Type: "attendance_marked", ID: "a1", Payload: []byte(`{"sessionId":"c1"}`)})

	u := waitUpdate(t, sync)
	if u.Event != "attendance_marked" || u.Message.ID != "a1" {
		t.Errorf("update = %+v", u)
	}
}

func TestSynchronizer_RefreshRefetchesKeepingCache(t *testing.T) {
	sync, fake := startSynchronizer(t, Config{Endpoint: "students", Events: []string{"student_updated"}})

	waitSent(t, fake, 2) // subscribe + initial fetch
	inject(t, fake, protocol.TypeDataUpdate, "student_updated", []map[string]any{{"id": "s1"}})
	waitUpdate(t, sync)

	sync.Refresh()

	snap := sync.Snapshot()
	if !snap.Loading {
		t.Error("Refresh should set loading")
	}
	if len(snap.List) != 1 {
		t.Errorf("stale data should stay visible during refresh, got %+v", snap.List)
	}

	fetches := fake.SentOfType(protocol.TypeFetchData)
	if len(fetches) != 2 {
		t.Errorf("fetch count = %d, want 2", len(fetches))
	}
}

func TestSynchronizer_FatalConnectionResetsCache(t *testing.T) {
	sync, fake := startSynchronizer(t, Config{Endpoint: "students", Events: []string{"student_updated"}})

	inject(t, fake, protocol.TypeDataUpdate, "student_updated", []map[string]any{{"id": "s1"}})
	waitUpdate(t, sync)

	fake.Fail(connection.ErrReconnectExhausted)

	select {
	case err := <-sync.Errors():
		if !errors.Is(err, connection.ErrReconnectExhausted) {
			t.Errorf("error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for fatal error")
	}

	snap := sync.Snapshot()
	if len(snap.List) != 0 || !snap.Loading {
		t.Errorf("cache should reset after fatal loss: %+v", snap)
	}
}
