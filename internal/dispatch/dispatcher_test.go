package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/academyos/realtime/internal/protocol"
)

func TestDispatcher_Routes(t *testing.T) {
	d := New(nil)

	var gotData, gotPing []protocol.Message
	d.Register(protocol.TypeDataUpdate, func(msg protocol.Message) {
		gotData = append(gotData, msg)
	})
	d.Register(protocol.TypePing, func(msg protocol.Message) {
		gotPing = append(gotPing, msg)
	})

	d.Dispatch(protocol.Message{Type: protocol.TypeDataUpdate, ID: "a"})
	d.Dispatch(protocol.Message{Type: protocol.TypeDataUpdate, ID: "b"})
	d.Dispatch(protocol.Message{Type: protocol.TypePing, ID: "c"})

	if len(gotData) != 2 || gotData[0].ID != "a" || gotData[1].ID != "b" {
		t.Errorf("data_update handler got %+v", gotData)
	}
	if len(gotPing) != 1 || gotPing[0].ID != "c" {
		t.Errorf("ping handler got %+v", gotPing)
	}

	stats := d.Stats()
	if stats.Received != 3 || stats.Dispatched != 3 || stats.Dropped != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDispatcher_FallbackAndDrop(t *testing.T) {
	d := New(nil)

	d.Dispatch(protocol.Message{Type: "attendance_marked"})
	if stats := d.Stats(); stats.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", stats.Dropped)
	}

	var fallback []string
	d.RegisterFallback(func(msg protocol.Message) {
		fallback = append(fallback, msg.Type)
	})
	d.Register(protocol.TypePing, func(protocol.Message) {})

	d.Dispatch(protocol.Message{Type: "attendance_marked"})
	d.Dispatch(protocol.Message{Type: protocol.TypePing})

	if len(fallback) != 1 || fallback[0] != "attendance_marked" {
		t.Errorf("fallback got %v", fallback)
	}
	if stats := d.Stats(); stats.Dropped != 1 {
		t.Errorf("dropped = %d, want 1 after fallback registered", stats.Dropped)
	}
}

func TestDispatcher_Run(t *testing.T) {
	d := New(nil)

	done := make(chan protocol.Message, 4)
	d.Register(protocol.TypeNotification, func(msg protocol.Message) {
		done <- msg
	})

	in := make(chan protocol.Message, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan struct{})
	go func() {
		d.Run(ctx, in)
		close(finished)
	}()

	in <- protocol.Message{Type: protocol.TypeNotification, ID: "n1"}
	select {
	case msg := <-done:
		if msg.ID != "n1" {
			t.Errorf("got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for dispatch")
	}

	close(in)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
}
