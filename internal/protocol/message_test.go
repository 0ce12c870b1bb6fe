package protocol

import (
	"errors"
	"testing"
)

func TestNewMessage_Stamps(t *testing.T) {
	msg, err := NewMessage(TypeJoinRoom, JoinRoomPayload{
		RoomID: "room-1",
		User:   UserDescriptor{ID: "u1", Name: "Mina"},
	})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if msg.Type != TypeJoinRoom {
		t.Errorf("Type = %q, want %q", msg.Type, TypeJoinRoom)
	}
	if msg.ID == "" {
		t.Error("ID should be stamped")
	}
	if msg.Timestamp == 0 {
		t.Error("Timestamp should be stamped")
	}

	var p JoinRoomPayload
	if err := msg.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if p.RoomID != "room-1" || p.User.ID != "u1" {
		t.Errorf("payload round trip: got %+v", p)
	}
}

func TestNewMessage_UniqueIDs(t *testing.T) {
	a, _ := NewMessage(TypePing, nil)
	b, _ := NewMessage(TypePing, nil)
	if a.ID == b.ID {
		t.Errorf("ids should differ, both %q", a.ID)
	}
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"valid", `{"type":"data_update","payload":{"event":"e"},"timestamp":1,"id":"m1"}`, nil},
		{"no payload", `{"type":"ping"}`, nil},
		{"not json", `{{{`, ErrMalformedMessage},
		{"missing type", `{"payload":{}}`, ErrMissingType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.data))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("DecodeMessage failed: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDataEventPayload_Shapes(t *testing.T) {
	list := DataEventPayload{Event: "e", Data: []byte(`[{"id":"a"},{"id":"b"}]`)}
	entities, ok, err := list.Collection()
	if err != nil || !ok {
		t.Fatalf("Collection: ok=%v err=%v", ok, err)
	}
	if len(entities) != 2 || entities[0].ID() != "a" {
		t.Errorf("entities = %+v", entities)
	}

	single := DataEventPayload{Event: "e", Data: []byte(`{"id":"a","status":"paid"}`)}
	if _, ok, _ := single.Collection(); ok {
		t.Error("object should not decode as collection")
	}
	entity, err := single.Entity()
	if err != nil {
		t.Fatalf("Entity failed: %v", err)
	}
	if entity.ID() != "a" || entity["status"] != "paid" {
		t.Errorf("entity = %+v", entity)
	}
}

func TestEntity_ID(t *testing.T) {
	if got := (Entity{"id": "x"}).ID(); got != "x" {
		t.Errorf("ID = %q, want x", got)
	}
	if got := (Entity{"id": 42}).ID(); got != "" {
		t.Errorf("non-string id should yield empty, got %q", got)
	}
	if got := (Entity{}).ID(); got != "" {
		t.Errorf("missing id should yield empty, got %q", got)
	}
}
