package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrMissingType      = errors.New("message has no type")
)

// Message type catalogue. Direction noted where it matters.
const (
	// Control (outbound)
	TypeAuth        = "auth"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeFetchData   = "fetch_data"

	// Heartbeat
	TypePing = "ping"
	TypePong = "pong"

	// Data synchronization (inbound)
	TypeDataUpdate  = "data_update"
	TypeDataCreated = "data_created"
	TypeDataUpdated = "data_updated"
	TypeDataDeleted = "data_deleted"
	TypeError       = "error"

	// Notifications (inbound)
	TypeNotification = "notification"

	// Presence
	TypeJoinRoom       = "join_room"
	TypeLeaveRoom      = "leave_room"
	TypeUpdateActivity = "update_activity"
	TypeUserJoined     = "user_joined"
	TypeUserLeft       = "user_left"
	TypeUsersList      = "users_list"
	TypeUserActivity   = "user_activity"

	// Collaboration
	TypeJoinDocument     = "join_document"
	TypeOperation        = "operation"
	TypeCursorUpdate     = "cursor_update"
	TypeDocumentState    = "document_state"
	TypeUserLeftDocument = "user_left_document"
	TypeDocumentLocked   = "document_locked"
)

// Message is the wire envelope for every frame, both directions.
// Payload stays raw until a consumer decodes it into its typed form.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"` // ms since epoch
	ID        string          `json:"id,omitempty"`
}

// NewMessage builds an outbound message: marshals the payload and stamps
// the client-side id and timestamp. The id is for correlation and logging,
// not deduplication.
func NewMessage(msgType string, payload any) (Message, error) {
	msg := Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		ID:        uuid.NewString(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		msg.Payload = data
	}

	return msg, nil
}

// Encode serializes the message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses an inbound frame. Frames that are not JSON or carry
// no type are rejected here; callers drop them without touching the
// connection.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return Message{}, ErrMissingType
	}
	return msg, nil
}

// DecodePayload unmarshals the raw payload into a typed payload struct.
func (m Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
