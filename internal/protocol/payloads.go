package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AuthPayload authenticates the connection after every (re)open.
type AuthPayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// SubscribePayload declares interest in one event at an endpoint.
// The same shape is used for unsubscribe.
type SubscribePayload struct {
	Event    string `json:"event"`
	Endpoint string `json:"endpoint"`
}

// FetchDataPayload requests an initial full fetch for an endpoint.
type FetchDataPayload struct {
	Endpoint string `json:"endpoint"`
}

// Entity is a JSON object carried by data patch messages. Identity is the
// "id" field, unique within a cached collection.
type Entity map[string]any

// ID returns the entity's string id, or "" if absent.
func (e Entity) ID() string {
	id, _ := e["id"].(string)
	return id
}

// DataEventPayload is the body of data_update / data_created /
// data_updated / data_deleted messages. Data is either a single entity or
// an ordered collection; deletes carry only Event and ID.
type DataEventPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    string          `json:"id,omitempty"`
}

// Entity decodes Data as a single entity.
func (p DataEventPayload) Entity() (Entity, error) {
	var e Entity
	if err := json.Unmarshal(p.Data, &e); err != nil {
		return nil, fmt.Errorf("decode %s entity: %w", p.Event, err)
	}
	return e, nil
}

// Collection decodes Data as an ordered entity list. ok is false when Data
// is not array-shaped.
func (p DataEventPayload) Collection() (entities []Entity, ok bool, err error) {
	trimmed := bytes.TrimLeft(p.Data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false, nil
	}
	if err := json.Unmarshal(p.Data, &entities); err != nil {
		return nil, false, fmt.Errorf("decode %s collection: %w", p.Event, err)
	}
	return entities, true, nil
}

// NotificationActions holds the optional click action embedded in a
// notification. The action is an opaque route or command identifier the
// platform layer interprets.
type NotificationActions struct {
	OnClick string `json:"onClick,omitempty"`
}

// NotificationPayload is the body of a notification message.
type NotificationPayload struct {
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Type    string               `json:"type,omitempty"`
	Actions *NotificationActions `json:"actions,omitempty"`
}

// UserDescriptor identifies a user in a presence roster.
type UserDescriptor struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// JoinRoomPayload announces this user entering a presence room.
type JoinRoomPayload struct {
	RoomID string         `json:"roomId"`
	User   UserDescriptor `json:"user"`
}

// LeaveRoomPayload announces this user leaving a presence room.
type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

// UpdateActivityPayload broadcasts an activity ping for this user.
type UpdateActivityPayload struct {
	RoomID   string         `json:"roomId"`
	Activity map[string]any `json:"activity"`
}

// UserJoinedPayload is the inbound echo of a user entering the room.
type UserJoinedPayload struct {
	User UserDescriptor `json:"user"`
}

// UserLeftPayload is the inbound echo of a user leaving the room.
type UserLeftPayload struct {
	UserID string `json:"userId"`
}

// UsersListPayload replaces the whole roster, used for initial sync.
type UsersListPayload struct {
	Users []UserDescriptor `json:"users"`
}

// UserActivityPayload is an inbound activity ping from another user.
type UserActivityPayload struct {
	UserID   string         `json:"userId"`
	Activity map[string]any `json:"activity"`
}

// JoinDocumentPayload announces this user opening a shared document.
type JoinDocumentPayload struct {
	DocumentID string `json:"documentId"`
}

// Document is a shared document's replicated state. Version is opaque to
// the client; the server owns its meaning.
type Document struct {
	Content string          `json:"content"`
	Version json.RawMessage `json:"version,omitempty"`
}

// DocumentStatePayload replaces the whole document (sent on join and
// whenever the server re-snapshots).
type DocumentStatePayload struct {
	Document Document `json:"document"`
}

// OperationPayload carries one edit operation, both directions.
type OperationPayload struct {
	DocumentID string    `json:"documentId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	Operation  Operation `json:"operation"`
}

// CursorPosition is a caret location in a shared document.
type CursorPosition struct {
	Position     int `json:"position"`
	SelectionEnd int `json:"selectionEnd,omitempty"`
}

// CursorUpdatePayload carries a cursor move, both directions.
type CursorUpdatePayload struct {
	DocumentID string         `json:"documentId,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	Cursor     CursorPosition `json:"cursor"`
}

// UserLeftDocumentPayload is the inbound echo of a collaborator leaving.
type UserLeftDocumentPayload struct {
	UserID string `json:"userId"`
}

// DocumentLockedPayload toggles the document's lock flag.
type DocumentLockedPayload struct {
	Locked bool `json:"locked"`
}
