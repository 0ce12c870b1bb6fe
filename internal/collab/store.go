package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/academyos/realtime/internal/connection"
	"github.com/academyos/realtime/internal/dispatch"
	"github.com/academyos/realtime/internal/protocol"
)

// Store owns one connection and the replicated state of one document.
type Store struct {
	documentID string
	conn       connection.Conn
	logger     *slog.Logger

	mu       sync.RWMutex
	document *protocol.Document
	cursors  map[string]protocol.CursorPosition
	locked   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a store for documentID over the given connection.
func New(documentID string, conn connection.Conn, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		documentID: documentID,
		conn:       conn,
		logger:     logger.With("document", documentID),
		cursors:    make(map[string]protocol.CursorPosition),
	}
}

// Start connects and joins the document.
func (s *Store) Start(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect collaboration: %w", err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

// Stop tears down the connection.
func (s *Store) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

// Document returns the current document, or nil before the first snapshot.
func (s *Store) Document() *protocol.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.document == nil {
		return nil
	}
	doc := *s.document
	return &doc
}

// Cursors returns a snapshot of remote cursor positions by user id.
func (s *Store) Cursors() map[string]protocol.CursorPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]protocol.CursorPosition, len(s.cursors))
	for id, c := range s.cursors {
		out[id] = c
	}
	return out
}

// IsLocked reports the document lock flag.
func (s *Store) IsLocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locked
}

// IsConnected reports the underlying connection state.
func (s *Store) IsConnected() bool { return s.conn.IsConnected() }

// SendOperation submits a local edit. Edits are silently dropped while the
// document is locked or the connection is down; there is no local
// buffering or retry.
func (s *Store) SendOperation(op protocol.Operation) {
	if !s.conn.IsConnected() || s.IsLocked() {
		return
	}
	if err := op.Validate(); err != nil {
		s.logger.Warn("rejecting local operation", "error", err)
		return
	}
	s.conn.SendType(protocol.TypeOperation, protocol.OperationPayload{
		DocumentID: s.documentID,
		Operation:  op,
	})
}

// UpdateCursor broadcasts this user's caret position.
func (s *Store) UpdateCursor(cursor protocol.CursorPosition) {
	if !s.conn.IsConnected() {
		return
	}
	s.conn.SendType(protocol.TypeCursorUpdate, protocol.CursorUpdatePayload{
		DocumentID: s.documentID,
		Cursor:     cursor,
	})
}

func (s *Store) run(ctx context.Context) {
	defer s.wg.Done()

	d := s.dispatcher()

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-s.conn.States():
			if !ok {
				return
			}
			if state == connection.StateConnected {
				s.join()
			}
		case msg, ok := <-s.conn.Messages():
			if !ok {
				return
			}
			d.Dispatch(msg)
		case err, ok := <-s.conn.Errors():
			if !ok {
				return
			}
			if errors.Is(err, connection.ErrReconnectExhausted) {
				s.reset()
			}
			s.logger.Warn("collaboration connection error", "error", err)
		}
	}
}

func (s *Store) dispatcher() *dispatch.Dispatcher {
	d := dispatch.New(s.logger)
	d.Register(protocol.TypeDocumentState, s.onDocumentState)
	d.Register(protocol.TypeOperation, s.onOperation)
	d.Register(protocol.TypeCursorUpdate, s.onCursorUpdate)
	d.Register(protocol.TypeUserLeftDocument, s.onUserLeftDocument)
	d.Register(protocol.TypeDocumentLocked, s.onDocumentLocked)
	return d
}

func (s *Store) join() {
	s.conn.SendType(protocol.TypeJoinDocument, protocol.JoinDocumentPayload{
		DocumentID: s.documentID,
	})
}

// onDocumentState replaces the whole document.
func (s *Store) onDocumentState(msg protocol.Message) {
	var p protocol.DocumentStatePayload
	if err := msg.DecodePayload(&p); err != nil {
		s.logger.Warn("dropping document_state", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := p.Document
	s.document = &doc
}

// onOperation applies a remote edit to the current content. Operations
// arriving before the first snapshot have nothing to apply to and are
// dropped.
func (s *Store) onOperation(msg protocol.Message) {
	var p protocol.OperationPayload
	if err := msg.DecodePayload(&p); err != nil {
		s.logger.Warn("dropping operation", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.document == nil {
		s.logger.Warn("operation before document_state, dropping")
		return
	}

	content, err := p.Operation.Apply(s.document.Content)
	if err != nil {
		s.logger.Warn("dropping operation", "error", err)
		return
	}
	s.document.Content = content
}

// onCursorUpdate records a remote caret position.
func (s *Store) onCursorUpdate(msg protocol.Message) {
	var p protocol.CursorUpdatePayload
	if err := msg.DecodePayload(&p); err != nil {
		s.logger.Warn("dropping cursor_update", "error", err)
		return
	}
	if p.UserID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[p.UserID] = p.Cursor
}

// onUserLeftDocument forgets that user's cursor.
func (s *Store) onUserLeftDocument(msg protocol.Message) {
	var p protocol.UserLeftDocumentPayload
	if err := msg.DecodePayload(&p); err != nil {
		s.logger.Warn("dropping user_left_document", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, p.UserID)
}

// onDocumentLocked toggles the lock flag.
func (s *Store) onDocumentLocked(msg protocol.Message) {
	var p protocol.DocumentLockedPayload
	if err := msg.DecodePayload(&p); err != nil {
		s.logger.Warn("dropping document_locked", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = p.Locked
}

// reset drops replicated document state once the connection is fatally
// lost.
func (s *Store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = nil
	s.cursors = make(map[string]protocol.CursorPosition)
	s.locked = false
}
