package protocol

import (
	"errors"
	"fmt"
)

// Operation kinds.
const (
	OpInsert  = "insert"
	OpDelete  = "delete"
	OpReplace = "replace"
)

// ErrUnknownOperation is returned for operation types outside the catalogue.
var ErrUnknownOperation = errors.New("unknown operation type")

// Operation is a single text edit. Operations are applied strictly in
// arrival order with no version vector: concurrent editors race and the
// last writer's positions win.
type Operation struct {
	Type     string `json:"type"`
	Position int    `json:"position"`
	Length   int    `json:"length,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Validate rejects shapes that can never apply cleanly.
func (op Operation) Validate() error {
	switch op.Type {
	case OpInsert, OpDelete, OpReplace:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperation, op.Type)
	}
	if op.Position < 0 {
		return fmt.Errorf("%s: negative position %d", op.Type, op.Position)
	}
	if op.Length < 0 {
		return fmt.Errorf("%s: negative length %d", op.Type, op.Length)
	}
	return nil
}

// Apply transforms document content. Out-of-range positions clamp to the
// content bounds, matching how the server applies the same operations.
func (op Operation) Apply(content string) (string, error) {
	if err := op.Validate(); err != nil {
		return content, err
	}

	pos := clamp(op.Position, len(content))

	switch op.Type {
	case OpInsert:
		return content[:pos] + op.Text + content[pos:], nil
	case OpDelete:
		end := clamp(pos+op.Length, len(content))
		return content[:pos] + content[end:], nil
	case OpReplace:
		end := clamp(pos+op.Length, len(content))
		return content[:pos] + op.Text + content[end:], nil
	}

	return content, nil
}

func clamp(i, max int) int {
	if i > max {
		return max
	}
	return i
}
