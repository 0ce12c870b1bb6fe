package model

import (
	"encoding/json"
	"fmt"

	"github.com/academyos/realtime/internal/protocol"
)

// Event names published by the academy backend. A synchronizer subscribes
// to the subset its screen cares about.
const (
	EventStudentCreated   = "student_created"
	EventStudentUpdated   = "student_updated"
	EventScheduleUpdated  = "schedule_updated"
	EventInvoiceUpdated   = "invoice_updated"
	EventAttendanceMarked = "attendance_marked"
)

// Student is one enrolled student.
type Student struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Grade      string `json:"grade,omitempty"`
	Phone      string `json:"phone,omitempty"`
	EnrolledAt int64  `json:"enrolledAt,omitempty"` // ms since epoch
	Active     bool   `json:"active,omitempty"`
}

// ClassSession is one scheduled class.
type ClassSession struct {
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	Teacher  string `json:"teacher,omitempty"`
	Room     string `json:"room,omitempty"`
	StartsAt int64  `json:"startsAt"` // ms since epoch
	EndsAt   int64  `json:"endsAt"`   // ms since epoch
	Capacity int    `json:"capacity,omitempty"`
	Enrolled int    `json:"enrolled,omitempty"`
}

// Invoice is one billing entry. Status: "pending", "paid", "overdue".
type Invoice struct {
	ID        string `json:"id"`
	StudentID string `json:"studentId,omitempty"`
	Amount    int64  `json:"amount,omitempty"` // smallest currency unit
	Status    string `json:"status"`
	DueAt     int64  `json:"dueAt,omitempty"` // ms since epoch
}

// AttendanceRecord marks one student's presence in one session.
type AttendanceRecord struct {
	ID        string `json:"id"`
	StudentID string `json:"studentId"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"` // "present", "late", "absent"
	MarkedAt  int64  `json:"markedAt,omitempty"`
}

// Decode converts a wire entity into a typed domain value.
func Decode[T any](e protocol.Entity) (T, error) {
	var v T
	data, err := json.Marshal(e)
	if err != nil {
		return v, fmt.Errorf("encode entity: %w", err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode entity: %w", err)
	}
	return v, nil
}
