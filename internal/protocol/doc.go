// Package protocol defines the wire format shared by every real-time
// consumer.
//
// All traffic, both directions, uses a single JSON envelope:
//
//	{"type": "...", "payload": {...}, "timestamp": 1712345678901, "id": "..."}
//
// Payloads are typed per message type and validated when decoded, so a
// malformed frame is rejected at the boundary instead of surfacing as a
// missing field somewhere downstream.
package protocol
