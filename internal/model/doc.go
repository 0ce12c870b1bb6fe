// Package model defines the academy domain entities carried over the
// real-time wire.
//
// Conventions:
//   - Timestamps: int64 ms since epoch, matching the wire envelope
//   - IDs: string, unique within their collection
//
// Wire entities are loose JSON objects; Decode converts them into these
// typed views at the edge.
package model
