// Package connection implements the persistent duplex connection manager.
//
// The manager:
//   - Owns one WebSocket connection per consumer
//   - Reconnects after abnormal closure with exponential backoff
//   - Sends heartbeat pings while connected and consumes pongs
//   - Queues outbound messages while disconnected, flushing FIFO on open
//   - Exposes inbound traffic and state transitions as channels
package connection
