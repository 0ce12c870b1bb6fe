// Package notify bridges inbound notification messages into the in-app
// toast store and, when the platform has permission, OS-level
// notifications.
package notify
