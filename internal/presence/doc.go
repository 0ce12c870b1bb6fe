// Package presence tracks who is in a logical room and what they are
// doing. The tracker joins its room on every (re)connect, keeps a deduped
// roster, and records the latest activity ping per user.
package presence
