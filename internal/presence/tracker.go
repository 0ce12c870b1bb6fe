package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/academyos/realtime/internal/connection"
	"github.com/academyos/realtime/internal/dispatch"
	"github.com/academyos/realtime/internal/protocol"
)

// Activity is the most recent activity ping from one user.
type Activity struct {
	Payload   map[string]any
	Timestamp time.Time
}

// Tracker owns one connection and the replicated state of one room.
type Tracker struct {
	roomID string
	self   protocol.UserDescriptor
	conn   connection.Conn
	logger *slog.Logger

	mu       sync.RWMutex
	members  []protocol.UserDescriptor
	activity map[string]Activity
	left     bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a tracker for roomID. self identifies this user in join
// announcements.
func New(roomID string, self protocol.UserDescriptor, conn connection.Conn, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		roomID:   roomID,
		self:     self,
		conn:     conn,
		logger:   logger.With("room", roomID),
		activity: make(map[string]Activity),
	}
}

// Start connects and joins the room.
func (t *Tracker) Start(ctx context.Context) error {
	if err := t.conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect presence: %w", err)
	}

	ctx, t.cancel = context.WithCancel(ctx)
	t.wg.Add(1)
	go t.run(ctx)

	return nil
}

// Stop leaves the room and tears down the connection. Leaving the room is
// the one mandatory cleanup side effect: the leave_room message goes out
// before the close frame.
func (t *Tracker) Stop() error {
	t.LeaveRoom()
	if t.cancel != nil {
		t.cancel()
	}
	err := t.conn.Close()
	t.wg.Wait()
	return err
}

// OnlineUsers returns the current roster snapshot.
func (t *Tracker) OnlineUsers() []protocol.UserDescriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]protocol.UserDescriptor, len(t.members))
	copy(out, t.members)
	return out
}

// UserActivity returns a snapshot of the latest activity per user.
func (t *Tracker) UserActivity() map[string]Activity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Activity, len(t.activity))
	for id, a := range t.activity {
		out[id] = a
	}
	return out
}

// IsConnected reports the underlying connection state.
func (t *Tracker) IsConnected() bool { return t.conn.IsConnected() }

// UpdateActivity broadcasts an activity ping for this user.
func (t *Tracker) UpdateActivity(activity map[string]any) {
	if !t.conn.IsConnected() {
		return
	}
	t.conn.SendType(protocol.TypeUpdateActivity, protocol.UpdateActivityPayload{
		RoomID:   t.roomID,
		Activity: activity,
	})
}

// LeaveRoom sends exactly one leave_room message. Safe to call more than
// once; later calls are no-ops.
func (t *Tracker) LeaveRoom() {
	t.mu.Lock()
	if t.left {
		t.mu.Unlock()
		return
	}
	t.left = true
	t.mu.Unlock()

	t.conn.SendType(protocol.TypeLeaveRoom, protocol.LeaveRoomPayload{RoomID: t.roomID})
}

func (t *Tracker) run(ctx context.Context) {
	defer t.wg.Done()

	d := t.dispatcher()

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-t.conn.States():
			if !ok {
				return
			}
			if state == connection.StateConnected {
				t.join()
			}
		case msg, ok := <-t.conn.Messages():
			if !ok {
				return
			}
			d.Dispatch(msg)
		case err, ok := <-t.conn.Errors():
			if !ok {
				return
			}
			if errors.Is(err, connection.ErrReconnectExhausted) {
				t.reset()
			}
			t.logger.Warn("presence connection error", "error", err)
		}
	}
}

func (t *Tracker) dispatcher() *dispatch.Dispatcher {
	d := dispatch.New(t.logger)
	d.Register(protocol.TypeUserJoined, t.onUserJoined)
	d.Register(protocol.TypeUserLeft, t.onUserLeft)
	d.Register(protocol.TypeUsersList, t.onUsersList)
	d.Register(protocol.TypeUserActivity, t.onUserActivity)
	return d
}

// join announces this user on every (re)connect and reopens the room
// after an earlier LeaveRoom followed by a reconnect.
func (t *Tracker) join() {
	t.mu.Lock()
	t.left = false
	t.mu.Unlock()

	t.conn.SendType(protocol.TypeJoinRoom, protocol.JoinRoomPayload{
		RoomID: t.roomID,
		User:   t.self,
	})
}

// onUserJoined appends to the roster unless the id is already present.
func (t *Tracker) onUserJoined(msg protocol.Message) {
	var p protocol.UserJoinedPayload
	if err := msg.DecodePayload(&p); err != nil {
		t.logger.Warn("dropping user_joined", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range t.members {
		if m.ID == p.User.ID {
			return
		}
	}
	t.members = append(t.members, p.User)
}

// onUserLeft removes the member and their activity entry.
func (t *Tracker) onUserLeft(msg protocol.Message) {
	var p protocol.UserLeftPayload
	if err := msg.DecodePayload(&p); err != nil {
		t.logger.Warn("dropping user_left", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.members[:0]
	for _, m := range t.members {
		if m.ID != p.UserID {
			kept = append(kept, m)
		}
	}
	t.members = kept
	delete(t.activity, p.UserID)
}

// onUsersList replaces the whole roster (initial sync).
func (t *Tracker) onUsersList(msg protocol.Message) {
	var p protocol.UsersListPayload
	if err := msg.DecodePayload(&p); err != nil {
		t.logger.Warn("dropping users_list", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.members = p.Users
}

// onUserActivity merges the ping into the user's activity entry, stamping
// the local receive time. Entries age out only when the user leaves.
func (t *Tracker) onUserActivity(msg protocol.Message) {
	var p protocol.UserActivityPayload
	if err := msg.DecodePayload(&p); err != nil {
		t.logger.Warn("dropping user_activity", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	merged := make(map[string]any, len(p.Activity))
	for k, v := range t.activity[p.UserID].Payload {
		merged[k] = v
	}
	for k, v := range p.Activity {
		merged[k] = v
	}
	t.activity[p.UserID] = Activity{
		Payload:   merged,
		Timestamp: time.Now(),
	}
}

// reset drops replicated room state once the connection is fatally lost.
func (t *Tracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.members = nil
	t.activity = make(map[string]Activity)
}
