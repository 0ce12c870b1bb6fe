package datasync

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

// ServerError wraps a server-reported error payload. The cache is left
// untouched so callers can keep showing last-known-good state.
type ServerError struct {
	Payload []byte
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Payload)
}

// Config declares what this synchronizer watches.
type Config struct {
	Endpoint string              // Logical endpoint, e.g. "students"
	Events   []string            // Event names to subscribe at the endpoint
	Auth     *protocol.AuthPayload // Credentials sent on every (re)connect, nil to skip
}

// Update is delivered on the Updates channel for every applied patch and
// for declared custom events forwarded verbatim.
type Update struct {
	Event   string
	Data    protocol.Entity  // nil for deletes and custom events
	Deleted string           // id removed by a data_deleted patch
	Message protocol.Message // original envelope (custom events only)
}

// Snapshot is a point-in-time view of the cached collection.
type Snapshot struct {
	List       []protocol.Entity // set when the cache is list-shaped
	Item       protocol.Entity   // set when the cache is a single entity
	IsList     bool
	Loading    bool
	LastUpdate time.Time
}

// Synchronizer owns one connection and one cached collection.
type Synchronizer struct {
	cfg    Config
	conn   connection.Conn
	logger *slog.Logger
	events map[string]struct{}

	mu         sync.RWMutex
	list       []protocol.Entity
	item       protocol.Entity
	isList     bool
	loading    bool
	lastUpdate time.Time

	updates chan Update
	errs    chan error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a synchronizer over the given connection.
func New(cfg Config, conn connection.Conn, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}

	events := make(map[string]struct{}, len(cfg.Events))
	for _, e := range cfg.Events {
		events[e] = struct{}{}
	}

	return &Synchronizer{
		cfg:     cfg,
		conn:    conn,
		logger:  logger.With("endpoint", cfg.Endpoint),
		events:  events,
		loading: true,
		updates: make(chan Update, 64),
		errs:    make(chan error, 8),
	}
}

// Start connects and begins applying patches.
func (s *Synchronizer) Start(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", s.cfg.Endpoint, err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

// Stop tears down the connection.
func (s *Synchronizer) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

// Snapshot returns the current cache view.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		IsList:     s.isList,
		Loading:    s.loading,
		LastUpdate: s.lastUpdate,
		Item:       s.item,
	}
	if s.isList {
		snap.List = make([]protocol.Entity, len(s.list))
		copy(snap.List, s.list)
	}
	return snap
}

// IsConnected reports the underlying connection state.
func (s *Synchronizer) IsConnected() bool { return s.conn.IsConnected() }

// Updates yields applied patches and forwarded custom events.
func (s *Synchronizer) Updates() <-chan Update { return s.updates }

// Errors yields server-reported and transport errors.
func (s *Synchronizer) Errors() <-chan error { return s.errs }

// Refresh re-issues the initial fetch. Cached data stays visible until the
// reply arrives (stale-while-revalidate).
func (s *Synchronizer) Refresh() {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	s.fetch()
}

func (s *Synchronizer) run(ctx context.Context) {
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
				s.handshake()
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
			s.reportError(err)
		}
	}
}

func (s *Synchronizer) dispatcher() *dispatch.Dispatcher {
	d := dispatch.New(s.logger)
	d.Register(protocol.TypeDataUpdate, s.onUpdate)
	d.Register(protocol.TypeDataCreated, s.onCreated)
	d.Register(protocol.TypeDataUpdated, s.onUpdated)
	d.Register(protocol.TypeDataDeleted, s.onDeleted)
	d.Register(protocol.TypeError, s.onServerError)
	d.RegisterFallback(s.onCustom)
	return d
}

// handshake runs after every (re)connect: authenticate, replay
// subscriptions, request the initial fetch.
func (s *Synchronizer) handshake() {
	if s.cfg.Auth != nil {
		s.conn.SendType(protocol.TypeAuth, *s.cfg.Auth)
	}
	for _, event := range s.cfg.Events {
		s.conn.SendType(protocol.TypeSubscribe, protocol.SubscribePayload{
			Event:    event,
			Endpoint: s.cfg.Endpoint,
		})
	}
	s.fetch()
}

func (s *Synchronizer) fetch() {
	s.conn.SendType(protocol.TypeFetchData, protocol.FetchDataPayload{
		Endpoint: s.cfg.Endpoint,
	})
}

func (s *Synchronizer) decode(msg protocol.Message) (protocol.DataEventPayload, bool) {
	var p protocol.DataEventPayload
	if err := msg.DecodePayload(&p); err != nil {
		s.logger.Warn("dropping patch", "type", msg.Type, "error", err)
		return p, false
	}
	if _, ok := s.events[p.Event]; !ok {
		return p, false
	}
	return p, true
}

// onUpdate replaces the cached value wholesale and clears loading.
func (s *Synchronizer) onUpdate(msg protocol.Message) {
	p, ok := s.decode(msg)
	if !ok {
		return
	}

	entities, isList, err := p.Collection()
	if err != nil {
		s.logger.Warn("dropping data_update", "error", err)
		return
	}

	s.mu.Lock()
	if isList {
		s.list = entities
		s.item = nil
	} else {
		entity, err := p.Entity()
		if err != nil {
			s.mu.Unlock()
			s.logger.Warn("dropping data_update", "error", err)
			return
		}
		s.item = entity
		s.list = nil
	}
	s.isList = isList
	s.loading = false
	s.lastUpdate = time.Now()
	s.mu.Unlock()

	s.notify(Update{Event: p.Event})
}

// onCreated prepends to a list-shaped cache, otherwise replaces.
func (s *Synchronizer) onCreated(msg protocol.Message) {
	p, ok := s.decode(msg)
	if !ok {
		return
	}
	entity, err := p.Entity()
	if err != nil {
		s.logger.Warn("dropping data_created", "error", err)
		return
	}

	s.mu.Lock()
	if s.isList {
		s.list = append([]protocol.Entity{entity}, s.list...)
	} else {
		s.item = entity
	}
	s.lastUpdate = time.Now()
	s.mu.Unlock()

	s.notify(Update{Event: p.Event, Data: entity})
}

// onUpdated merges fields shallowly into the entry whose id matches.
func (s *Synchronizer) onUpdated(msg protocol.Message) {
	p, ok := s.decode(msg)
	if !ok {
		return
	}
	entity, err := p.Entity()
	if err != nil {
		s.logger.Warn("dropping data_updated", "error", err)
		return
	}

	s.mu.Lock()
	if s.isList {
		id := entity.ID()
		for i, existing := range s.list {
			if existing.ID() == id {
				s.list[i] = merge(existing, entity)
				break
			}
		}
	} else {
		s.item = merge(s.item, entity)
	}
	s.lastUpdate = time.Now()
	s.mu.Unlock()

	s.notify(Update{Event: p.Event, Data: entity})
}

// onDeleted removes the matching entry, or nulls a single-shaped cache.
func (s *Synchronizer) onDeleted(msg protocol.Message) {
	p, ok := s.decode(msg)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.isList {
		kept := s.list[:0]
		for _, existing := range s.list {
			if existing.ID() != p.ID {
				kept = append(kept, existing)
			}
		}
		s.list = kept
	} else {
		s.item = nil
	}
	s.lastUpdate = time.Now()
	s.mu.Unlock()

	s.notify(Update{Event: p.Event, Deleted: p.ID})
}

// onServerError forwards the diagnostic payload. Cached data stays put.
func (s *Synchronizer) onServerError(msg protocol.Message) {
	s.logger.Warn("server error", "payload", string(msg.Payload))
	s.reportError(&ServerError{Payload: msg.Payload})
}

// onCustom forwards declared domain-specific events verbatim.
func (s *Synchronizer) onCustom(msg protocol.Message) {
	if _, ok := s.events[msg.Type]; !ok {
		s.logger.Debug("ignoring undeclared event", "type", msg.Type)
		return
	}
	s.notify(Update{Event: msg.Type, Message: msg})
}

func (s *Synchronizer) notify(u Update) {
	select {
	case s.updates <- u:
	default:
		s.logger.Debug("updates channel full, dropping update", "event", u.Event)
	}
}

func (s *Synchronizer) reportError(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// reset drops all cached state once the connection is fatally lost.
func (s *Synchronizer) reset() {
	s.mu.Lock()
	s.list = nil
	s.item = nil
	s.isList = false
	s.loading = true
	s.mu.Unlock()
}

// merge copies base then overlays patch fields. A fresh map is returned so
// snapshots handed out earlier stay untouched.
func merge(base, patch protocol.Entity) protocol.Entity {
	merged := make(protocol.Entity, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}
