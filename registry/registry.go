// Package registry is the single authoritative store of live sessions,
// connection history and the set of client ids with a cached frame.
//
// All state lives behind one mutex so a Snapshot never observes a session
// and its event half-applied. Frame bytes are delegated to a
// framestore.Store; the registry only tracks which ids have one.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cyberinferno/screenhub/framestore"
	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/protocol"
)

// DefaultHistorySize is the number of events kept when no size is configured.
const DefaultHistorySize = 20

// Aggregate status texts shown on the dashboard.
const (
	StatusOffline = "Offline"
	StatusWaiting = "Waiting for connections"
)

// ErrNotFound is returned when no frame is cached for a client id.
var ErrNotFound = errors.New("not found")

// Handle is the part of a live connection the registry needs: an identity
// to compare against and a way to force it closed when a newer connection
// claims the same client id.
type Handle interface {
	ID() uint32
	Close() error
}

type entry struct {
	info   SessionInfo
	handle Handle
}

// Registry tracks live sessions by client id. The zero value is not usable;
// create one with New.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*entry
	history     []Event
	historySize int
	frames      map[string]time.Time
	lastFrame   string
	status      string
	online      bool

	store  framestore.Store
	logger logger.Logger
	now    func() time.Time
}

// New creates a registry.
//
// Parameters:
//   - historySize: Number of events retained; values below 1 select DefaultHistorySize
//   - store: Where frame blobs are kept; nil selects an in-memory store without expiry
//   - log: Logger for registry events; nil selects a no-op logger
//
// Returns:
//   - A new Registry in the Offline state
func New(historySize int, store framestore.Store, log logger.Logger) *Registry {
	if historySize < 1 {
		historySize = DefaultHistorySize
	}
	if store == nil {
		store = framestore.NewMemoryStore(0, 0)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Registry{
		sessions:    make(map[string]*entry),
		history:     make([]Event, 0, historySize),
		historySize: historySize,
		frames:      make(map[string]time.Time),
		status:      StatusOffline,
		store:       store,
		logger:      log,
		now:         time.Now,
	}
}

// SetOnline switches the aggregate status between Offline and the
// connection-driven texts. The hub calls it when it starts and stops
// accepting.
func (r *Registry) SetOnline(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.online = online
	r.refreshStatusLocked("")
}

// Register inserts or replaces the live session for clientID and records a
// Connected event. When another connection already holds clientID, that
// session is recorded as Disconnected and its handle is closed after the
// lock is released; the returned Handle is the one that was replaced.
func (r *Registry) Register(clientID, address string, role protocol.Role, h Handle) (replaced Handle) {
	r.mu.Lock()
	now := r.now()

	if old, ok := r.sessions[clientID]; ok && old.handle != h {
		replaced = old.handle
		r.appendLocked(Event{Kind: EventDisconnected, ClientID: clientID, Address: old.info.Address, Time: now})
	}

	r.sessions[clientID] = &entry{
		info: SessionInfo{
			ClientID:    clientID,
			Address:     address,
			Role:        role,
			ConnectedAt: now,
			Status:      SessionConnected,
		},
		handle: h,
	}
	r.appendLocked(Event{Kind: EventConnected, ClientID: clientID, Address: address, Time: now})
	r.refreshStatusLocked(clientID)
	r.mu.Unlock()

	if replaced != nil {
		r.logger.Warn("replaced duplicate session",
			logger.Field{Key: "client_id", Value: clientID},
			logger.Field{Key: "old_conn_id", Value: replaced.ID()},
		)
		_ = replaced.Close()
	}

	return replaced
}

// Deregister removes the live session for clientID and records a
// Disconnected event. Calling it for an absent id does nothing, so a second
// call is a no-op.
func (r *Registry) Deregister(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.sessions[clientID]
	if !ok {
		return false
	}

	r.removeLocked(clientID, old)
	return true
}

// Release is Deregister for the session loop: it removes clientID only while
// h still owns it, so a connection that was replaced by a newer one does not
// evict its successor on the way out.
func (r *Registry) Release(clientID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.sessions[clientID]
	if !ok || old.handle != h {
		return false
	}

	r.removeLocked(clientID, old)
	return true
}

// UpdateFrame overwrites the cached frame for clientID. Unknown and
// disconnected ids are accepted; a frame outlives its session until
// ForgetFrame or store expiry removes it.
func (r *Registry) UpdateFrame(ctx context.Context, clientID, blob string) error {
	if err := r.store.Put(ctx, clientID, blob); err != nil {
		return fmt.Errorf("store frame for %s: %w", clientID, err)
	}

	r.mu.Lock()
	r.frames[clientID] = r.now()
	r.lastFrame = clientID
	r.mu.Unlock()

	return nil
}

// GetFrame returns the cached frame for clientID, or ErrNotFound. Ids whose
// frame has expired from the store are pruned from the known set.
func (r *Registry) GetFrame(ctx context.Context, clientID string) (string, error) {
	r.mu.Lock()
	at, known := r.frames[clientID]
	r.mu.Unlock()

	if !known {
		return "", ErrNotFound
	}

	blob, err := r.store.Get(ctx, clientID)
	if errors.Is(err, framestore.ErrNotFound) {
		r.forgetExpired(clientID, at)
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load frame for %s: %w", clientID, err)
	}

	return blob, nil
}

// LatestFrame returns the most recently updated frame and its client id.
func (r *Registry) LatestFrame(ctx context.Context) (string, string, error) {
	r.mu.Lock()
	clientID := r.lastFrame
	r.mu.Unlock()

	if clientID == "" {
		return "", "", ErrNotFound
	}

	blob, err := r.GetFrame(ctx, clientID)
	if err != nil {
		return "", "", err
	}

	return clientID, blob, nil
}

// ForgetFrame drops the cached frame for clientID. Forgetting an unknown id
// is not an error.
func (r *Registry) ForgetFrame(ctx context.Context, clientID string) error {
	r.mu.Lock()
	r.forgetLocked(clientID)
	r.mu.Unlock()

	if err := r.store.Delete(ctx, clientID); err != nil {
		return fmt.Errorf("delete frame for %s: %w", clientID, err)
	}

	return nil
}

// PruneFrames drops known frame ids whose blob has expired from the store,
// so a following Snapshot lists only frames that can still be served.
func (r *Registry) PruneFrames(ctx context.Context) error {
	r.mu.Lock()
	known := make(map[string]time.Time, len(r.frames))
	for id, at := range r.frames {
		known[id] = at
	}
	r.mu.Unlock()

	for id, at := range known {
		ok, err := r.store.Exists(ctx, id)
		if err != nil {
			return fmt.Errorf("check frame for %s: %w", id, err)
		}
		if !ok {
			r.forgetExpired(id, at)
		}
	}

	return nil
}

// StoredFrames returns the number of frames held by the store.
func (r *Registry) StoredFrames(ctx context.Context) (int, error) {
	n, err := r.store.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("count frames: %w", err)
	}
	return n, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Session returns a copy of the live session for clientID.
func (r *Registry) Session(clientID string) (SessionInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[clientID]
	if !ok {
		return SessionInfo{}, false
	}

	return e.info, true
}

// Snapshot returns a copy of the registry state. Sessions are ordered by
// connect time, events oldest-first and frame ids alphabetically. Nothing in
// the result aliases registry memory.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		ServerStatus: r.status,
		Sessions:     make([]SessionInfo, 0, len(r.sessions)),
		History:      make([]Event, len(r.history)),
		FrameIDs:     make([]string, 0, len(r.frames)),
	}

	for _, e := range r.sessions {
		snap.Sessions = append(snap.Sessions, e.info)
	}
	sort.Slice(snap.Sessions, func(i, j int) bool {
		a, b := snap.Sessions[i], snap.Sessions[j]
		if a.ConnectedAt.Equal(b.ConnectedAt) {
			return a.ClientID < b.ClientID
		}
		return a.ConnectedAt.Before(b.ConnectedAt)
	})

	copy(snap.History, r.history)

	for id := range r.frames {
		snap.FrameIDs = append(snap.FrameIDs, id)
	}
	sort.Strings(snap.FrameIDs)

	return snap
}

func (r *Registry) removeLocked(clientID string, old *entry) {
	delete(r.sessions, clientID)
	r.appendLocked(Event{Kind: EventDisconnected, ClientID: clientID, Address: old.info.Address, Time: r.now()})
	r.refreshStatusLocked("")
}

// forgetExpired forgets clientID unless its frame was updated after at.
func (r *Registry) forgetExpired(clientID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.frames[clientID]; ok && cur.Equal(at) {
		r.forgetLocked(clientID)
	}
}

func (r *Registry) forgetLocked(clientID string) {
	delete(r.frames, clientID)
	if r.lastFrame != clientID {
		return
	}

	r.lastFrame = ""
	var newest time.Time
	for id, at := range r.frames {
		if r.lastFrame == "" || at.After(newest) {
			r.lastFrame, newest = id, at
		}
	}
}

// appendLocked adds ev and evicts the oldest events beyond historySize.
func (r *Registry) appendLocked(ev Event) {
	r.history = append(r.history, ev)
	if over := len(r.history) - r.historySize; over > 0 {
		r.history = append(r.history[:0], r.history[over:]...)
	}
}

// refreshStatusLocked recomputes the aggregate status. connected names the
// client that just registered, if any.
func (r *Registry) refreshStatusLocked(connected string) {
	switch {
	case !r.online:
		r.status = StatusOffline
	case connected != "":
		r.status = "Client connected: " + connected
	case len(r.sessions) == 0:
		r.status = StatusWaiting
	case len(r.sessions) == 1:
		for id := range r.sessions {
			r.status = "Client connected: " + id
		}
	default:
		r.status = fmt.Sprintf("%d clients connected", len(r.sessions))
	}
}
