package cart

import (
	"context"
	"sync"
	"time"
)

type evictKind int

const (
	// evictKeep leaves the store in memory: it holds changes the repository
	// does not have.
	evictKeep evictKind = iota
	// evictDrop forgets the session. A new store is equivalent.
	evictDrop
	// evictTombstone drops the store but remembers the session, so the
	// next Acquire reloads it from the repository.
	evictTombstone
)

// Sessions holds one Store per shopping session. Stores are created empty
// and un-hydrated on first access.
//
// A store idle for longer than the ttl is dropped from memory. A session
// whose store was dropped gets it back, reloaded from the repository, on
// its next Acquire.
type Sessions struct {
	repo      Repository
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*session
}

type session struct {
	// store is nil once evicted.
	store    *Store
	refs     int
	lastSeen time.Time
	hydrated bool
}

// SessionsOption configures Sessions.
type SessionsOption func(*Sessions)

// WithRetention sets how long an evicted session is remembered. Past it the
// session starts over empty and un-hydrated, as after a restart. Zero keeps
// evicted sessions for the lifetime of the process.
func WithRetention(d time.Duration) SessionsOption {
	return func(s *Sessions) {
		s.retention = d
	}
}

// NewSessions returns a registry whose stores persist to repo under
// "shopping-cart:<session id>". A zero ttl disables idle eviction.
func NewSessions(repo Repository, ttl time.Duration, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		repo:    repo,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*session),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SessionKey returns the snapshot key for a session id.
func SessionKey(id string) string {
	return DefaultKey + ":" + id
}

// Acquire returns the store for id, creating it when needed, and pins it in
// memory until release is called. A store recreated after eviction is
// reloaded from the repository first; on failure nothing is pinned.
func (s *Sessions) Acquire(ctx context.Context, id string) (_ *Store, release func(), _ error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		e = &session{store: s.newStore(id)}
		s.entries[id] = e
	} else if e.store == nil {
		e.store = s.newStore(id)
		e.store.markStale(e.hydrated)
	}
	e.refs++
	e.lastSeen = s.now()
	st := e.store
	s.mu.Unlock()

	release = sync.OnceFunc(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		e.refs--
		e.lastSeen = s.now()
	})
	if err := st.reload(ctx); err != nil {
		release()
		return nil, nil, err
	}
	return st, release, nil
}

func (s *Sessions) newStore(id string) *Store {
	var opts []Option
	if s.repo != nil {
		opts = append(opts, WithPersistence(s.repo, SessionKey(id)))
	}
	return New(opts...)
}

// Len returns the number of sessions with a store in memory.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, e := range s.entries {
		if e.store != nil {
			n++
		}
	}
	return n
}

// evict drops stores idle for longer than the ttl and returns how many were
// dropped. Pinned stores and stores with unsaved changes stay. Their
// snapshots stay in the repository.
func (s *Sessions) evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for id, e := range s.entries {
		idle := now.Sub(e.lastSeen)
		if e.store == nil {
			if s.retention > 0 && idle >= s.retention {
				delete(s.entries, id)
			}
			continue
		}
		if e.refs > 0 || idle < s.ttl {
			continue
		}
		kind, hydrated := e.store.eviction()
		switch kind {
		case evictDrop:
			delete(s.entries, id)
			n++
		case evictTombstone:
			e.hydrated = hydrated
			e.store = nil
			n++
		case evictKeep:
		}
	}
	return n
}

// StartEviction runs idle eviction every ttl until ctx is cancelled.
func (s *Sessions) StartEviction(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.evict(now)
			}
		}
	}()
}
