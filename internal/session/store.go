// Package session maps external actor ids (Telegram user, API client, cron
// job) to resumable agent runtime sessions, with idle expiry.
package session

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock time so expiry can be tested without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

type entry struct {
	handle     string
	createdAt  time.Time
	lastUsedAt time.Time
}

// Store holds at most one live session per external id.
//
// All methods are safe for concurrent use from in-flight request handlers.
// No method performs I/O. Entries expire when idle longer than the TTL,
// either lazily on Resolve or proactively by the sweep goroutine, so the map
// stays bounded even for ids that are never read again.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	ttl   time.Duration
	clock Clock

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewStore creates a Store and starts its background sweep. sweepInterval
// should be shorter than ttl. A nil clock defaults to the system clock.
func NewStore(ttl, sweepInterval time.Duration, clock Clock) *Store {
	if clock == nil {
		clock = SystemClock{}
	}
	s := &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
		clock:   clock,
		stopCh:  make(chan struct{}),
	}
	go s.sweepLoop(sweepInterval)
	return s
}

// Resolve returns the session handle for externalID, or "" and false if none
// exists. An entry that has idled past the TTL is evicted here rather than
// returned stale.
func (s *Store) Resolve(externalID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[externalID]
	if !ok {
		return "", false
	}
	if s.expired(e, s.clock.Now()) {
		delete(s.entries, externalID)
		return "", false
	}
	return e.handle, true
}

// Record upserts the session handle for externalID and refreshes its
// last-used time.
func (s *Store) Record(externalID, handle string) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[externalID]; ok {
		e.handle = handle
		e.lastUsedAt = now
		return
	}
	s.entries[externalID] = &entry{
		handle:     handle,
		createdAt:  now,
		lastUsedAt: now,
	}
}

// Clear removes the session for externalID. Clearing an absent id is a no-op.
func (s *Store) Clear(externalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, externalID)
}

// Touch refreshes the last-used time without changing the handle. Touching an
// absent id is a no-op.
func (s *Store) Touch(externalID string) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[externalID]; ok {
		e.lastUsedAt = now
	}
}

// Len returns the number of live entries, expired or not. Used for
// observability and tests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop terminates the sweep goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Sweep evicts every expired entry and returns how many were removed. The
// background loop calls this on its interval; it is exported so tests can
// trigger a sweep deterministically.
func (s *Store) Sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return now.Sub(e.lastUsedAt) > s.ttl
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}
