// Package session tracks per-client delivery progress across polls.
package session

import (
	"sync"
	"time"

	"github.com/bryanchriswhite/framepoll/internal/logger"
)

// DefaultIdleTimeout is how long a client may go without polling before its
// session is reclaimed
const DefaultIdleTimeout = 5 * time.Minute

// Session records one client's delivery progress. LastDelivered is only
// meaningful when Delivered is true; a fresh session has seen nothing yet.
// The embedded mutex serializes overlapping polls for the same client.
type Session struct {
	ClientID      string
	LastDelivered uint64
	Delivered     bool
	CreatedAt     time.Time
	LastSeenAt    time.Time

	mu sync.Mutex
}

// Lock acquires the per-session lock
func (s *Session) Lock() {
	s.mu.Lock()
}

// Unlock releases the per-session lock
func (s *Session) Unlock() {
	s.mu.Unlock()
}

// Table maps client identifiers to their sessions. Sessions are created on
// first sight and reclaimed after an idle timeout so the table never grows
// unbounded.
type Table struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewTable creates a session table. A non-positive idleTimeout falls back to
// DefaultIdleTimeout.
func NewTable(idleTimeout time.Duration) *Table {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Table{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		stopChan:    make(chan struct{}),
	}
}

// Start launches the idle-session janitor
func (t *Table) Start() {
	go t.reapIdle()
}

// Stop terminates the janitor
func (t *Table) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
}

// Resolve returns the session for clientID, creating it when unseen or
// resetting it when refresh is set. The caller updates LastDelivered after a
// successful delivery under the session lock.
func (t *Table) Resolve(clientID string, refresh bool) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	s, ok := t.sessions[clientID]
	if !ok {
		s = &Session{
			ClientID:  clientID,
			CreatedAt: now,
		}
		t.sessions[clientID] = s
		logger.WithComponent("session").Info().
			Str("client_id", clientID).
			Msg("New client connected")
	} else if refresh {
		s.mu.Lock()
		s.Delivered = false
		s.LastDelivered = 0
		s.mu.Unlock()
	}
	s.LastSeenAt = now
	return s
}

// Len returns the number of live sessions
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// reapIdle periodically evicts sessions that have not polled within the idle
// timeout
func (t *Table) reapIdle() {
	ticker := time.NewTicker(t.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.reapOnce(time.Now())
		}
	}
}

func (t *Table) reapOnce(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, s := range t.sessions {
		if now.Sub(s.LastSeenAt) > t.idleTimeout {
			delete(t.sessions, id)
			logger.WithComponent("session").Info().
				Str("client_id", id).
				Msg("Idle client reclaimed")
		}
	}
}
