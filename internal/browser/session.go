package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// ErrSessionNotFound is returned for unknown or evicted session ids.
var ErrSessionNotFound = errors.New("session not found")

// DefaultSessionTTL is how long an unused session is kept.
const DefaultSessionTTL = 30 * time.Minute

// minEvictInterval bounds how often Run sweeps for idle sessions.
const minEvictInterval = time.Second

type session struct {
	page       *Page
	lastAccess time.Time
}

// SessionManager keeps one Page per browser session and evicts sessions that
// have not been used for the TTL.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	newPage  func() *Page
	now      func() time.Time
}

// NewSessionManager returns a manager creating pages with newPage. A
// non-positive ttl means DefaultSessionTTL.
func NewSessionManager(ttl time.Duration, newPage func() *Page) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		sessions: make(map[string]*session),
		ttl:      ttl,
		newPage:  newPage,
		now:      time.Now,
	}
}

// Create loads a new page for path and registers it.
func (m *SessionManager) Create(ctx context.Context, path string) (string, *Page, error) {
	page := m.newPage()
	if err := page.Load(ctx, path); err != nil {
		return "", nil, err
	}
	id := uuid.NewString()

	m.mu.Lock()
	m.sessions[id] = &session{page: page, lastAccess: m.now()}
	n := len(m.sessions)
	m.mu.Unlock()

	klog.V(2).Infof("Created resource browser session %s (%d open)", id, n)
	return id, page, nil
}

// Get returns the page of a session and refreshes its TTL.
func (m *SessionManager) Get(id string) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.lastAccess = m.now()
	return s.page, nil
}

// Delete drops a session. It reports whether the session existed.
func (m *SessionManager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Len returns the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// OpenTabs returns the number of tabs across all sessions.
func (m *SessionManager) OpenTabs() int {
	m.mu.Lock()
	pages := make([]*Page, 0, len(m.sessions))
	for _, s := range m.sessions {
		pages = append(pages, s.page)
	}
	m.mu.Unlock()

	n := 0
	for _, p := range pages {
		n += p.TabCount()
	}
	return n
}

// EvictIdle drops sessions unused for longer than the TTL and returns how
// many were dropped.
func (m *SessionManager) EvictIdle() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.ttl)
	n := 0
	for id, s := range m.sessions {
		if s.lastAccess.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *SessionManager) evictInterval() time.Duration {
	return max(m.ttl/2, minEvictInterval)
}

// Run evicts idle sessions periodically until ctx is done.
func (m *SessionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.evictInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(); n > 0 {
				klog.Infof("Evicted %d idle resource browser session(s)", n)
			}
		}
	}
}
