package process

import (
	"context"
	"strings"
	"sync"
	"time"
)

// revalidateInterval is how often cached PIDs are checked for exit or reuse.
const revalidateInterval = 30 * time.Second

// Matcher resolves process IDs to executable paths.
type Matcher struct {
	mu    sync.RWMutex
	cache map[uint32]string // PID → executable path
	query func(pid uint32) (string, error)
}

// NewMatcher creates a matcher backed by the platform process query.
func NewMatcher() *Matcher {
	return newMatcherWithQuery(queryProcessPath)
}

func newMatcherWithQuery(query func(uint32) (string, error)) *Matcher {
	return &Matcher{
		cache: make(map[uint32]string),
		query: query,
	}
}

// GetExePath returns the full executable path for a given PID.
// Results are cached; PID 0 never resolves.
func (m *Matcher) GetExePath(pid uint32) (string, bool) {
	if pid == 0 {
		return "", false
	}

	m.mu.RLock()
	path, ok := m.cache[pid]
	m.mu.RUnlock()
	if ok {
		return path, true
	}

	path, err := m.query(pid)
	if err != nil || path == "" {
		return "", false
	}

	m.mu.Lock()
	m.cache[pid] = path
	m.mu.Unlock()

	return path, true
}

// Invalidate removes a PID from the cache (call when process exits).
func (m *Matcher) Invalidate(pid uint32) {
	m.mu.Lock()
	delete(m.cache, pid)
	m.mu.Unlock()
}

// Len returns the number of cached PIDs.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

// StartRevalidation periodically checks cached PIDs and removes entries for
// processes that no longer exist. This prevents stale entries when the OS
// reuses PIDs for different processes.
func (m *Matcher) StartRevalidation(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(revalidateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.revalidateCache()
			}
		}
	}()
}

// revalidateCache removes entries for dead processes and verifies that
// live processes still have the same exe path (catches PID reuse).
func (m *Matcher) revalidateCache() {
	// Snapshot current PIDs under read lock.
	m.mu.RLock()
	snapshot := make(map[uint32]string, len(m.cache))
	for pid, path := range m.cache {
		snapshot[pid] = path
	}
	m.mu.RUnlock()

	// Check each PID outside the lock.
	var stale []uint32
	for pid, path := range snapshot {
		currentPath, err := m.query(pid)
		if err != nil || !strings.EqualFold(currentPath, path) {
			stale = append(stale, pid)
		}
	}

	if len(stale) == 0 {
		return
	}

	m.mu.Lock()
	for _, pid := range stale {
		delete(m.cache, pid)
	}
	m.mu.Unlock()
}
