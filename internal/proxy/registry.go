package proxy

import (
	"sort"
	"sync"

	"split-tunnel-proxy/internal/core"
)

// tracked is the part of a session the registry needs.
type tracked interface {
	ID() core.SessionID
	Info() SessionInfo
	Terminate()
}

// Registry tracks sessions that are forwarding. Sessions add themselves when
// their socket is open and remove themselves on termination.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]tracked
	total    uint64
	bus      *core.EventBus
}

// NewRegistry creates a ready-to-use registry.
func NewRegistry(bus *core.EventBus) *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]tracked),
		bus:      bus,
	}
}

// Add registers a forwarding session and publishes EventSessionStarted.
// A nil registry ignores the call.
func (r *Registry) Add(s tracked) {
	if r.insert(s) {
		r.publishStarted(s)
	}
}

// insert registers s without publishing. It reports false for a nil
// registry or an ID that is already present.
func (r *Registry) insert(s tracked) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID()]; exists {
		return false
	}
	r.sessions[s.ID()] = s
	r.total++
	return true
}

func (r *Registry) publishStarted(s tracked) {
	info := s.Info()
	r.bus.Publish(core.Event{
		Type: core.EventSessionStarted,
		Payload: core.SessionPayload{
			ID:         info.ID,
			Protocol:   info.Protocol,
			Descriptor: info.Descriptor,
		},
	})
}

// Remove unregisters s and publishes EventSessionClosed with its final counters.
func (r *Registry) Remove(s tracked) {
	if r == nil {
		return
	}
	r.mu.Lock()
	_, ok := r.sessions[s.ID()]
	delete(r.sessions, s.ID())
	r.mu.Unlock()
	if !ok {
		return
	}

	info := s.Info()
	r.bus.Publish(core.Event{
		Type: core.EventSessionClosed,
		Payload: core.SessionPayload{
			ID:         info.ID,
			Protocol:   info.Protocol,
			Descriptor: info.Descriptor,
			TxBytes:    info.TxBytes,
			RxBytes:    info.RxBytes,
		},
	})
}

// Get returns info for the session with the given ID.
func (r *Registry) Get(id core.SessionID) (SessionInfo, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return SessionInfo{}, false
	}
	return s.Info(), true
}

// Len returns the number of forwarding sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Total returns how many sessions ever reached forwarding.
func (r *Registry) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// Snapshot returns info for every forwarding session ordered by ID.
func (r *Registry) Snapshot() []SessionInfo {
	r.mu.RLock()
	list := make([]tracked, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// TerminateAll terminates every registered session.
func (r *Registry) TerminateAll() {
	r.mu.RLock()
	list := make([]tracked, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	for _, s := range list {
		s.Terminate()
	}
}
