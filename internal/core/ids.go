package core

import "sync/atomic"

// SessionID identifies a forwarding session in logs and stats.
type SessionID uint64

// IDGenerator issues strictly increasing session IDs starting at 1.
// IDs are never reused for the lifetime of the generator.
type IDGenerator struct {
	last atomic.Uint64
}

// Next returns the next ID. Safe for concurrent use.
func (g *IDGenerator) Next() SessionID {
	return SessionID(g.last.Add(1))
}
