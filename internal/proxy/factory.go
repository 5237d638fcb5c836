package proxy

import (
	"split-tunnel-proxy/internal/core"
	"split-tunnel-proxy/internal/flow"
)

// SessionFactory creates forwarding sessions. Tests substitute their own.
type SessionFactory interface {
	NewTCP(id core.SessionID, f flow.StreamFlow, cfg SessionConfig) Session
	NewUDP(id core.SessionID, f flow.DatagramFlow, cfg SessionConfig) Session
}

// DefaultFactory creates TCPSession and UDPSession values sharing one
// outbound socket factory and registry.
type DefaultFactory struct {
	Outbound *Outbound
	Registry *Registry
	Log      *core.Logger
}

var _ SessionFactory = (*DefaultFactory)(nil)

func (f *DefaultFactory) NewTCP(id core.SessionID, fl flow.StreamFlow, cfg SessionConfig) Session {
	return NewTCPSession(id, fl, cfg, f.Outbound, f.Registry, f.Log)
}

func (f *DefaultFactory) NewUDP(id core.SessionID, fl flow.DatagramFlow, cfg SessionConfig) Session {
	return NewUDPSession(id, fl, cfg, f.Outbound, f.Registry, f.Log)
}
