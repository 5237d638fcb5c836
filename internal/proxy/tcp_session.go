package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"split-tunnel-proxy/internal/core"
	"split-tunnel-proxy/internal/flow"
)

// tcpBufPool reuses read buffers for the socket→flow direction.
var tcpBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64*1024)
		return &b
	},
}

// TCPSession bridges a StreamFlow to an outbound TCP connection.
type TCPSession struct {
	*session
	stream flow.StreamFlow
	conn   *net.TCPConn
}

var _ Session = (*TCPSession)(nil)

// NewTCPSession creates a session for f. Nothing happens until Start.
func NewTCPSession(id core.SessionID, f flow.StreamFlow, cfg SessionConfig, out *Outbound, registry *Registry, log *core.Logger) *TCPSession {
	return &TCPSession{
		session: newSession(id, "tcp", f, cfg, sessionDeps{out: out, registry: registry, log: log}),
		stream:  f,
	}
}

// Start connects to the flow's destination and begins forwarding.
func (s *TCPSession) Start(ctx context.Context) {
	if !s.begin(ctx) {
		return
	}
	go s.run()
}

func (s *TCPSession) run() {
	remote := s.stream.RemoteEndpoint()
	dst, err := remote.AddrPort()
	if err != nil {
		s.drop(err)
		return
	}
	iface, err := s.out.Interface(s.cfg.VpnState.NetworkInterface)
	if err != nil {
		s.drop(err)
		return
	}

	s.log.Debugf("Proxy", "id: %d %s Connecting to %s via %s (%s)", s.id, s.cfg.Descriptor, remote, iface.Name, iface.IPv4)
	conn, err := s.out.DialTCP(s.ctx, iface, dst)
	if err != nil {
		s.drop(err)
		return
	}
	s.conn = conn
	if !s.attach(conn) {
		return
	}

	go s.flowToSocket()
	go s.socketToFlow()
}

// flowToSocket forwards application data upstream. One read is in flight at
// a time; the next read is issued only after the write completed.
func (s *TCPSession) flowToSocket() {
	for {
		data, err := s.stream.ReadData(s.ctx)
		if err != nil {
			if readPending(err) {
				if !s.awaitRetry() {
					return
				}
				continue
			}
			s.fail("reading from the flow", err)
			return
		}
		if len(data) == 0 {
			// Application closed its side: half-close upstream.
			s.conn.CloseWrite()
			return
		}
		if _, err := s.conn.Write(data); err != nil {
			s.fail("writing to the socket", err)
			return
		}
		s.tx.Add(uint64(len(data)))
	}
}

// socketToFlow forwards upstream data back to the application. The session
// ends when upstream closes.
func (s *TCPSession) socketToFlow() {
	bp := tcpBufPool.Get().(*[]byte)
	defer tcpBufPool.Put(bp)
	buf := *bp

	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			if werr := s.stream.WriteData(s.ctx, buf[:n]); werr != nil {
				s.fail("writing to the flow", werr)
				return
			}
			s.rx.Add(uint64(n))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Upstream finished; nothing more can reach the application.
				s.terminate(nil)
				return
			}
			s.fail("reading from the socket", err)
			return
		}
	}
}
