package proxy

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"

	"split-tunnel-proxy/internal/core"
	"split-tunnel-proxy/internal/flow"
)

const (
	// udpBatchSize is the number of datagrams drained per socket read.
	udpBatchSize = 16
	maxDatagram  = 65535
)

// UDPSession bridges a DatagramFlow to one unconnected UDP socket shared by
// every remote peer the application talks to.
type UDPSession struct {
	*session
	dgram flow.DatagramFlow
	conn  *net.UDPConn
	pc    *ipv4.PacketConn
}

var _ Session = (*UDPSession)(nil)

// NewUDPSession creates a session for f. Nothing happens until Start.
func NewUDPSession(id core.SessionID, f flow.DatagramFlow, cfg SessionConfig, out *Outbound, registry *Registry, log *core.Logger) *UDPSession {
	return &UDPSession{
		session: newSession(id, "udp", f, cfg, sessionDeps{out: out, registry: registry, log: log}),
		dgram:   f,
	}
}

// Start binds the outbound socket and begins forwarding.
func (s *UDPSession) Start(ctx context.Context) {
	if !s.begin(ctx) {
		return
	}
	go s.run()
}

func (s *UDPSession) run() {
	iface, err := s.out.Interface(s.cfg.VpnState.NetworkInterface)
	if err != nil {
		s.drop(err)
		return
	}
	conn, err := s.out.ListenUDP(s.ctx, iface)
	if err != nil {
		s.drop(err)
		return
	}
	s.log.Debugf("Proxy", "id: %d %s A new UDP socket has been bound to %s", s.id, s.cfg.Descriptor, conn.LocalAddr())

	s.conn = conn
	s.pc = ipv4.NewPacketConn(conn)
	if !s.attach(conn) {
		return
	}

	go s.flowToSocket()
	go s.socketToFlow()
}

// flowToSocket reads one batch from the flow, writes every datagram of it to
// the socket in order, and only then issues the next read. A batch therefore
// schedules exactly one further read however many datagrams it carried.
func (s *UDPSession) flowToSocket() {
	for {
		dgs, err := s.dgram.ReadDatagrams(s.ctx)
		if err != nil {
			if readPending(err) {
				if !s.awaitRetry() {
					return
				}
				continue
			}
			s.fail("reading datagrams from the flow", err)
			return
		}
		if len(dgs) == 0 {
			s.fail("reading datagrams from the flow", errAppClosed)
			return
		}
		if err := s.writeBatch(dgs); err != nil {
			s.fail("sending a UDP datagram through the socket", err)
			return
		}
	}
}

// writeBatch sends dgs upstream in order. Datagrams preceding a malformed
// endpoint are still sent; the malformed one aborts the session.
func (s *UDPSession) writeBatch(dgs []flow.Datagram) error {
	msgs := make([]ipv4.Message, 0, len(dgs))
	var bad error
	for _, dg := range dgs {
		dst, err := dg.Endpoint.AddrPort()
		if err == nil && !dst.Addr().Unmap().Is4() {
			err = fmt.Errorf("%w: %s is not IPv4", flow.ErrMalformedEndpoint, dg.Endpoint)
		}
		if err != nil {
			bad = err
			break
		}
		msgs = append(msgs, ipv4.Message{
			Buffers: [][]byte{dg.Payload},
			Addr:    net.UDPAddrFromAddrPort(netip.AddrPortFrom(dst.Addr().Unmap(), dst.Port())),
		})
	}

	for sent := 0; sent < len(msgs); {
		n, err := s.pc.WriteBatch(msgs[sent:], 0)
		// sendmmsg reports -1 on failure.
		n = max(n, 0)
		for _, m := range msgs[sent : sent+n] {
			s.tx.Add(uint64(len(m.Buffers[0])))
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("socket accepted no datagrams")
		}
		sent += n
	}
	return bad
}

// socketToFlow drains the socket in batches and writes each datagram back to
// the flow tagged with the peer that sent it, one write per datagram.
func (s *UDPSession) socketToFlow() {
	msgs := make([]ipv4.Message, udpBatchSize)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, maxDatagram)}
	}

	for {
		n, err := s.pc.ReadBatch(msgs, 0)
		if err != nil {
			s.fail("reading from the socket", err)
			return
		}
		for _, m := range msgs[:n] {
			src, ok := m.Addr.(*net.UDPAddr)
			if !ok {
				continue
			}
			dg := flow.Datagram{
				Payload:  m.Buffers[0][:m.N],
				Endpoint: flow.EndpointFromAddrPort(src.AddrPort()),
			}
			if err := s.dgram.WriteDatagrams(s.ctx, []flow.Datagram{dg}); err != nil {
				s.fail("writing a UDP datagram to the flow", err)
				return
			}
			s.rx.Add(uint64(m.N))
		}
	}
}
