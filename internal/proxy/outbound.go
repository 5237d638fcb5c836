package proxy

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"split-tunnel-proxy/internal/platform"
)

// sockBufSize is the socket buffer size for outbound TCP connections.
const sockBufSize = 2 * 1024 * 1024

// Outbound opens proxy sockets on the configured interface. Every socket is
// bound to the interface's IPv4 address and pinned to the NIC through the
// platform binder.
type Outbound struct {
	lookup platform.InterfaceLookup
	binder platform.InterfaceBinder
}

// NewOutbound creates an outbound socket factory.
func NewOutbound(lookup platform.InterfaceLookup, binder platform.InterfaceBinder) (*Outbound, error) {
	if lookup == nil {
		return nil, fmt.Errorf("[Proxy] interface lookup cannot be nil")
	}
	if binder == nil {
		binder = platform.AddressBinder{}
	}
	return &Outbound{lookup: lookup, binder: binder}, nil
}

// Interface resolves ifName. The result is read once per session.
func (o *Outbound) Interface(ifName string) (platform.NetworkInterface, error) {
	iface, err := o.lookup(ifName)
	if err != nil {
		return platform.NetworkInterface{}, err
	}
	if !iface.IPv4.Is4() {
		return platform.NetworkInterface{}, fmt.Errorf("[Proxy] interface %q has no IPv4 address", ifName)
	}
	return iface, nil
}

// DialTCP connects to dst through iface.
func (o *Outbound) DialTCP(ctx context.Context, iface platform.NetworkInterface, dst netip.AddrPort) (*net.TCPConn, error) {
	dialer := &net.Dialer{
		Control:   o.binder.BindControl(iface),
		LocalAddr: &net.TCPAddr{IP: iface.IPv4.AsSlice()},
	}
	c, err := dialer.DialContext(ctx, "tcp4", dst.String())
	if err != nil {
		return nil, fmt.Errorf("[Proxy] connect %s via %s: %w", dst, iface.Name, err)
	}
	tc := c.(*net.TCPConn)
	tc.SetNoDelay(true)
	tc.SetReadBuffer(sockBufSize)
	tc.SetWriteBuffer(sockBufSize)
	return tc, nil
}

// ListenUDP binds an unconnected UDP socket to iface's IPv4 address with an
// OS-assigned port and SO_REUSEADDR. The socket can reach any number of peers.
func (o *Outbound) ListenUDP(ctx context.Context, iface platform.NetworkInterface) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: platform.ChainControls(o.binder.ReuseAddrControl(), o.binder.BindControl(iface)),
	}
	laddr := netip.AddrPortFrom(iface.IPv4, 0)
	pc, err := lc.ListenPacket(ctx, "udp4", laddr.String())
	if err != nil {
		return nil, fmt.Errorf("[Proxy] bind udp %s via %s: %w", laddr, iface.Name, err)
	}
	return pc.(*net.UDPConn), nil
}
