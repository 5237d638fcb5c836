//go:build linux

package redirect

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// ip6tSoOriginalDst is IP6T_SO_ORIGINAL_DST from linux/netfilter_ipv6/ip6_tables.h.
const ip6tSoOriginalDst = 80

// originalDst recovers the destination a connection had before the firewall
// redirected it (netfilter REDIRECT/DNAT).
func originalDst(conn *net.TCPConn) (netip.AddrPort, error) {
	local, ok := conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("[Redirect] unexpected local address %v", conn.LocalAddr())
	}
	ipv4 := local.AddrPort().Addr().Unmap().Is4()

	raw, err := conn.SyscallConn()
	if err != nil {
		return netip.AddrPort{}, err
	}

	var dst netip.AddrPort
	var optErr error
	err = raw.Control(func(fd uintptr) {
		if ipv4 {
			mreq, err := unix.GetsockoptIPv6Mreq(int(fd), unix.SOL_IP, unix.SO_ORIGINAL_DST)
			if err != nil {
				optErr = fmt.Errorf("SO_ORIGINAL_DST: %w", err)
				return
			}
			// struct sockaddr_in: family(2) port(2, network order) addr(4)
			sa := mreq.Multiaddr
			addr := netip.AddrFrom4([4]byte{sa[4], sa[5], sa[6], sa[7]})
			dst = netip.AddrPortFrom(addr, binary.BigEndian.Uint16(sa[2:4]))
			return
		}
		info, err := unix.GetsockoptIPv6MTUInfo(int(fd), unix.SOL_IPV6, ip6tSoOriginalDst)
		if err != nil {
			optErr = fmt.Errorf("IP6T_SO_ORIGINAL_DST: %w", err)
			return
		}
		var port [2]byte
		binary.NativeEndian.PutUint16(port[:], info.Addr.Port)
		dst = netip.AddrPortFrom(netip.AddrFrom16(info.Addr.Addr), binary.BigEndian.Uint16(port[:]))
	})
	if err != nil {
		return netip.AddrPort{}, err
	}
	if optErr != nil {
		return netip.AddrPort{}, fmt.Errorf("[Redirect] %w", optErr)
	}
	return dst, nil
}
