//go:build linux

package linux

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"split-tunnel-proxy/internal/platform"
)

// LookupInterface resolves a link by name over netlink and returns its index
// and first IPv4 address.
func LookupInterface(name string) (platform.NetworkInterface, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return platform.NetworkInterface{}, fmt.Errorf("[Platform] link %q: %w", name, err)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return platform.NetworkInterface{}, fmt.Errorf("[Platform] addresses of %q: %w", name, err)
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if a.IPNet != nil {
			ips = append(ips, a.IPNet.IP)
		}
	}
	ip, err := platform.FirstIPv4(name, ips)
	if err != nil {
		return platform.NetworkInterface{}, err
	}
	attrs := link.Attrs()
	return platform.NetworkInterface{Name: attrs.Name, Index: uint32(attrs.Index), IPv4: ip}, nil
}
