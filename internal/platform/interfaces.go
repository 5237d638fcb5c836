package platform

import (
	"fmt"
	"net"
	"net/netip"
	"syscall"
)

// Control is a socket control hook for net.Dialer and net.ListenConfig.
type Control func(network, address string, c syscall.RawConn) error

// NetworkInterface identifies the NIC proxied traffic leaves through.
type NetworkInterface struct {
	Name  string
	Index uint32
	IPv4  netip.Addr // first IPv4 address assigned to the NIC
}

// InterfaceLookup resolves an interface name to its index and IPv4 address.
type InterfaceLookup func(name string) (NetworkInterface, error)

// InterfaceBinder creates socket control functions for binding to specific NICs
// (SO_BINDTODEVICE on Linux, IP_UNICAST_IF on Windows, IP_BOUND_IF on macOS).
type InterfaceBinder interface {
	// BindControl returns a control function that forces sockets through iface.
	BindControl(iface NetworkInterface) Control
	// ReuseAddrControl returns a control function enabling SO_REUSEADDR.
	ReuseAddrControl() Control
}

// ProcessIdentifier finds the owning PID for network connections.
type ProcessIdentifier interface {
	// FindPIDByPort finds the PID owning a connection with the given local port.
	FindPIDByPort(srcPort uint16, isUDP bool) (uint32, error)
}

// ChainControls runs every non-nil control in order and stops at the first error.
func ChainControls(controls ...Control) Control {
	return func(network, address string, c syscall.RawConn) error {
		for _, ctl := range controls {
			if ctl == nil {
				continue
			}
			if err := ctl(network, address, c); err != nil {
				return err
			}
		}
		return nil
	}
}

// AddressBinder only pins the local address; it sets no socket options.
// Used where the OS offers no per-socket interface binding.
type AddressBinder struct{}

func (AddressBinder) BindControl(NetworkInterface) Control { return nil }
func (AddressBinder) ReuseAddrControl() Control            { return nil }

// LookupInterfaceNet resolves an interface through the standard library.
func LookupInterfaceNet(name string) (NetworkInterface, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return NetworkInterface{}, fmt.Errorf("[Platform] interface %q: %w", name, err)
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return NetworkInterface{}, fmt.Errorf("[Platform] addresses of %q: %w", name, err)
	}
	var ips []net.IP
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok {
			ips = append(ips, ipn.IP)
		}
	}
	ip, err := FirstIPv4(name, ips)
	if err != nil {
		return NetworkInterface{}, err
	}
	return NetworkInterface{Name: ifi.Name, Index: uint32(ifi.Index), IPv4: ip}, nil
}

// FirstIPv4 picks the first IPv4 address from the addresses of interface name.
func FirstIPv4(name string, ips []net.IP) (netip.Addr, error) {
	for _, raw := range ips {
		ip, ok := netip.AddrFromSlice(raw)
		if !ok {
			continue
		}
		if ip = ip.Unmap(); ip.Is4() {
			return ip, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("[Platform] interface %q has no IPv4 address", name)
}

