//go:build linux

package linux

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"split-tunnel-proxy/internal/platform"
)

// InterfaceBinder implements platform.InterfaceBinder using SO_BINDTODEVICE.
// A non-zero RoutingMark is also stamped with SO_MARK so firewall redirect
// rules can skip the proxy's own sockets.
type InterfaceBinder struct {
	RoutingMark int
}

// BindControl returns a control function that forces sockets through iface.
func (b *InterfaceBinder) BindControl(iface platform.NetworkInterface) platform.Control {
	return func(network, address string, c syscall.RawConn) error {
		var setErr error
		err := c.Control(func(fd uintptr) {
			if iface.Name != "" {
				if setErr = unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, iface.Name); setErr != nil {
					setErr = fmt.Errorf("SO_BINDTODEVICE %s: %w", iface.Name, setErr)
					return
				}
			}
			if b.RoutingMark != 0 {
				if setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_MARK, b.RoutingMark); setErr != nil {
					setErr = fmt.Errorf("SO_MARK %d: %w", b.RoutingMark, setErr)
				}
			}
		})
		if err != nil {
			return fmt.Errorf("control: %w", err)
		}
		return setErr
	}
}

// ReuseAddrControl returns a control function enabling SO_REUSEADDR.
func (b *InterfaceBinder) ReuseAddrControl() platform.Control {
	return func(network, address string, c syscall.RawConn) error {
		var setErr error
		err := c.Control(func(fd uintptr) {
			setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		})
		if err != nil {
			return fmt.Errorf("control: %w", err)
		}
		if setErr != nil {
			return fmt.Errorf("SO_REUSEADDR: %w", setErr)
		}
		return nil
	}
}
