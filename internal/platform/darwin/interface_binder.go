//go:build darwin

package darwin

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"split-tunnel-proxy/internal/platform"
)

const ipBoundIF = 25 // IP_BOUND_IF (IPPROTO_IP level on macOS)

// InterfaceBinder implements platform.InterfaceBinder using IP_BOUND_IF.
type InterfaceBinder struct{}

// BindControl returns a control function that forces sockets through the NIC
// identified by iface.Index.
func (b *InterfaceBinder) BindControl(iface platform.NetworkInterface) platform.Control {
	return func(network, address string, c syscall.RawConn) error {
		var setErr error
		err := c.Control(func(fd uintptr) {
			setErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, ipBoundIF, int(iface.Index))
		})
		if err != nil {
			return fmt.Errorf("control: %w", err)
		}
		if setErr != nil {
			return fmt.Errorf("IP_BOUND_IF %s: %w", iface.Name, setErr)
		}
		return nil
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
