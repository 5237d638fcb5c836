//go:build windows

package windows

import (
	"encoding/binary"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"split-tunnel-proxy/internal/platform"
)

const ipUnicastIF = 31 // IP_UNICAST_IF (IPPROTO_IP level)

// InterfaceBinder implements platform.InterfaceBinder using IP_UNICAST_IF.
type InterfaceBinder struct{}

// BindControl returns a control function that forces sockets through the NIC
// identified by iface.Index.
func (b *InterfaceBinder) BindControl(iface platform.NetworkInterface) platform.Control {
	return func(network, address string, c syscall.RawConn) error {
		var setErr error
		err := c.Control(func(fd uintptr) {
			// IP_UNICAST_IF needs interface index in network byte order for IPv4.
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], iface.Index)
			idx := *(*int32)(unsafe.Pointer(&buf[0]))
			setErr = windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_IP, ipUnicastIF, int(idx))
		})
		if err != nil {
			return fmt.Errorf("control: %w", err)
		}
		if setErr != nil {
			return fmt.Errorf("IP_UNICAST_IF %s: %w", iface.Name, setErr)
		}
		return nil
	}
}

// ReuseAddrControl returns a control function enabling SO_REUSEADDR.
func (b *InterfaceBinder) ReuseAddrControl() platform.Control {
	return func(network, address string, c syscall.RawConn) error {
		var setErr error
		err := c.Control(func(fd uintptr) {
			setErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
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
