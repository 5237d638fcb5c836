//go:build !windows

package ipc

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"time"
)

// Listen creates the control socket at path, replacing a stale one. The
// socket is world-writable so an unprivileged daemon can reach it.
func Listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o666); err != nil {
		ln.Close()
		return nil, err
	}
	return ln, nil
}

func dialAddress(path string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", path, timeout)
}
