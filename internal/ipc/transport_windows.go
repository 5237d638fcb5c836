//go:build windows

package ipc

import (
	"net"
	"strings"
	"time"

	"github.com/Microsoft/go-winio"
)

// DefaultPipeName is used when no pipe name is configured.
const DefaultPipeName = `\\.\pipe\st-proxy`

// pipeName maps a configured address to a pipe path. Unix socket paths
// shared with other platforms' configs fall back to DefaultPipeName.
func pipeName(name string) string {
	if !strings.HasPrefix(name, `\\.\pipe\`) {
		return DefaultPipeName
	}
	return name
}

// Listen creates a named pipe listener. Any authenticated user may connect.
func Listen(name string) (net.Listener, error) {
	name = pipeName(name)
	cfg := &winio.PipeConfig{
		SecurityDescriptor: "D:P(A;;GA;;;AU)",
		InputBufferSize:    64 * 1024,
		OutputBufferSize:   64 * 1024,
	}
	return winio.ListenPipe(name, cfg)
}

func dialAddress(name string, timeout time.Duration) (net.Conn, error) {
	name = pipeName(name)
	return winio.DialPipe(name, &timeout)
}
