//go:build darwin

// Package darwin provides macOS platform implementations: IP_BOUND_IF socket
// binding.
package darwin

import "split-tunnel-proxy/internal/platform"

// NewPlatform creates a Platform configured for macOS. Socket marks do not
// exist on macOS, so the routing mark is ignored.
func NewPlatform() *platform.Platform {
	return &platform.Platform{
		LookupInterface: platform.LookupInterfaceNet,
		NewInterfaceBinder: func(int) platform.InterfaceBinder {
			return &InterfaceBinder{}
		},
		NewProcessID: func() platform.ProcessIdentifier { return platform.NewPortTable() },
	}
}
