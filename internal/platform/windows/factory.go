//go:build windows

// Package windows provides Windows platform implementations.
package windows

import "split-tunnel-proxy/internal/platform"

// NewPlatform creates a Platform configured for Windows. Socket marks do not
// exist on Windows, so the routing mark is ignored.
func NewPlatform() *platform.Platform {
	return &platform.Platform{
		LookupInterface: platform.LookupInterfaceNet,
		NewInterfaceBinder: func(int) platform.InterfaceBinder {
			return &InterfaceBinder{}
		},
		NewProcessID: func() platform.ProcessIdentifier { return platform.NewPortTable() },
	}
}
