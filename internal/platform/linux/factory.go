//go:build linux

// Package linux provides Linux platform implementations: netlink interface
// discovery and SO_BINDTODEVICE/SO_MARK socket binding.
package linux

import "split-tunnel-proxy/internal/platform"

// NewPlatform creates a Platform configured for Linux.
func NewPlatform() *platform.Platform {
	return &platform.Platform{
		LookupInterface: LookupInterface,
		NewInterfaceBinder: func(routingMark int) platform.InterfaceBinder {
			return &InterfaceBinder{RoutingMark: routingMark}
		},
		NewProcessID: func() platform.ProcessIdentifier { return platform.NewPortTable() },
	}
}
