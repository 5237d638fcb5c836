package platform

// Platform aggregates all platform-specific implementations.
// Populated by platform-specific factory (NewPlatform) in platform/linux/,
// platform/windows/ or platform/darwin/.
type Platform struct {
	LookupInterface InterfaceLookup

	// NewInterfaceBinder creates a binder. routingMark is applied where the OS
	// supports socket marks (Linux SO_MARK); zero leaves sockets unmarked.
	NewInterfaceBinder func(routingMark int) InterfaceBinder

	NewProcessID func() ProcessIdentifier
}

// Generic returns a Platform for systems without native binding support:
// interfaces come from the standard library and sockets are pinned only by
// local address.
func Generic() *Platform {
	return &Platform{
		LookupInterface:    LookupInterfaceNet,
		NewInterfaceBinder: func(int) InterfaceBinder { return AddressBinder{} },
		NewProcessID:       func() ProcessIdentifier { return NewPortTable() },
	}
}
