//go:build darwin

package main

import (
	"split-tunnel-proxy/internal/platform"
	"split-tunnel-proxy/internal/platform/darwin"
)

func newPlatform() *platform.Platform { return darwin.NewPlatform() }
