//go:build linux

package main

import (
	"split-tunnel-proxy/internal/platform"
	"split-tunnel-proxy/internal/platform/linux"
)

func newPlatform() *platform.Platform { return linux.NewPlatform() }
