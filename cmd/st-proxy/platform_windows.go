//go:build windows

package main

import (
	"split-tunnel-proxy/internal/platform"
	"split-tunnel-proxy/internal/platform/windows"
)

func newPlatform() *platform.Platform { return windows.NewPlatform() }
