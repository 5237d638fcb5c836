//go:build !linux && !darwin && !windows

package main

import "split-tunnel-proxy/internal/platform"

func newPlatform() *platform.Platform { return platform.Generic() }
