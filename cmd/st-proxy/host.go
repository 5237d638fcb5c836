package main

import (
	"context"
	"runtime"

	"split-tunnel-proxy/internal/core"
	"split-tunnel-proxy/internal/host/redirect"
	"split-tunnel-proxy/internal/platform"
	"split-tunnel-proxy/internal/process"
)

// tokenPIDs resolves credential tokens. Only the redirect host issues tokens,
// and its tokens are the application's local address.
func tokenPIDs(ports platform.ProcessIdentifier) process.PIDResolver {
	return redirect.TokenPIDs(ports)
}

// startRedirectHost starts the redirect host when one is configured. The
// returned stop function is nil when no host runs.
func startRedirectHost(ctx context.Context, cfg core.RedirectConfig, d redirect.Admitter, binder platform.InterfaceBinder, log *core.Logger) (func(), error) {
	if cfg.Listen == "" {
		return nil, nil
	}
	if runtime.GOOS != "linux" {
		log.Warnf("Redirect", "The redirect host needs netfilter and is disabled on %s", runtime.GOOS)
		return nil, nil
	}
	h := redirect.NewHost(redirect.Config{
		Listen:     cfg.Listen,
		Dispatcher: d,
		// An empty interface applies only the routing mark.
		DirectControl: binder.BindControl(platform.NetworkInterface{}),
		Log:           log,
	})
	if err := h.Start(ctx); err != nil {
		return nil, err
	}
	return h.Stop, nil
}
