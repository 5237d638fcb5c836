package redirect

import (
	"net/netip"

	"split-tunnel-proxy/internal/platform"
	"split-tunnel-proxy/internal/process"
)

// TokenPIDs resolves the credential tokens of redirected flows (the
// application's "ip:port") to the process that owns that TCP port.
func TokenPIDs(ports platform.ProcessIdentifier) process.PIDResolverFunc {
	return func(token []byte) (uint32, bool) {
		ap, err := netip.ParseAddrPort(string(token))
		if err != nil {
			return 0, false
		}
		pid, err := ports.FindPIDByPort(ap.Port(), false)
		if err != nil || pid == 0 {
			return 0, false
		}
		return pid, true
	}
}
