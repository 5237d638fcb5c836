// Package policy decides what happens to an intercepted flow.
package policy

import (
	"path"
	"regexp"
	"strings"

	"split-tunnel-proxy/internal/core"
)

// Policy is the admission verdict for a flow.
type Policy int

const (
	// Ignore hands the flow back to the system's default routing.
	Ignore Policy = iota
	// Proxy forwards the flow through the configured interface.
	Proxy
	// Block closes the flow.
	Block
)

func (p Policy) String() string {
	switch p {
	case Ignore:
		return "ignore"
	case Proxy:
		return "proxy"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// Mode classifies an application descriptor.
type Mode int

const (
	Unspecified Mode = iota
	Bypass
	VpnOnly
)

func (m Mode) String() string {
	switch m {
	case Unspecified:
		return "unspecified"
	case Bypass:
		return "bypass"
	case VpnOnly:
		return "vpn-only"
	default:
		return "unknown"
	}
}

// Table looks up the policy and mode of an application descriptor.
type Table interface {
	Lookup(descriptor string, state core.VpnState) (Policy, Mode)
}

// AppTable matches descriptors against the bypass and vpn-only sets of a VpnState.
type AppTable struct{}

// Lookup implements Table.
//
//	bypass:   proxy when the default route is the tunnel and it is up, else ignore
//	vpn-only: block while disconnected, proxy when the default route is physical, else ignore
func (AppTable) Lookup(descriptor string, state core.VpnState) (Policy, Mode) {
	if descriptor == "" {
		return Ignore, Unspecified
	}
	if matchAny(descriptor, state.BypassApps) {
		if state.RouteVpn && state.Connected {
			return Proxy, Bypass
		}
		return Ignore, Bypass
	}
	if matchAny(descriptor, state.VpnOnlyApps) {
		switch {
		case !state.Connected:
			return Block, VpnOnly
		case !state.RouteVpn:
			return Proxy, VpnOnly
		default:
			return Ignore, VpnOnly
		}
	}
	return Ignore, Unspecified
}

func matchAny(descriptor string, entries []string) bool {
	for _, e := range entries {
		if MatchDescriptor(descriptor, e) {
			return true
		}
	}
	return false
}

// MatchDescriptor reports whether a descriptor (signing identifier or
// executable path) matches a configured entry. Comparison is case-insensitive.
//
// Entry types:
//   - "com.example.app"           → exact match
//   - "/Applications/Foo.app"     → bundle prefix match
//   - "/opt/tools/*", "/opt/"     → directory prefix match
//   - "/usr/*/bin/curl"           → full path glob
//   - "regex:<expr>"              → regular expression on the lowercased descriptor
//   - "curl"                      → executable name of a path descriptor
func MatchDescriptor(descriptor, entry string) bool {
	if descriptor == "" || entry == "" {
		return false
	}

	if strings.HasPrefix(entry, "regex:") {
		re, err := regexp.Compile(entry[6:])
		if err != nil {
			return false
		}
		return re.MatchString(strings.ToLower(descriptor))
	}

	descLower := strings.ToLower(descriptor)
	entryLower := strings.ToLower(entry)

	if descLower == entryLower {
		return true
	}

	// Directory or bundle prefix.
	dir := ""
	switch {
	case strings.HasSuffix(entryLower, "/*"):
		dir = entryLower[:len(entryLower)-1]
	case strings.HasSuffix(entryLower, "/"):
		dir = entryLower
	case strings.HasSuffix(entryLower, ".app"):
		dir = entryLower + "/"
	}
	if dir != "" {
		return strings.HasPrefix(descLower, dir)
	}

	if strings.Contains(entryLower, "/") {
		if strings.ContainsAny(entryLower, "*?[") {
			matched, _ := path.Match(entryLower, descLower)
			return matched
		}
		return false
	}

	// Bare executable name against a path descriptor.
	if strings.Contains(descLower, "/") {
		return path.Base(descLower) == entryLower
	}
	return false
}
