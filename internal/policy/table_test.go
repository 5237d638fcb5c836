package policy

import (
	"testing"

	"split-tunnel-proxy/internal/core"
)

func TestMatchDescriptor(t *testing.T) {
	tests := []struct {
		descriptor string
		entry      string
		want       bool
	}{
		{"com.example.app", "com.example.app", true},
		{"com.Example.App", "com.example.app", true},
		{"com.example.app2", "com.example.app", false},
		{"/Applications/Foo.app/Contents/MacOS/Foo", "/Applications/Foo.app", true},
		{"/Applications/FooBar.app/Contents/MacOS/FooBar", "/Applications/Foo.app", false},
		{"/opt/tools/bin/run", "/opt/tools/*", true},
		{"/opt/tools/bin/run", "/opt/tools/", true},
		{"/opt/toolsx/run", "/opt/tools/*", false},
		{"/usr/local/bin/curl", "/usr/*/bin/curl", true},
		{"/usr/local/bin/wget", "/usr/*/bin/curl", false},
		{"/usr/bin/curl", "/usr/bin/wget", false},
		{"/usr/bin/curl", "curl", true},
		{"/usr/bin/curlx", "curl", false},
		{"com.example.curl", "curl", false},
		{"/usr/bin/firefox-esr", "regex:firefox(-esr)?$", true},
		{"/usr/bin/firefox", "regex:[", false},
		{"", "curl", false},
		{"/usr/bin/curl", "", false},
	}
	for _, tt := range tests {
		if got := MatchDescriptor(tt.descriptor, tt.entry); got != tt.want {
			t.Errorf("MatchDescriptor(%q, %q) = %v, want %v", tt.descriptor, tt.entry, got, tt.want)
		}
	}
}

func TestAppTableLookup(t *testing.T) {
	base := core.VpnState{
		BypassApps:  []string{"com.example.bypass", "/Applications/Both.app"},
		VpnOnlyApps: []string{"com.example.vpnonly", "/Applications/Both.app"},
	}
	with := func(routeVpn, connected bool) core.VpnState {
		s := base.Clone()
		s.RouteVpn = routeVpn
		s.Connected = connected
		return s
	}

	tests := []struct {
		name       string
		descriptor string
		state      core.VpnState
		policy     Policy
		mode       Mode
	}{
		{"bypass routed through vpn", "com.example.bypass", with(true, true), Proxy, Bypass},
		{"bypass without vpn route", "com.example.bypass", with(false, true), Ignore, Bypass},
		{"bypass disconnected", "com.example.bypass", with(true, false), Ignore, Bypass},
		{"vpn-only disconnected", "com.example.vpnonly", with(false, false), Block, VpnOnly},
		{"vpn-only disconnected with vpn route", "com.example.vpnonly", with(true, false), Block, VpnOnly},
		{"vpn-only physical default route", "com.example.vpnonly", with(false, true), Proxy, VpnOnly},
		{"vpn-only vpn default route", "com.example.vpnonly", with(true, true), Ignore, VpnOnly},
		{"bypass wins over vpn-only", "/Applications/Both.app/Contents/MacOS/Both", with(true, true), Proxy, Bypass},
		{"unknown", "com.example.other", with(true, true), Ignore, Unspecified},
		{"empty", "", with(true, true), Ignore, Unspecified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, mode := AppTable{}.Lookup(tt.descriptor, tt.state)
			if policy != tt.policy || mode != tt.mode {
				t.Errorf("Lookup(%q) = (%s, %s), want (%s, %s)", tt.descriptor, policy, mode, tt.policy, tt.mode)
			}
		})
	}
}
