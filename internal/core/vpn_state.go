package core

import (
	"fmt"
	"slices"
)

// VpnState is the routing state received from the VPN daemon.
// Values are treated as immutable once published; reconfiguration replaces
// the whole value.
type VpnState struct {
	BypassApps       []string `yaml:"bypass_apps"`
	VpnOnlyApps      []string `yaml:"vpn_only_apps"`
	NetworkInterface string   `yaml:"network_interface"`
	ServerAddress    string   `yaml:"server_address"`
	RouteVpn         bool     `yaml:"route_vpn"`
	Connected        bool     `yaml:"connected"`
	GroupName        string   `yaml:"whitelist_group_name"`
}

// Clone returns a deep copy so callers cannot alias the descriptor slices.
func (s VpnState) Clone() VpnState {
	s.BypassApps = slices.Clone(s.BypassApps)
	s.VpnOnlyApps = slices.Clone(s.VpnOnlyApps)
	return s
}

// Option keys accepted by NewVpnStateFromOptions.
const (
	OptBypassApps       = "bypassApps"
	OptVpnOnlyApps      = "vpnOnlyApps"
	OptNetworkInterface = "networkInterface"
	OptServerAddress    = "serverAddress"
	OptRouteVpn         = "routeVpn"
	OptConnected        = "connected"
	OptGroupName        = "whitelistGroupName"
)

// NewVpnStateFromOptions validates a daemon options dictionary and builds a
// VpnState. Every key is required and must carry the expected type.
func NewVpnStateFromOptions(opts map[string]any) (VpnState, error) {
	var s VpnState
	if opts == nil {
		return s, fmt.Errorf("[Core] options are missing")
	}

	var err error
	if s.BypassApps, err = stringList(opts, OptBypassApps); err != nil {
		return VpnState{}, err
	}
	if s.VpnOnlyApps, err = stringList(opts, OptVpnOnlyApps); err != nil {
		return VpnState{}, err
	}
	if s.NetworkInterface, err = typed[string](opts, OptNetworkInterface); err != nil {
		return VpnState{}, err
	}
	if s.ServerAddress, err = typed[string](opts, OptServerAddress); err != nil {
		return VpnState{}, err
	}
	if s.RouteVpn, err = typed[bool](opts, OptRouteVpn); err != nil {
		return VpnState{}, err
	}
	if s.Connected, err = typed[bool](opts, OptConnected); err != nil {
		return VpnState{}, err
	}
	if s.GroupName, err = typed[string](opts, OptGroupName); err != nil {
		return VpnState{}, err
	}
	return s, nil
}

func typed[T any](opts map[string]any, key string) (T, error) {
	var zero T
	raw, ok := opts[key]
	if !ok {
		return zero, fmt.Errorf("[Core] cannot find %s in options", key)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("[Core] option %s has type %T, want %T", key, raw, zero)
	}
	return v, nil
}

// stringList accepts []string or a decoded JSON array of strings.
func stringList(opts map[string]any, key string) ([]string, error) {
	raw, ok := opts[key]
	if !ok {
		return nil, fmt.Errorf("[Core] cannot find %s in options", key)
	}
	switch v := raw.(type) {
	case []string:
		return slices.Clone(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("[Core] option %s[%d] has type %T, want string", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("[Core] option %s has type %T, want a list of strings", key, raw)
	}
}
