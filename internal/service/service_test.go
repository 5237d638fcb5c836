package service

import (
	"path/filepath"
	"sync"
	"testing"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"split-tunnel-proxy/internal/core"
	"split-tunnel-proxy/internal/proxy"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	state core.VpnState
	calls int
}

func (f *fakeDispatcher) Reconfigure(s core.VpnState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
	f.calls++
}

func (f *fakeDispatcher) State() core.VpnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func validOptions() map[string]any {
	return map[string]any{
		core.OptBypassApps:       []any{"com.example.app"},
		core.OptVpnOnlyApps:      []any{},
		core.OptNetworkInterface: "en0",
		core.OptServerAddress:    "203.0.113.7",
		core.OptRouteVpn:         true,
		core.OptConnected:        true,
		core.OptGroupName:        "group",
	}
}

func resultOf(t *testing.T, s *structpb.Struct) string {
	t.Helper()
	return s.GetFields()["result"].GetStringValue()
}

func TestUpdateState_Valid(t *testing.T) {
	d := &fakeDispatcher{}
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cm := core.NewConfigManager(cfgPath, nil)
	if err := cm.Load(); err != nil {
		t.Fatal(err)
	}
	svc := New(Config{Dispatcher: d, ConfigManager: cm})

	req, err := structpb.NewValue(validOptions())
	if err != nil {
		t.Fatal(err)
	}
	resp, err := svc.UpdateState(t.Context(), req)
	if err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	if got := resultOf(t, resp); got != ResultOK {
		t.Errorf("result = %q, want %q", got, ResultOK)
	}
	if d.calls != 1 || d.state.NetworkInterface != "en0" || len(d.state.BypassApps) != 1 {
		t.Errorf("dispatcher got %d calls, state %+v", d.calls, d.state)
	}

	// The accepted state is persisted.
	reloaded := core.NewConfigManager(cfgPath, nil)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Get().Vpn.NetworkInterface; got != "en0" {
		t.Errorf("persisted interface = %q", got)
	}
}

func TestUpdateState_BadOptions(t *testing.T) {
	d := &fakeDispatcher{}
	svc := New(Config{Dispatcher: d})

	opts := validOptions()
	delete(opts, core.OptConnected)
	req, _ := structpb.NewValue(opts)

	resp, err := svc.UpdateState(t.Context(), req)
	if err != nil {
		t.Fatalf("UpdateState returned an RPC error: %v", err)
	}
	if got := resultOf(t, resp); got != ResultBadOptions {
		t.Errorf("result = %q, want %q", got, ResultBadOptions)
	}
	if d.calls != 0 {
		t.Error("dispatcher reconfigured with bad options")
	}
}

func TestUpdateState_NotAnObject(t *testing.T) {
	d := &fakeDispatcher{}
	svc := New(Config{Dispatcher: d})

	for _, v := range []*structpb.Value{
		structpb.NewStringValue("{}"),
		structpb.NewListValue(&structpb.ListValue{}),
		structpb.NewNullValue(),
		nil,
	} {
		resp, err := svc.UpdateState(t.Context(), v)
		if err != nil {
			t.Fatal(err)
		}
		if got := resultOf(t, resp); got != ResultDeserializationError {
			t.Errorf("UpdateState(%v) = %q, want %q", v, got, ResultDeserializationError)
		}
	}
	if d.calls != 0 {
		t.Error("dispatcher reconfigured from a non-object payload")
	}
}

func TestGetStatus(t *testing.T) {
	d := &fakeDispatcher{state: core.VpnState{NetworkInterface: "en0", Connected: true}}
	reg := proxy.NewRegistry(nil)
	reg.Add(&fakeSession{info: proxy.SessionInfo{ID: 1, Protocol: "tcp", TxBytes: 100, RxBytes: 200}})
	reg.Add(&fakeSession{info: proxy.SessionInfo{ID: 2, Protocol: "udp", TxBytes: 5, RxBytes: 7}})

	svc := New(Config{
		Dispatcher: d,
		Stats:      NewStatsCollector(reg, nil, nil),
		Version:    "1.2.3",
	})

	resp, err := svc.GetStatus(t.Context(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	m := resp.AsMap()
	want := map[string]any{
		"active_sessions":   float64(2),
		"total_sessions":    float64(2),
		"tcp_tx_bytes":      float64(100),
		"tcp_rx_bytes":      float64(200),
		"udp_tx_bytes":      float64(5),
		"udp_rx_bytes":      float64(7),
		"network_interface": "en0",
		"connected":         true,
		"route_vpn":         false,
		"version":           "1.2.3",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %v, want %v", k, m[k], v)
		}
	}
	if _, ok := m["uptime_seconds"]; !ok {
		t.Error("uptime_seconds missing")
	}
}
