package proxy

import (
	"errors"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"split-tunnel-proxy/internal/core"
	"split-tunnel-proxy/internal/flow"
	"split-tunnel-proxy/internal/platform"
)

const waitTimeout = 5 * time.Second

// loopbackOutbound binds every socket to 127.0.0.1 without interface options.
func loopbackOutbound(t *testing.T) *Outbound {
	t.Helper()
	out, err := NewOutbound(func(name string) (platform.NetworkInterface, error) {
		return platform.NetworkInterface{Name: name, Index: 1, IPv4: netip.MustParseAddr("127.0.0.1")}, nil
	}, platform.AddressBinder{})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

// brokenOutbound fails every interface lookup.
func brokenOutbound(t *testing.T) *Outbound {
	t.Helper()
	out, err := NewOutbound(func(name string) (platform.NetworkInterface, error) {
		return platform.NetworkInterface{}, errors.New("no such interface")
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func testState() core.VpnState {
	return core.VpnState{NetworkInterface: "lo", Connected: true, RouteVpn: true}
}

func endpointOf(ap netip.AddrPort) flow.Endpoint {
	return flow.Endpoint{Host: ap.Addr().String(), Port: strconv.Itoa(int(ap.Port()))}
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitClosed(t *testing.T, what string, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// eventRecorder collects session events from a bus.
type eventRecorder struct {
	started chan core.SessionPayload
	closed  chan core.SessionPayload
}

func recordEvents(bus *core.EventBus) *eventRecorder {
	r := &eventRecorder{
		started: make(chan core.SessionPayload, 16),
		closed:  make(chan core.SessionPayload, 16),
	}
	bus.Subscribe(core.EventSessionStarted, func(e core.Event) { r.started <- e.Payload.(core.SessionPayload) })
	bus.Subscribe(core.EventSessionClosed, func(e core.Event) { r.closed <- e.Payload.(core.SessionPayload) })
	return r
}
