package proxy

import (
	"context"
	"sync"
	"sync/atomic"

	"split-tunnel-proxy/internal/core"
	"split-tunnel-proxy/internal/flow"
	"split-tunnel-proxy/internal/platform"
	"split-tunnel-proxy/internal/policy"
)

// Dispatcher admits newly intercepted flows. It applies the policy verdict
// and starts a forwarding session for every proxied flow.
type Dispatcher struct {
	evaluator *policy.Evaluator
	factory   SessionFactory
	registry  *Registry
	bus       *core.EventBus
	log       *core.Logger

	ids   core.IDGenerator
	state atomic.Pointer[core.VpnState]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// DispatcherConfig holds the dispatcher's collaborators.
type DispatcherConfig struct {
	Evaluator *policy.Evaluator
	Factory   SessionFactory
	Registry  *Registry
	Bus       *core.EventBus
	Log       *core.Logger
	// State is the initial VPN state.
	State core.VpnState
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	log := cfg.Log
	if log == nil {
		log = core.Discard()
	}
	evaluator := cfg.Evaluator
	if evaluator == nil {
		evaluator = policy.NewEvaluator(nil, nil, log)
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(cfg.Bus)
	}
	factory := cfg.Factory
	if factory == nil {
		// Unpinned sockets bound by address; the lookup is never nil.
		out, _ := NewOutbound(platform.LookupInterfaceNet, platform.AddressBinder{})
		factory = &DefaultFactory{Outbound: out, Registry: registry, Log: log}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		evaluator: evaluator,
		factory:   factory,
		registry:  registry,
		bus:       cfg.Bus,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
	st := cfg.State.Clone()
	d.state.Store(&st)
	return d
}

// HandleNewFlow decides what happens to f. True means the dispatcher owns the
// flow (it is being proxied or was closed by policy); false hands it back to
// the system's default routing.
func (d *Dispatcher) HandleNewFlow(f flow.Flow) bool {
	if !policy.IsIPv4(f) {
		d.log.Debugf("Dispatch", "%s flow to %s is IPv6, not handled", flow.Kind(f), flow.RemoteHost(f))
		return false
	}

	state := d.State()
	decision := d.evaluator.Decide(f, state)
	switch decision.Policy {
	case policy.Block:
		f.CloseReadAndWrite(flow.ErrPolicyBlocked)
		d.log.Warnf("Dispatch", "%s Blocking a new %s flow (mode=%s)", decision.Descriptor, flow.Kind(f), decision.Mode)
		return true
	case policy.Proxy:
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return false
		}
		d.wg.Add(1)
		d.mu.Unlock()

		d.log.Infof("Dispatch", "%s Proxying a new %s flow (mode=%s)", decision.Descriptor, flow.Kind(f), decision.Mode)
		go d.open(f, SessionConfig{
			VpnState:   state,
			Descriptor: decision.Descriptor,
			Mode:       decision.Mode,
		})
		return true
	default:
		return false
	}
}

// open completes interception and starts a session. An open failure
// abandons the flow without creating a session.
func (d *Dispatcher) open(f flow.Flow, cfg SessionConfig) {
	defer d.wg.Done()

	if err := f.Open(d.ctx); err != nil {
		d.log.Errorf("Dispatch", "%s %v in %s open()", cfg.Descriptor, err, flow.Kind(f))
		return
	}

	var s Session
	switch fl := f.(type) {
	case flow.StreamFlow:
		s = d.factory.NewTCP(d.ids.Next(), fl, cfg)
	case flow.DatagramFlow:
		s = d.factory.NewUDP(d.ids.Next(), fl, cfg)
	default:
		d.log.Errorf("Dispatch", "%s unsupported flow type %T", cfg.Descriptor, f)
		return
	}
	s.Start(d.ctx)
}

// Reconfigure replaces the VPN state used for future admission decisions.
// Running sessions keep the state they were created with.
func (d *Dispatcher) Reconfigure(s core.VpnState) {
	next := s.Clone()
	old := d.state.Swap(&next)
	d.log.Infof("Dispatch", "VPN state updated: interface=%s connected=%v routeVpn=%v bypass=%d vpnOnly=%d",
		next.NetworkInterface, next.Connected, next.RouteVpn, len(next.BypassApps), len(next.VpnOnlyApps))
	d.bus.Publish(core.Event{
		Type:    core.EventVpnStateChanged,
		Payload: core.VpnStatePayload{Old: old.Clone(), New: next.Clone()},
	})
}

// State returns a copy of the VPN state in effect.
func (d *Dispatcher) State() core.VpnState {
	return d.state.Load().Clone()
}

// Registry returns the live-session registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Close cancels pending opens and terminates every live session.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	d.registry.TerminateAll()
	d.log.Infof("Dispatch", "Stopped")
}
