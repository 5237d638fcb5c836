package service

import (
	"context"
	"sync"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"

	"split-tunnel-proxy/internal/core"
	"split-tunnel-proxy/internal/proxy"
)

const statsInterval = 1 * time.Second

// SessionSource is the live-session view the collector samples.
type SessionSource interface {
	Snapshot() []proxy.SessionInfo
	Total() uint64
}

// Traffic is a byte count pair as seen from the application: Tx goes
// upstream, Rx comes back.
type Traffic struct {
	Tx uint64
	Rx uint64
}

// StatsSnapshot is a point-in-time view of proxy traffic.
type StatsSnapshot struct {
	ActiveSessions int
	TotalSessions  uint64
	TCP            Traffic
	UDP            Traffic
	// Interface holds the OS counters of the outbound interface, when known.
	Interface Traffic
	Timestamp time.Time
}

// StatsCollector periodically samples the session registry. Bytes of sessions
// that have closed are accumulated from EventSessionClosed so totals survive
// the session leaving the registry.
type StatsCollector struct {
	source SessionSource
	iface  func() string

	// counters reads per-NIC OS counters; replaced in tests.
	counters func(ctx context.Context) ([]psnet.IOCountersStat, error)

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	closed map[string]Traffic // protocol → bytes of finished sessions
	latest StatsSnapshot
}

// NewStatsCollector creates a collector over source. iface returns the name of
// the interface whose OS counters are reported; it may be nil.
func NewStatsCollector(source SessionSource, bus *core.EventBus, iface func() string) *StatsCollector {
	sc := &StatsCollector{
		source: source,
		iface:  iface,
		counters: func(ctx context.Context) ([]psnet.IOCountersStat, error) {
			return psnet.IOCountersWithContext(ctx, true)
		},
		closed: make(map[string]Traffic),
	}
	if bus != nil {
		bus.Subscribe(core.EventSessionClosed, sc.onSessionClosed)
	}
	return sc
}

func (sc *StatsCollector) onSessionClosed(e core.Event) {
	p, ok := e.Payload.(core.SessionPayload)
	if !ok {
		return
	}
	sc.mu.Lock()
	t := sc.closed[p.Protocol]
	t.Tx += p.TxBytes
	t.Rx += p.RxBytes
	sc.closed[p.Protocol] = t
	sc.mu.Unlock()
}

// Start begins periodic collection.
func (sc *StatsCollector) Start(ctx context.Context) {
	ctx, sc.cancel = context.WithCancel(ctx)
	sc.done = make(chan struct{})
	go sc.loop(ctx)
}

// Stop halts collection.
func (sc *StatsCollector) Stop() {
	if sc.cancel == nil {
		return
	}
	sc.cancel()
	<-sc.done
}

// Latest returns the most recent sample.
func (sc *StatsCollector) Latest() StatsSnapshot {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.latest
}

func (sc *StatsCollector) loop(ctx context.Context) {
	defer close(sc.done)
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	sc.store(sc.Collect(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sc.store(sc.Collect(ctx))
		}
	}
}

func (sc *StatsCollector) store(snap StatsSnapshot) {
	sc.mu.Lock()
	sc.latest = snap
	sc.mu.Unlock()
}

// Collect takes a fresh sample without storing it.
func (sc *StatsCollector) Collect(ctx context.Context) StatsSnapshot {
	sessions := sc.source.Snapshot()

	sc.mu.RLock()
	snap := StatsSnapshot{
		ActiveSessions: len(sessions),
		TotalSessions:  sc.source.Total(),
		TCP:            sc.closed["tcp"],
		UDP:            sc.closed["udp"],
		Timestamp:      time.Now(),
	}
	sc.mu.RUnlock()

	for _, s := range sessions {
		t := &snap.TCP
		if s.Protocol == "udp" {
			t = &snap.UDP
		}
		t.Tx += s.TxBytes
		t.Rx += s.RxBytes
	}

	if sc.iface != nil {
		if name := sc.iface(); name != "" {
			snap.Interface = sc.interfaceTraffic(ctx, name)
		}
	}
	return snap
}

func (sc *StatsCollector) interfaceTraffic(ctx context.Context, name string) Traffic {
	stats, err := sc.counters(ctx)
	if err != nil {
		return Traffic{}
	}
	for _, st := range stats {
		if st.Name == name {
			return Traffic{Tx: st.BytesSent, Rx: st.BytesRecv}
		}
	}
	return Traffic{}
}
