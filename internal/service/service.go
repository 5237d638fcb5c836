// Package service implements the control plane of the split tunnel proxy:
// reconfiguration from the VPN daemon and traffic status.
package service

import (
	"context"
	"time"

	"split-tunnel-proxy/internal/core"
)

// Result strings answered by UpdateState.
const (
	ResultOK                   = "ok"
	ResultBadOptions           = "bad_options_error"
	ResultDeserializationError = "deserialization_error"
)

// Reconfigurer is the part of the dispatcher the service drives.
type Reconfigurer interface {
	Reconfigure(core.VpnState)
	State() core.VpnState
}

// Service bridges control-plane requests to the dispatcher.
type Service struct {
	dispatcher Reconfigurer
	stats      *StatsCollector
	cfg        *core.ConfigManager
	log        *core.Logger
	version    string
	startTime  time.Time
}

// Config holds parameters for creating a new Service.
type Config struct {
	Dispatcher Reconfigurer
	Stats      *StatsCollector
	// ConfigManager, when set, persists every accepted state so a restart
	// resumes with the last known routing.
	ConfigManager *core.ConfigManager
	Log           *core.Logger
	Version       string
}

// New creates a new Service instance.
func New(c Config) *Service {
	log := c.Log
	if log == nil {
		log = core.Discard()
	}
	return &Service{
		dispatcher: c.Dispatcher,
		stats:      c.Stats,
		cfg:        c.ConfigManager,
		log:        log,
		version:    c.Version,
		startTime:  time.Now(),
	}
}

// Start initializes background workers.
func (s *Service) Start(ctx context.Context) {
	if s.stats != nil {
		s.stats.Start(ctx)
	}
}

// Stop shuts down background workers.
func (s *Service) Stop() {
	if s.stats != nil {
		s.stats.Stop()
	}
}

// ApplyOptions validates a daemon options dictionary and, when valid,
// reconfigures the dispatcher. It returns one of the Result strings.
func (s *Service) ApplyOptions(opts map[string]any) string {
	state, err := core.NewVpnStateFromOptions(opts)
	if err != nil {
		s.log.Errorf("Service", "Rejecting VPN state: %v", err)
		return ResultBadOptions
	}

	s.dispatcher.Reconfigure(state)
	if s.cfg != nil {
		s.cfg.SetVpnState(state)
		if err := s.cfg.Save(); err != nil {
			s.log.Warnf("Service", "Failed to persist VPN state: %v", err)
		}
	}
	return ResultOK
}

// Status returns the current status as a flat map, the shape GetStatus answers with.
func (s *Service) Status(ctx context.Context) map[string]any {
	state := s.dispatcher.State()
	status := map[string]any{
		"network_interface": state.NetworkInterface,
		"connected":         state.Connected,
		"route_vpn":         state.RouteVpn,
		"uptime_seconds":    int64(time.Since(s.startTime).Seconds()),
		"version":           s.version,
	}
	if s.stats == nil {
		return status
	}

	snap := s.stats.Collect(ctx)
	status["active_sessions"] = snap.ActiveSessions
	status["total_sessions"] = snap.TotalSessions
	status["tcp_tx_bytes"] = snap.TCP.Tx
	status["tcp_rx_bytes"] = snap.TCP.Rx
	status["udp_tx_bytes"] = snap.UDP.Tx
	status["udp_rx_bytes"] = snap.UDP.Rx
	status["interface_tx_bytes"] = snap.Interface.Tx
	status["interface_rx_bytes"] = snap.Interface.Rx
	return status
}
