package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"split-tunnel-proxy/internal/core"
	"split-tunnel-proxy/internal/flow"
	"split-tunnel-proxy/internal/policy"
)

// State is the lifecycle phase of a forwarding session.
type State int32

const (
	StateCreated State = iota
	StateOpening       // connecting (TCP) or binding (UDP) the outbound socket
	StateForwarding
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpening:
		return "opening"
	case StateForwarding:
		return "forwarding"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session bridges one intercepted flow to one outbound socket.
type Session interface {
	ID() core.SessionID
	// Start opens the outbound socket and begins forwarding. It does not block.
	Start(ctx context.Context)
	// Terminate stops the session. Safe to call any number of times.
	Terminate()
	// Info returns a snapshot of the session for stats.
	Info() SessionInfo
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ID         core.SessionID
	Protocol   string
	Descriptor string
	Mode       policy.Mode
	State      State
	TxBytes    uint64 // toward the upstream socket
	RxBytes    uint64 // back to the application
	Started    time.Time
}

// SessionConfig is what the dispatcher hands to a new session.
type SessionConfig struct {
	// VpnState is the snapshot in effect when the flow was admitted.
	VpnState   core.VpnState
	Descriptor string
	Mode       policy.Mode
}

// readPendingBackoff is how long a loop waits before re-issuing a read the
// host reported as already pending.
const readPendingBackoff = 5 * time.Millisecond

// errAppClosed marks a termination caused by the application closing its side.
var errAppClosed = errors.New("application closed the flow")

// session holds the lifecycle shared by TCP and UDP sessions. Counters are
// written only by the session's own forwarding loops.
type session struct {
	id       core.SessionID
	protocol string
	cfg      SessionConfig
	flow     flow.Flow
	out      *Outbound
	registry *Registry
	log      *core.Logger

	state   atomic.Int32
	tx      atomic.Uint64
	rx      atomic.Uint64
	started time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	sock       io.Closer
	terminated bool

	once sync.Once
	done chan struct{}
}

func newSession(id core.SessionID, protocol string, f flow.Flow, cfg SessionConfig, deps sessionDeps) *session {
	log := deps.log
	if log == nil {
		log = core.Discard()
	}
	return &session{
		id:       id,
		protocol: protocol,
		cfg:      cfg,
		flow:     f,
		out:      deps.out,
		registry: deps.registry,
		log:      log,
		started:  time.Now(),
		done:     make(chan struct{}),
	}
}

type sessionDeps struct {
	out      *Outbound
	registry *Registry
	log      *core.Logger
}

func (s *session) ID() core.SessionID { return s.id }

// Done is closed once the session has terminated.
func (s *session) Done() <-chan struct{} { return s.done }

func (s *session) Info() SessionInfo {
	return SessionInfo{
		ID:         s.id,
		Protocol:   s.protocol,
		Descriptor: s.cfg.Descriptor,
		Mode:       s.cfg.Mode,
		State:      State(s.state.Load()),
		TxBytes:    s.tx.Load(),
		RxBytes:    s.rx.Load(),
		Started:    s.started,
	}
}

// begin derives the session context and enters the opening phase. It returns
// false when the session was terminated before it started.
func (s *session) begin(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return false
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.state.Store(int32(StateOpening))
	return true
}

// attach hands the outbound socket to the session and enters forwarding. If
// the session was terminated meanwhile the socket is closed and false returned.
func (s *session) attach(sock io.Closer) bool {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		sock.Close()
		return false
	}
	s.sock = sock
	s.state.Store(int32(StateForwarding))
	added := s.registry.insert(s)
	s.mu.Unlock()

	// Terminate may run from here on; it finds the session registered.
	if added {
		s.registry.publishStarted(s)
	}
	return true
}

// drop abandons a session whose socket could not be opened: the flow is
// closed with the failure and nothing was registered.
func (s *session) drop(err error) {
	s.log.Errorf("Proxy", "id: %d %s Unable to open %s socket: %v, dropping the flow", s.id, s.cfg.Descriptor, s.protocol, err)
	s.terminate(err)
}

// Terminate closes the flow and the socket exactly once.
func (s *session) Terminate() { s.terminate(nil) }

func (s *session) terminate(reason error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.terminated = true
		sock := s.sock
		forwarding := State(s.state.Load()) == StateForwarding
		s.state.Store(int32(StateTerminated))
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()

		var flowErr error
		if reason != nil && !isClosedErr(reason) {
			flowErr = reason
		}
		s.flow.CloseReadAndWrite(flowErr)
		if sock != nil {
			sock.Close()
		}

		if forwarding {
			s.registry.Remove(s)
			if flowErr != nil {
				s.log.Debugf("Proxy", "id: %d %s Terminating the session: %v", s.id, s.cfg.Descriptor, flowErr)
			}
			s.log.Infof("Proxy", "id: %d %s %s session closed. rxBytes=%s txBytes=%s",
				s.id, s.cfg.Descriptor, s.protocol, core.FormatBytes(s.rx.Load()), core.FormatBytes(s.tx.Load()))
		}
		close(s.done)
	})
}

// fail terminates the session after a forwarding error. Errors caused by the
// session's own shutdown are not reported.
func (s *session) fail(op string, err error) {
	if s.ctx.Err() == nil {
		s.log.Errorf("Proxy", "id: %d %s %v while %s", s.id, s.cfg.Descriptor, err, op)
	}
	s.terminate(err)
}

// isClosedErr reports errors that only mean one side went away.
func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, errAppClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled)
}

// readPending reports the host's transient "read already pending" condition.
func readPending(err error) bool {
	return errors.Is(err, flow.ErrReadPending)
}

// awaitRetry pauses a read loop after a pending-read error. It returns false
// when the session is shutting down and the loop must exit.
func (s *session) awaitRetry() bool {
	s.log.Debugf("Proxy", "id: %d %s Read already pending on the flow", s.id, s.cfg.Descriptor)
	t := time.NewTimer(readPendingBackoff)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		s.terminate(s.ctx.Err())
		return false
	case <-t.C:
		return true
	}
}
