// Package redirect is a reference host for the proxy engine on Linux: it
// accepts TCP connections that the firewall redirected to a local port and
// presents each one to the dispatcher as a stream flow.
package redirect

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"

	"split-tunnel-proxy/internal/core"
	"split-tunnel-proxy/internal/flow"
	"split-tunnel-proxy/internal/platform"
)

// fwdBufPool reuses buffers for passthrough forwarding.
var fwdBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64*1024)
		return &b
	},
}

// Admitter decides whether the engine takes a flow.
type Admitter interface {
	HandleNewFlow(f flow.Flow) bool
}

// Config holds the host's parameters.
type Config struct {
	// Listen is the address redirected connections arrive on.
	Listen     string
	Dispatcher Admitter
	// DirectControl is applied to passthrough sockets, typically to stamp the
	// routing mark so they are not redirected again.
	DirectControl platform.Control
	Log           *core.Logger
}

// Host accepts redirected connections.
type Host struct {
	cfg      Config
	log      *core.Logger
	listener net.Listener
	origDst  func(*net.TCPConn) (netip.AddrPort, error)

	wg     sync.WaitGroup
	cancel context.CancelFunc

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

// NewHost creates a host. Nothing is accepted until Start.
func NewHost(cfg Config) *Host {
	log := cfg.Log
	if log == nil {
		log = core.Discard()
	}
	return &Host{
		cfg:     cfg,
		log:     log,
		origDst: originalDst,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Addr returns the listening address, or nil before Start.
func (h *Host) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Start begins accepting connections.
func (h *Host) Start(ctx context.Context) error {
	ctx, h.cancel = context.WithCancel(ctx)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", h.cfg.Listen)
	if err != nil {
		h.cancel()
		return fmt.Errorf("[Redirect] failed to listen on %s: %w", h.cfg.Listen, err)
	}
	h.listener = ln
	h.log.Infof("Redirect", "Listening on %s", ln.Addr())

	h.wg.Add(1)
	go h.acceptLoop(ctx)
	return nil
}

// Stop closes the listener and every connection the host still owns.
func (h *Host) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	if h.listener != nil {
		h.listener.Close()
	}
	h.connsMu.Lock()
	for c := range h.conns {
		c.Close()
	}
	h.connsMu.Unlock()

	h.wg.Wait()
	h.log.Infof("Redirect", "Stopped")
}

func (h *Host) trackConn(c net.Conn) {
	h.connsMu.Lock()
	h.conns[c] = struct{}{}
	h.connsMu.Unlock()
}

func (h *Host) untrackConn(c net.Conn) {
	h.connsMu.Lock()
	delete(h.conns, c)
	h.connsMu.Unlock()
}

func (h *Host) acceptLoop(ctx context.Context) {
	defer h.wg.Done()

	for {
		conn, err := h.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				h.log.Errorf("Redirect", "Accept error: %v", err)
				continue
			}
		}

		h.wg.Add(1)
		go h.handleConnection(ctx, conn.(*net.TCPConn))
	}
}

func (h *Host) handleConnection(ctx context.Context, conn *net.TCPConn) {
	defer h.wg.Done()

	dst, err := h.origDst(conn)
	if err != nil {
		h.log.Warnf("Redirect", "No original destination for %s: %v, closing", conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	h.trackConn(conn)

	f := newConnFlow(conn, flow.EndpointFromAddrPort(dst), func(err error) {
		h.untrackConn(conn)
		if err != nil {
			h.log.Debugf("Redirect", "%s → %s closed: %v", conn.RemoteAddr(), dst, err)
		}
	})
	if h.cfg.Dispatcher.HandleNewFlow(f) {
		return
	}

	h.log.Debugf("Redirect", "%s → %s passed through", conn.RemoteAddr(), dst)
	h.passthrough(ctx, conn, dst)
	f.CloseReadAndWrite(nil)
}

// passthrough connects to dst on the default route and copies both ways.
func (h *Host) passthrough(ctx context.Context, client *net.TCPConn, dst netip.AddrPort) {
	dialer := net.Dialer{Control: h.cfg.DirectControl}
	c, err := dialer.DialContext(ctx, "tcp", dst.String())
	if err != nil {
		h.log.Errorf("Redirect", "Failed to dial %s: %v", dst, err)
		return
	}
	remote := c.(*net.TCPConn)
	h.trackConn(remote)
	defer h.untrackConn(remote)
	defer remote.Close()

	var fwg sync.WaitGroup
	fwg.Add(2)
	go forward(client, remote, &fwg)
	go forward(remote, client, &fwg)
	fwg.Wait()
}

// forward copies src to dst, then half-closes both.
func forward(dst, src *net.TCPConn, wg *sync.WaitGroup) {
	defer wg.Done()

	bp := fwdBufPool.Get().(*[]byte)
	io.CopyBuffer(dst, src, *bp)
	fwdBufPool.Put(bp)

	dst.CloseWrite()
	src.CloseRead()
}
