package redirect

import (
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"split-tunnel-proxy/internal/flow"
)

const waitTimeout = 5 * time.Second

func echoServer(t *testing.T) netip.AddrPort {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.Copy(c, c)
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).AddrPort()
}

// admitFunc adapts a function to Admitter.
type admitFunc func(flow.Flow) bool

func (a admitFunc) HandleNewFlow(f flow.Flow) bool { return a(f) }

func startHost(t *testing.T, dst netip.AddrPort, admit admitFunc) *Host {
	t.Helper()
	h := NewHost(Config{Listen: "127.0.0.1:0", Dispatcher: admit})
	h.origDst = func(*net.TCPConn) (netip.AddrPort, error) { return dst, nil }
	if err := h.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Stop)
	return h
}

func roundTrip(t *testing.T, c net.Conn, msg string) string {
	t.Helper()
	c.SetDeadline(time.Now().Add(waitTimeout))
	if _, err := c.Write([]byte(msg)); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(c, buf); err != nil {
		t.Fatal(err)
	}
	return string(buf)
}

func TestHost_PassthroughWhenNotClaimed(t *testing.T) {
	dst := echoServer(t)
	var mu sync.Mutex
	var seen []flow.StreamFlow
	h := startHost(t, dst, func(f flow.Flow) bool {
		mu.Lock()
		seen = append(seen, f.(flow.StreamFlow))
		mu.Unlock()
		return false
	})

	c, err := net.Dial("tcp", h.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if got := roundTrip(t, c, "hello"); got != "hello" {
		t.Errorf("echo = %q", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("dispatcher saw %d flows", len(seen))
	}
	f := seen[0]
	if f.RemoteEndpoint() != flow.EndpointFromAddrPort(dst) {
		t.Errorf("remote = %v, want %v", f.RemoteEndpoint(), dst)
	}
	if f.SigningIdentifier() != "" {
		t.Errorf("signing identifier = %q", f.SigningIdentifier())
	}
	if string(f.CredentialToken()) != c.LocalAddr().String() {
		t.Errorf("token = %q, want %q", f.CredentialToken(), c.LocalAddr())
	}
}

func TestHost_ClaimedFlowIsDrivenByEngine(t *testing.T) {
	dst := netip.MustParseAddrPort("192.0.2.1:443")
	flows := make(chan flow.StreamFlow, 1)
	h := startHost(t, dst, func(f flow.Flow) bool {
		flows <- f.(flow.StreamFlow)
		return true
	})

	c, err := net.Dial("tcp", h.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var f flow.StreamFlow
	select {
	case f = <-flows:
	case <-time.After(waitTimeout):
		t.Fatal("flow never reached the dispatcher")
	}
	if err := f.Open(t.Context()); err != nil {
		t.Fatal(err)
	}

	c.Write([]byte("ping"))
	data, err := f.ReadData(t.Context())
	if err != nil || string(data) != "ping" {
		t.Fatalf("ReadData = %q, %v", data, err)
	}
	if err := f.WriteData(t.Context(), []byte("pong")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	c.SetReadDeadline(time.Now().Add(waitTimeout))
	if _, err := io.ReadFull(c, buf); err != nil || string(buf) != "pong" {
		t.Fatalf("client read %q, %v", buf, err)
	}

	c.(*net.TCPConn).CloseWrite()
	data, err = f.ReadData(t.Context())
	if err != nil || len(data) != 0 {
		t.Errorf("ReadData after client EOF = %q, %v; want empty chunk", data, err)
	}
	f.CloseReadAndWrite(nil)
}

func TestHost_BlockedFlowResetsClient(t *testing.T) {
	h := startHost(t, netip.MustParseAddrPort("192.0.2.1:443"), func(f flow.Flow) bool {
		f.CloseReadAndWrite(flow.ErrPolicyBlocked)
		return true
	})

	c, err := net.Dial("tcp", h.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	c.SetReadDeadline(time.Now().Add(waitTimeout))
	_, err = c.Read(make([]byte, 1))
	if err == nil {
		t.Fatal("read succeeded on a blocked connection")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		t.Fatal("blocked connection was left open")
	}
}

func TestHost_MissingOriginalDestinationCloses(t *testing.T) {
	var called atomic.Bool
	h := NewHost(Config{Listen: "127.0.0.1:0", Dispatcher: admitFunc(func(flow.Flow) bool {
		called.Store(true)
		return true
	})})
	h.origDst = func(*net.TCPConn) (netip.AddrPort, error) { return netip.AddrPort{}, errors.New("not redirected") }
	if err := h.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	defer h.Stop()

	c, err := net.Dial("tcp", h.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.SetReadDeadline(time.Now().Add(waitTimeout))
	if _, err := c.Read(make([]byte, 1)); err == nil {
		t.Error("connection without a destination stayed usable")
	}
	if called.Load() {
		t.Error("dispatcher consulted without a destination")
	}
}
