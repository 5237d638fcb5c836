//go:build linux

package redirect

import (
	"net"
	"testing"
)

// Without a NAT rule the kernel either has no conntrack entry (error) or
// reports the untranslated destination, which is the listener itself.
func checkOriginalDst(t *testing.T, network, address string) {
	t.Helper()
	ln, err := net.Listen(network, address)
	if err != nil {
		t.Skipf("%s unavailable: %v", network, err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err := net.Dial(network, ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	server, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	defer server.Close()

	dst, err := originalDst(server.(*net.TCPConn))
	if err != nil {
		return
	}
	want := ln.Addr().(*net.TCPAddr).AddrPort()
	if dst.Addr().Unmap() != want.Addr().Unmap() || dst.Port() != want.Port() {
		t.Errorf("originalDst = %v, want %v", dst, want)
	}
}

func TestOriginalDst_IPv4(t *testing.T) {
	checkOriginalDst(t, "tcp4", "127.0.0.1:0")
}

func TestOriginalDst_IPv6(t *testing.T) {
	checkOriginalDst(t, "tcp6", "[::1]:0")
}
