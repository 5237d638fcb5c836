// Package flow describes connections intercepted by the host operating system.
//
// The host owns the flows; this package only fixes the contract the proxy
// engine relies on. Blocking calls take a context and return when the host
// completes the operation. Implementations must make CloseReadAndWrite safe to
// call while a read or write is in flight and must unblock such calls.
package flow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

var (
	// ErrReadPending is returned by a host when a read is issued while an
	// earlier read has not completed yet. It is transient.
	ErrReadPending = errors.New("flow: a read operation is already pending")

	// ErrPolicyBlocked is the close reason given to flows denied by policy.
	ErrPolicyBlocked = errors.New("flow: blocked by split tunnel policy")

	// ErrMalformedEndpoint is returned when an endpoint cannot be converted to a socket address.
	ErrMalformedEndpoint = errors.New("flow: malformed endpoint")
)

// Endpoint is a host/port pair as the host reports it. Host is kept verbatim
// (an IP literal in practice, but the host does not guarantee it).
type Endpoint struct {
	Host string
	Port string
}

// String returns host:port with brackets around IPv6 literals.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, e.Port)
}

// AddrPort converts the endpoint to a socket address.
func (e Endpoint) AddrPort() (netip.AddrPort, error) {
	addr, err := netip.ParseAddr(e.Host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: host %q: %v", ErrMalformedEndpoint, e.Host, err)
	}
	port, err := strconv.ParseUint(e.Port, 10, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: port %q: %v", ErrMalformedEndpoint, e.Port, err)
	}
	return netip.AddrPortFrom(addr, uint16(port)), nil
}

// EndpointFromAddrPort is the inverse of AddrPort. IPv4-mapped addresses are
// unmapped so replies carry the same form the application sent to.
func EndpointFromAddrPort(ap netip.AddrPort) Endpoint {
	return Endpoint{
		Host: ap.Addr().Unmap().String(),
		Port: strconv.FormatUint(uint64(ap.Port()), 10),
	}
}

// Datagram is one UDP payload together with its remote peer.
// For reads from a flow the endpoint is the destination; for writes it is the sender.
type Datagram struct {
	Payload  []byte
	Endpoint Endpoint
}

// Flow is the part of an intercepted connection shared by both variants.
type Flow interface {
	// SigningIdentifier is the code-signing identifier of the source app, possibly empty.
	SigningIdentifier() string
	// CredentialToken is an opaque value the host can map to a process ID.
	CredentialToken() []byte
	// Open completes interception. No data moves before Open returns nil.
	Open(ctx context.Context) error
	// CloseReadAndWrite closes both directions. err is reported to the
	// application when non-nil.
	CloseReadAndWrite(err error)
}

// StreamFlow is an intercepted TCP connection.
type StreamFlow interface {
	Flow
	// RemoteEndpoint is the destination the application connected to.
	RemoteEndpoint() Endpoint
	// ReadData returns the next chunk sent by the application.
	// An empty chunk with a nil error means the application closed its side.
	ReadData(ctx context.Context) ([]byte, error)
	// WriteData delivers b to the application. b is not retained after return.
	WriteData(ctx context.Context, b []byte) error
}

// DatagramFlow is an intercepted UDP socket that may talk to many peers.
type DatagramFlow interface {
	Flow
	// ReadDatagrams returns the datagrams queued by the application. The host
	// may coalesce several pending datagrams into one batch.
	ReadDatagrams(ctx context.Context) ([]Datagram, error)
	// WriteDatagrams delivers datagrams to the application, each tagged with its sender.
	// Payloads are not retained after return.
	WriteDatagrams(ctx context.Context, dgs []Datagram) error
}

// RemoteHost returns the remote host string of f, or "" for flows without a
// fixed remote endpoint.
func RemoteHost(f Flow) string {
	if sf, ok := f.(StreamFlow); ok {
		return sf.RemoteEndpoint().Host
	}
	return ""
}

// Kind names the variant of f for logs ("tcp", "udp" or "unknown").
func Kind(f Flow) string {
	switch f.(type) {
	case StreamFlow:
		return "tcp"
	case DatagramFlow:
		return "udp"
	default:
		return "unknown"
	}
}
