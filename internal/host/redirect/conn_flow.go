package redirect

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"split-tunnel-proxy/internal/flow"
)

const readChunk = 64 * 1024

// connFlow exposes a redirected TCP connection as a flow.StreamFlow.
type connFlow struct {
	conn   net.Conn
	remote flow.Endpoint
	token  []byte

	opened  atomic.Bool
	reading atomic.Bool
	buf     []byte

	once    sync.Once
	closed  chan struct{}
	onClose func(error)
}

var _ flow.StreamFlow = (*connFlow)(nil)

// newConnFlow wraps conn. The credential token is the application's own
// address, which is the peer address of the redirected connection.
func newConnFlow(conn net.Conn, remote flow.Endpoint, onClose func(error)) *connFlow {
	return &connFlow{
		conn:    conn,
		remote:  remote,
		token:   []byte(conn.RemoteAddr().String()),
		buf:     make([]byte, readChunk),
		closed:  make(chan struct{}),
		onClose: onClose,
	}
}

func (f *connFlow) SigningIdentifier() string     { return "" }
func (f *connFlow) CredentialToken() []byte       { return f.token }
func (f *connFlow) RemoteEndpoint() flow.Endpoint { return f.remote }

func (f *connFlow) Open(ctx context.Context) error {
	select {
	case <-f.closed:
		return net.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	f.opened.Store(true)
	return nil
}

// ReadData returns the next chunk from the application. Only one read may be
// outstanding; a concurrent call fails with flow.ErrReadPending.
func (f *connFlow) ReadData(ctx context.Context) ([]byte, error) {
	if !f.opened.Load() {
		return nil, errors.New("redirect: read before open")
	}
	if !f.reading.CompareAndSwap(false, true) {
		return nil, flow.ErrReadPending
	}
	defer f.reading.Store(false)

	stop := context.AfterFunc(ctx, func() { f.conn.SetReadDeadline(time.Now()) })
	defer stop()

	n, err := f.conn.Read(f.buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, f.buf[:n])
		return out, nil
	}
	if errors.Is(err, io.EOF) {
		return []byte{}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, err
}

func (f *connFlow) WriteData(ctx context.Context, b []byte) error {
	stop := context.AfterFunc(ctx, func() { f.conn.SetWriteDeadline(time.Now()) })
	defer stop()

	if _, err := f.conn.Write(b); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// CloseReadAndWrite closes the connection. A non-nil err resets it so the
// application sees a failure rather than a clean end of stream.
func (f *connFlow) CloseReadAndWrite(err error) {
	f.once.Do(func() {
		if err != nil {
			if tc, ok := f.conn.(*net.TCPConn); ok {
				tc.SetLinger(0)
			}
		}
		f.conn.Close()
		close(f.closed)
		if f.onClose != nil {
			f.onClose(err)
		}
	})
}

// Closed is closed once CloseReadAndWrite has run.
func (f *connFlow) Closed() <-chan struct{} { return f.closed }
