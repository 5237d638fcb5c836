// Package flowtest provides in-memory flows for tests.
package flowtest

import (
	"context"
	"errors"
	"slices"
	"sync"

	"split-tunnel-proxy/internal/flow"
)

// ErrClosed is returned by reads and writes after CloseReadAndWrite.
var ErrClosed = errors.New("flowtest: flow closed")

type counters struct {
	mu         sync.Mutex
	openCalls  int
	readCalls  int
	closeCalls int
	closeErr   error
	writeErr   error

	openErr   error
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *counters) open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openCalls++
	return c.openErr
}

func (c *counters) close(err error) {
	c.mu.Lock()
	c.closeCalls++
	c.closeErr = err
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
}

// OpenCalls returns how many times Open was called.
func (c *counters) OpenCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openCalls
}

// ReadCalls returns how many reads were issued.
func (c *counters) ReadCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readCalls
}

// CloseCalls returns how many times CloseReadAndWrite was called.
func (c *counters) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// CloseErr returns the error given to the last CloseReadAndWrite.
func (c *counters) CloseErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Closed is closed on the first CloseReadAndWrite.
func (c *counters) Closed() <-chan struct{} { return c.closed }

// FailOpen makes Open return err.
func (c *counters) FailOpen(err error) {
	c.mu.Lock()
	c.openErr = err
	c.mu.Unlock()
}

// FailWrites makes every later write return err.
func (c *counters) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *counters) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type chunk struct {
	data []byte
	err  error
}

// Stream is an in-memory flow.StreamFlow. Data fed with Feed is returned by
// ReadData; data written by the engine is recorded and announced on Written.
type Stream struct {
	counters
	signingID string
	token     []byte
	remote    flow.Endpoint

	reads  chan chunk
	writes [][]byte

	// Written receives a copy of every successful WriteData.
	Written chan []byte
}

var _ flow.StreamFlow = (*Stream)(nil)

// NewStream creates a stream flow from signingID to remote.
func NewStream(signingID string, remote flow.Endpoint) *Stream {
	return &Stream{
		counters:  counters{closed: make(chan struct{})},
		signingID: signingID,
		remote:    remote,
		reads:     make(chan chunk, 64),
		Written:   make(chan []byte, 64),
	}
}

// WithToken sets the credential token.
func (s *Stream) WithToken(token []byte) *Stream {
	s.token = token
	return s
}

// Feed queues data for the next ReadData.
func (s *Stream) Feed(b []byte) { s.reads <- chunk{data: slices.Clone(b)} }

// FeedErr makes the next ReadData fail with err.
func (s *Stream) FeedErr(err error) { s.reads <- chunk{err: err} }

// FeedEOF makes the next ReadData report that the application closed its side.
func (s *Stream) FeedEOF() { s.reads <- chunk{data: []byte{}} }

// Writes returns everything written so far.
func (s *Stream) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.writes)
}

func (s *Stream) SigningIdentifier() string { return s.signingID }
func (s *Stream) CredentialToken() []byte { return s.token }
func (s *Stream) RemoteEndpoint() flow.Endpoint { return s.remote }
func (s *Stream) Open(_ context.Context) error { return s.open() }
func (s *Stream) CloseReadAndWrite(err error) { s.close(err) }

func (s *Stream) ReadData(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	s.readCalls++
	s.mu.Unlock()
	select {
	case c := <-s.reads:
		return c.data, c.err
	case <-s.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Stream) WriteData(_ context.Context, b []byte) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.mu.Lock()
	if err := s.writeErr; err != nil {
		s.mu.Unlock()
		return err
	}
	cp := slices.Clone(b)
	s.writes = append(s.writes, cp)
	s.mu.Unlock()
	select {
	case s.Written <- cp:
	default:
	}
	return nil
}

type batch struct {
	dgs []flow.Datagram
	err error
}

// Datagram is an in-memory flow.DatagramFlow.
type Datagram struct {
	counters
	signingID string
	token     []byte

	reads  chan batch
	writes []flow.Datagram

	// Written receives every datagram delivered to the application.
	Written chan flow.Datagram
}

var _ flow.DatagramFlow = (*Datagram)(nil)

// NewDatagram creates a datagram flow from signingID.
func NewDatagram(signingID string) *Datagram {
	return &Datagram{
		counters:  counters{closed: make(chan struct{})},
		signingID: signingID,
		reads:     make(chan batch, 64),
		Written:   make(chan flow.Datagram, 64),
	}
}

// WithToken sets the credential token.
func (d *Datagram) WithToken(token []byte) *Datagram {
	d.token = token
	return d
}

// Feed queues one batch for the next ReadDatagrams.
func (d *Datagram) Feed(dgs ...flow.Datagram) {
	cp := make([]flow.Datagram, len(dgs))
	for i, dg := range dgs {
		cp[i] = flow.Datagram{Payload: slices.Clone(dg.Payload), Endpoint: dg.Endpoint}
	}
	d.reads <- batch{dgs: cp}
}

// FeedErr makes the next ReadDatagrams fail with err.
func (d *Datagram) FeedErr(err error) { d.reads <- batch{err: err} }

// Writes returns every datagram delivered so far.
func (d *Datagram) Writes() []flow.Datagram {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.writes)
}

func (d *Datagram) SigningIdentifier() string { return d.signingID }
func (d *Datagram) CredentialToken() []byte { return d.token }
func (d *Datagram) Open(_ context.Context) error { return d.open() }
func (d *Datagram) CloseReadAndWrite(err error) { d.close(err) }

func (d *Datagram) ReadDatagrams(ctx context.Context) ([]flow.Datagram, error) {
	d.mu.Lock()
	d.readCalls++
	d.mu.Unlock()
	select {
	case b := <-d.reads:
		return b.dgs, b.err
	case <-d.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Datagram) WriteDatagrams(_ context.Context, dgs []flow.Datagram) error {
	if d.isClosed() {
		return ErrClosed
	}
	d.mu.Lock()
	if err := d.writeErr; err != nil {
		d.mu.Unlock()
		return err
	}
	cps := make([]flow.Datagram, len(dgs))
	for i, dg := range dgs {
		cps[i] = flow.Datagram{Payload: slices.Clone(dg.Payload), Endpoint: dg.Endpoint}
	}
	d.writes = append(d.writes, cps...)
	d.mu.Unlock()
	for _, dg := range cps {
		select {
		case d.Written <- dg:
		default:
		}
	}
	return nil
}
