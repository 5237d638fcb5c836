package ipc

import (
	"context"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"split-tunnel-proxy/internal/core"
)

// ConnTracker counts control-plane RPCs and logs each one.
type ConnTracker struct {
	active atomic.Int64
	total  atomic.Uint64
	log    *core.Logger
}

// NewConnTracker creates a tracker logging through log.
func NewConnTracker(log *core.Logger) *ConnTracker {
	if log == nil {
		log = core.Discard()
	}
	return &ConnTracker{log: log}
}

// ActiveCount returns the number of RPCs in flight.
func (ct *ConnTracker) ActiveCount() int64 {
	return ct.active.Load()
}

// TotalCount returns the number of RPCs handled since start.
func (ct *ConnTracker) TotalCount() uint64 {
	return ct.total.Load()
}

// UnaryInterceptor returns a gRPC unary server interceptor that tracks active RPCs.
func (ct *ConnTracker) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ct.active.Add(1)
		ct.total.Add(1)
		defer ct.active.Add(-1)

		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			ct.log.Warnf("IPC", "%s failed after %s: %v", info.FullMethod, time.Since(start), err)
		} else {
			ct.log.Debugf("IPC", "%s handled in %s", info.FullMethod, time.Since(start))
		}
		return resp, err
	}
}
