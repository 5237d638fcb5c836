package ipc

import (
	"context"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeControl struct {
	mu      sync.Mutex
	updates []*structpb.Value
}

func (f *fakeControl) UpdateState(_ context.Context, v *structpb.Value) (*structpb.Struct, error) {
	f.mu.Lock()
	f.updates = append(f.updates, v)
	f.mu.Unlock()
	return structpb.NewStruct(map[string]any{"result": "ok"})
}

func (f *fakeControl) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"active_sessions": 2, "network_interface": "en0"})
}

func startBufServer(t *testing.T, svc ControlServer, opts ...grpc.ServerOption) *Client {
	t.Helper()
	ln := bufconn.Listen(1 << 20)
	srv := NewServer(svc, opts...)
	go srv.Serve(ln)
	t.Cleanup(srv.ForceStop)

	c, err := DialWith("bufnet", func(ctx context.Context, _ string) (net.Conn, error) {
		return ln.DialContext(ctx)
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestControl_UpdateState(t *testing.T) {
	svc := &fakeControl{}
	c := startBufServer(t, svc)

	opts, err := structpb.NewValue(map[string]any{"networkInterface": "en0", "connected": true})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Control.UpdateState(t.Context(), opts)
	if err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	if got := resp.GetFields()["result"].GetStringValue(); got != "ok" {
		t.Errorf("result = %q, want ok", got)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.updates) != 1 {
		t.Fatalf("server saw %d updates", len(svc.updates))
	}
	fields := svc.updates[0].GetStructValue().GetFields()
	if fields["networkInterface"].GetStringValue() != "en0" || !fields["connected"].GetBoolValue() {
		t.Errorf("server got %v", fields)
	}
}

func TestControl_GetStatus(t *testing.T) {
	c := startBufServer(t, &fakeControl{})

	resp, err := c.Control.GetStatus(t.Context(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	m := resp.AsMap()
	if m["active_sessions"] != float64(2) || m["network_interface"] != "en0" {
		t.Errorf("status = %v", m)
	}
}

func TestControl_Ping(t *testing.T) {
	c := startBufServer(t, &fakeControl{})
	if err := c.Ping(t.Context()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestConnTracker_CountsCalls(t *testing.T) {
	ct := NewConnTracker(nil)
	c := startBufServer(t, &fakeControl{}, grpc.UnaryInterceptor(ct.UnaryInterceptor()))

	for range 3 {
		if _, err := c.Control.GetStatus(t.Context(), &emptypb.Empty{}); err != nil {
			t.Fatal(err)
		}
	}
	if ct.TotalCount() != 3 {
		t.Errorf("TotalCount = %d, want 3", ct.TotalCount())
	}
	if ct.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", ct.ActiveCount())
	}
}
