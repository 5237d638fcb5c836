// Package ipc carries the control plane over gRPC: a Unix domain socket on
// Linux and macOS, a named pipe on Windows.
package ipc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ControlServiceName is the gRPC service name of the control plane.
const ControlServiceName = "splittunnel.Control"

const (
	updateStateMethod = "/" + ControlServiceName + "/UpdateState"
	getStatusMethod   = "/" + ControlServiceName + "/GetStatus"
)

// ControlServer is implemented by the control-plane service.
type ControlServer interface {
	// UpdateState applies a VPN options dictionary and answers {"result": ...}.
	UpdateState(context.Context, *structpb.Value) (*structpb.Struct, error)
	// GetStatus answers a flat dictionary of traffic and routing status.
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&controlServiceDesc, srv)
}

var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: ControlServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "UpdateState", Handler: updateStateHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "splittunnel/control.proto",
}

func updateStateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).UpdateState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: updateStateMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).UpdateState(ctx, req.(*structpb.Value))
	})
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStatusMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).GetStatus(ctx, req.(*emptypb.Empty))
	})
}

// ControlClient calls the control plane over a gRPC connection.
type ControlClient struct {
	cc grpc.ClientConnInterface
}

// NewControlClient wraps cc.
func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

func (c *ControlClient) UpdateState(ctx context.Context, in *structpb.Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, updateStateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControlClient) GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getStatusMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
