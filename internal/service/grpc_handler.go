package service

import (
	"context"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"split-tunnel-proxy/internal/ipc"
)

// Ensure Service implements ControlServer.
var _ ipc.ControlServer = (*Service)(nil)

func resultStruct(result string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"result": structpb.NewStringValue(result),
	}}
}

// UpdateState applies the options dictionary carried by req. Anything but an
// object answers deserialization_error; bad options never fail the RPC.
func (s *Service) UpdateState(_ context.Context, req *structpb.Value) (*structpb.Struct, error) {
	obj := req.GetStructValue()
	if obj == nil {
		s.log.Errorf("Service", "Failed to deserialize the VPN state message")
		return resultStruct(ResultDeserializationError), nil
	}
	return resultStruct(s.ApplyOptions(obj.AsMap())), nil
}

func (s *Service) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(s.Status(ctx))
}
