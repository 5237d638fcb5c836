package ipc

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server wraps a gRPC server exposing the control plane and the standard
// health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewServer creates a new IPC server with the given control implementation.
func NewServer(svc ControlServer, opts ...grpc.ServerOption) *Server {
	gs := grpc.NewServer(opts...)
	RegisterControlServer(gs, svc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(ControlServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{grpc: gs, health: hs}
}

// Start listens on address and serves until Stop is called.
func (s *Server) Start(address string) error {
	ln, err := Listen(address)
	if err != nil {
		return fmt.Errorf("[IPC] listen %s: %w", address, err)
	}
	return s.Serve(ln)
}

// Serve serves gRPC requests on ln. Blocks until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	return s.grpc.Serve(ln)
}

// Stop reports NOT_SERVING and gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// ForceStop immediately stops the gRPC server.
func (s *Server) ForceStop() {
	s.grpc.Stop()
}
