package ipc

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultDialTimeout = 5 * time.Second

// ContextDialer opens the raw connection under a gRPC client.
type ContextDialer func(ctx context.Context, addr string) (net.Conn, error)

// Client wraps a gRPC client connected to the control plane.
type Client struct {
	conn    *grpc.ClientConn
	Control *ControlClient
	health  healthpb.HealthClient
}

// Dial connects to the control plane at address (socket path or pipe name).
func Dial(address string) (*Client, error) {
	return DialWith(address, func(ctx context.Context, addr string) (net.Conn, error) {
		return dialAddress(addr, defaultDialTimeout)
	})
}

// DialWith connects through dialer.
func DialWith(address string, dialer ContextDialer) (*Client, error) {
	conn, err := grpc.NewClient(
		"passthrough:///"+address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
	)
	if err != nil {
		return nil, fmt.Errorf("[IPC] dial %s: %w", address, err)
	}
	return &Client{
		conn:    conn,
		Control: NewControlClient(conn),
		health:  healthpb.NewHealthClient(conn),
	}, nil
}

// Ping checks that the control service reports SERVING.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ControlServiceName})
	if err != nil {
		return fmt.Errorf("[IPC] health check: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("[IPC] control service is %s", resp.GetStatus())
	}
	return nil
}

// Close shuts down the gRPC client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
