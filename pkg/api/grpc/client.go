package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/api"
)

// Client calls a remote query service. It implements api.Backend.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the query service at address. Without options the
// connection is insecure.
func Dial(address string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Score scores req remotely
func (c *Client) Score(ctx context.Context, req *api.ScoreRequest) (*api.ScoreResponse, error) {
	var resp api.ScoreResponse
	if err := c.call(ctx, ScoreMethod, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats fetches the remote database statistics
func (c *Client) Stats(ctx context.Context) (*api.StatsResponse, error) {
	var resp api.StatsResponse
	if err := c.call(ctx, StatsMethod, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the remote service
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.call(ctx, HealthCheckMethod, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, method string, req, resp interface{}) error {
	in, err := toStruct(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return fromStatus(err)
	}
	if err := fromStruct(out, resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
