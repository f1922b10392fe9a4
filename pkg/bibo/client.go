// Package bibo is a Go client for the bibo signals server.
package bibo

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client provides a Go SDK for interacting with the bibo gRPC server.
type Client struct {
	addr string
	conn *grpc.ClientConn
}

// NewClient creates a client for the server at addr. The connection is
// established lazily on the first call.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{addr: addr, conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Evaluate asks the server whether req.Symbol signals on req.Date.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (Evaluation, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, EvaluateMethod, req.Encode(), out); err != nil {
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", req.Symbol, err)
	}
	return DecodeEvaluation(out)
}

// RecentRuns lists the newest persisted backtests, up to limit.
func (c *Client) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, RecentRunsMethod, RecentRunsRequest(limit), out); err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return DecodeRuns(out)
}
