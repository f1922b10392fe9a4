// Package api hosts the gRPC server that exposes on-demand signal
// evaluation and backtest history.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
)

// Server is the main API server that hosts the gRPC endpoints.
type Server struct {
	addr string
	grpc *grpc.Server
	log  *slog.Logger
}

// NewServer creates a Server listening on addr and serving svc.
func NewServer(addr string, svc SignalsServer) *Server {
	gs := grpc.NewServer()
	gs.RegisterService(&SignalsServiceDesc, svc)
	return &Server{
		addr: addr,
		grpc: gs,
		log:  slog.Default().With("component", "api"),
	}
}

// ListenAndServe starts the gRPC listener and blocks until the context is
// cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errc := make(chan error, 1)
	go func() { errc <- s.grpc.Serve(lis) }()
	s.log.Info("grpc server listening", "addr", lis.Addr().String())

	select {
	case <-ctx.Done():
		s.Shutdown()
		<-errc
		return nil
	case err := <-errc:
		return err
	}
}

// Shutdown stops accepting new connections and waits for in-flight
// requests to complete.
func (s *Server) Shutdown() {
	s.grpc.GracefulStop()
}
