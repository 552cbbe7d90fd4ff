// Package api exposes the market data cache over gRPC.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"marketpanel/internal/util"
)

// Server hosts the MarketData gRPC service.
type Server struct {
	addr string
	gs   *grpc.Server
	log  *slog.Logger
}

// NewServer creates a Server listening on addr once started.
func NewServer(addr string, svc MarketDataServer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = util.Discard()
	}
	gs := grpc.NewServer()
	RegisterMarketDataServer(gs, svc)
	return &Server{addr: addr, gs: gs, log: logger.With("component", "grpc")}
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.log.Info("grpc server stopping")
			s.gs.GracefulStop()
		case <-done:
		}
	}()

	s.log.Info("grpc server listening", "addr", lis.Addr().String())
	if err := s.gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Client is a thin MarketData client.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for the server at addr. Extra options are appended
// after the insecure transport credentials.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// GetSeries calls MarketData.GetSeries.
func (c *Client) GetSeries(ctx context.Context, symbol, interval, period string) (*structpb.Struct, error) {
	return c.call(ctx, MethodGetSeries, map[string]any{"symbol": symbol, "interval": interval, "period": period})
}

// GetQuote calls MarketData.GetQuote.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*structpb.Struct, error) {
	return c.call(ctx, MethodGetQuote, map[string]any{"symbol": symbol})
}

// GetCompanyName calls MarketData.GetCompanyName.
func (c *Client) GetCompanyName(ctx context.Context, symbol string) (string, error) {
	out, err := c.call(ctx, MethodGetCompanyName, map[string]any{"symbol": symbol})
	if err != nil {
		return "", err
	}
	return out.GetFields()["name"].GetStringValue(), nil
}

func (c *Client) call(ctx context.Context, method string, args map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(args)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
