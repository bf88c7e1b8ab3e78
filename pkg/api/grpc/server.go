package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/api"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/config"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
)

// Server represents the gRPC server
type Server struct {
	config     *config.Config
	backend    api.Backend
	logger     *observability.Logger
	metrics    *observability.Metrics
	grpcServer *grpc.Server
	listener   net.Listener
	shutdownMu sync.Mutex
	isShutdown bool
}

// NewServer creates a gRPC server answering queries from backend. logger and
// metrics may be nil.
func NewServer(cfg *config.Config, backend api.Backend, logger *observability.Logger, metrics *observability.Metrics) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	s := &Server{
		config:  cfg,
		backend: backend,
		logger:  logger,
		metrics: metrics,
	}

	var opts []grpc.ServerOption

	// Configure TLS if enabled
	if cfg.Server.EnableTLS {
		cert, err := tls.LoadX509KeyPair(cfg.Server.CertFile, cfg.Server.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificates: %w", err)
		}
		tlsConfig := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
		logger.Info("TLS enabled")
	}

	kaParams := keepalive.ServerParameters{
		MaxConnectionIdle: 15 * time.Second,
		MaxConnectionAge:  30 * time.Second,
		Time:              5 * time.Second,
		Timeout:           1 * time.Second,
	}
	opts = append(opts,
		grpc.KeepaliveParams(kaParams),
		grpc.MaxConcurrentStreams(uint32(cfg.Server.MaxConnections)),
		grpc.ChainUnaryInterceptor(s.timeoutInterceptor, s.accessInterceptor, s.recoveryInterceptor),
	)

	s.grpcServer = grpc.NewServer(opts...)
	RegisterVocabDBServer(s.grpcServer, s)

	// Enable reflection for debugging (e.g., with grpcurl)
	reflection.Register(s.grpcServer)

	return s, nil
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	addr := s.config.Server.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.logger.Info("gRPC server listening", map[string]interface{}{"address": addr})

	go func() {
		if err := s.Serve(listener); err != nil {
			s.logger.Error("gRPC server error", map[string]interface{}{"error": err})
		}
	}()
	return nil
}

// Serve accepts connections on listener until Stop is called
func (s *Server) Serve(listener net.Listener) error {
	s.shutdownMu.Lock()
	s.listener = listener
	s.shutdownMu.Unlock()
	return s.grpcServer.Serve(listener)
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if s.isShutdown {
		return nil
	}

	s.logger.Info("Shutting down gRPC server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("Shutdown timeout exceeded, forcing stop")
		s.grpcServer.Stop()
	}

	s.isShutdown = true
	return nil
}

// Score implements the Score RPC
func (s *Server) Score(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.ScoreRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(fmt.Errorf("%w: %v", api.ErrInvalidRequest, err))
	}

	resp, err := s.backend.Score(ctx, &req)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.reply(resp)
}

// GetStats implements the GetStats RPC
func (s *Server) GetStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.reply(resp)
}

// HealthCheck implements the HealthCheck RPC
func (s *Server) HealthCheck(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.backend.Health(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.reply(resp)
}

func (s *Server) reply(v interface{}) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, toStatus(fmt.Errorf("encode response: %w", err))
	}
	return out, nil
}

// timeoutInterceptor bounds every call by the configured request timeout
func (s *Server) timeoutInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if s.config.Server.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Server.RequestTimeout)
		defer cancel()
	}
	return handler(ctx, req)
}

// recoveryInterceptor turns a handler panic into an Internal error
func (s *Server) recoveryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic in gRPC handler", map[string]interface{}{
				"method": info.FullMethod,
				"panic":  fmt.Sprint(r),
			})
			resp, err = nil, status.Errorf(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}

// accessInterceptor logs and measures every call
func (s *Server) accessInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	duration := time.Since(start)

	code := status.Code(err).String()
	if s.metrics != nil {
		s.metrics.RecordRequest(info.FullMethod, code, duration)
		if err != nil {
			s.metrics.RecordError(info.FullMethod, code)
		}
	}
	s.logger.Debug("gRPC call", map[string]interface{}{
		"method":   info.FullMethod,
		"code":     code,
		"duration": duration,
	})
	return resp, err
}
