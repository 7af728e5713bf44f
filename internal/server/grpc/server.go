// Package grpc serves the access evaluator and share manager to other
// services over gRPC, next to the standard health service.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/logging"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Evaluator decides whether a requester may read a file.
type Evaluator interface {
	EvaluateAccess(ctx context.Context, fileID int64, requester models.Requester, grant models.AccessContext) (*models.File, models.AccessContext, error)
}

// TokenValidator maps a bearer access token to the user id it carries.
type TokenValidator interface {
	ValidateBearerToken(ctx context.Context, token string) (int64, error)
}

// ShareIssuer creates and resolves share tokens.
type ShareIssuer interface {
	Create(ctx context.Context, fileID, ownerID int64, recipientID *int64, ttl time.Duration) (*models.Share, error)
	Resolve(ctx context.Context, token string, requester models.Requester) (int64, models.AccessContext, error)
}

type GRPCServer struct {
	address   string
	access    Evaluator
	shares    ShareIssuer
	logger    logging.Logger
	tokens    TokenValidator
	health    *health.Server
}

func NewGRPCServer(a string, l logging.Logger, access Evaluator, shares ShareIssuer, tokens TokenValidator) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		access:    access,
		shares:    shares,
		tokens:    tokens,
		health:    health.NewServer(),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	RegisterAccessServiceServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
