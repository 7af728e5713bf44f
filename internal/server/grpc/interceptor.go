package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const requesterKey ctxKey = "requester"

// authRequired lists the methods that refuse anonymous callers.
var authRequired = map[string]bool{
	methodCreateShareToken: true,
}

func requesterFrom(ctx context.Context) models.Requester {
	if r, ok := ctx.Value(requesterKey).(models.Requester); ok {
		return r
	}
	return models.Anonymous()
}

// accessTokenInterceptor attaches the caller identity from the access_token
// metadata. A presented token must be valid; a missing one leaves the caller
// anonymous unless the method requires a user.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}

	requester := models.Anonymous()
	if accessToken != "" {
		userID, err := s.tokens.ValidateBearerToken(ctx, accessToken)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		requester = models.AuthenticatedUser(userID)
	} else if authRequired[info.FullMethod] {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	return handler(context.WithValue(ctx, requesterKey, requester), req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	args := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
	if code == codes.Internal || code == codes.Unknown {
		s.logger.Error(ctx, "grpc request", append(args, "error", err)...)
	} else {
		s.logger.Debug(ctx, "grpc request", args...)
	}
	return resp, err
}
