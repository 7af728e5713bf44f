package grpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// EvaluateAccess answers whether the caller may read file_id. An optional
// share_token is resolved first and its grant passed to the evaluator.
func (s *GRPCServer) EvaluateAccess(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fileID, err := requiredID(req, "file_id")
	if err != nil {
		return nil, err
	}
	requester := requesterFrom(ctx)

	grant := models.Denied()
	if token := stringField(req, "share_token"); token != "" {
		_, g, err := s.shares.Resolve(ctx, token, requester)
		switch {
		case err == nil:
			grant = g
		case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrForbidden):
			// evaluate without the grant
		default:
			return nil, s.toStatus(ctx, err)
		}
	}

	_, ac, err := s.access.EvaluateAccess(ctx, fileID, requester, grant)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return structpb.NewStruct(map[string]any{
		"granted": ac.Granted(),
		"reason":  ac.Reason.String(),
		"file_id": float64(fileID),
	})
}

// CreateShareToken shares file_id on behalf of the authenticated caller.
func (s *GRPCServer) CreateShareToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, ok := requesterFrom(ctx).UserID()
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	fileID, err := requiredID(req, "file_id")
	if err != nil {
		return nil, err
	}
	recipient, err := optionalID(req, "recipient_id")
	if err != nil {
		return nil, err
	}
	ttlHours, err := optionalID(req, "ttl_hours")
	if err != nil {
		return nil, err
	}
	var ttl time.Duration
	if ttlHours != nil {
		if *ttlHours > math.MaxInt64/int64(time.Hour) {
			return nil, status.Error(codes.InvalidArgument, "ttl_hours out of range")
		}
		ttl = time.Duration(*ttlHours) * time.Hour
	}

	share, err := s.shares.Create(ctx, fileID, ownerID, recipient, ttl)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out := map[string]any{
		"token":   share.Token,
		"file_id": float64(share.FileID),
	}
	if share.ExpiresAt != nil {
		out["expires_at"] = share.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if share.RecipientID != nil {
		out["recipient_id"] = float64(*share.RecipientID)
	}
	return structpb.NewStruct(out)
}

// ResolveShareToken maps a token to its file for the caller.
func (s *GRPCServer) ResolveShareToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}
	fileID, ac, err := s.shares.Resolve(ctx, token, requesterFrom(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return structpb.NewStruct(map[string]any{
		"file_id": float64(fileID),
		"reason":  ac.Reason.String(),
	})
}

// toStatus maps service errors onto gRPC codes. Restricted tokens held by
// the wrong user are reported as NotFound.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrAuthRequired):
		return status.Error(codes.Unauthenticated, "authentication required")
	case errors.Is(err, common.ErrForbidden), errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrNotOwner):
		return status.Error(codes.PermissionDenied, "not the owner of this file")
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		s.logger.Error(ctx, err.Error())
		return status.Error(codes.Internal, "internal error")
	}
}

func stringField(req *structpb.Struct, name string) string {
	if v, ok := req.GetFields()[name]; ok {
		return v.GetStringValue()
	}
	return ""
}

// optionalID reads a whole, non-negative number; a missing or null field is nil.
func optionalID(req *structpb.Struct, name string) (*int64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return nil, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("%s must be a number", name))
	}
	f := n.NumberValue
	if f < 0 || f != math.Trunc(f) || f > float64(1<<53) {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("%s must be a whole non-negative number", name))
	}
	id := int64(f)
	return &id, nil
}

func requiredID(req *structpb.Struct, name string) (int64, error) {
	id, err := optionalID(req, name)
	if err != nil {
		return 0, err
	}
	if id == nil || *id == 0 {
		return 0, status.Error(codes.InvalidArgument, name+" is required")
	}
	return *id, nil
}
