// Package shares stores share tokens. Every lookup takes the current time
// from the caller and treats a share as active when expires_at is NULL or
// after that time.
package shares

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/server/models"
)

type Repository interface {
	// FindActive returns the active share for exactly (fileID, recipientID).
	// A nil recipientID matches only unrestricted shares.
	FindActive(ctx context.Context, fileID int64, recipientID *int64, now time.Time) (*models.Share, error)
	Insert(ctx context.Context, share *models.Share) (*models.Share, error)
	// FindActiveByToken returns common.ErrorNotFound for unknown and expired
	// tokens alike.
	FindActiveByToken(ctx context.Context, token string, now time.Time) (*models.Share, error)
	// HasActiveForRecipient reports whether an active share of fileID is
	// addressed to userID.
	HasActiveForRecipient(ctx context.Context, fileID, userID int64, now time.Time) (bool, error)
	ListSharedWith(ctx context.Context, userID int64, now time.Time) ([]*models.SharedFile, error)
}
