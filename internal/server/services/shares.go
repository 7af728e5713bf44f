package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/dmitrijs2005/fileshare/internal/dbx"
	"github.com/dmitrijs2005/fileshare/internal/logging"
	"github.com/dmitrijs2005/fileshare/internal/server/config"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ShareManager creates and resolves share tokens.
type ShareManager struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	defaultTTL  time.Duration
	maxTTL      time.Duration
	now         func() time.Time
	newToken    func() string
}

func NewShareManager(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *ShareManager {
	return &ShareManager{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "shares"),
		defaultTTL:  cfg.DefaultShareTTL,
		maxTTL:      cfg.MaxShareTTL,
		now:         func() time.Time { return time.Now().UTC() },
		newToken:    uuid.NewString,
	}
}

func (m *ShareManager) ttl(requested time.Duration) (time.Duration, error) {
	if requested <= 0 {
		if m.defaultTTL > 0 {
			return m.defaultTTL, nil
		}
		return 24 * time.Hour, nil
	}
	if m.maxTTL > 0 && requested > m.maxTTL {
		return 0, fmt.Errorf("share lifetime %s exceeds %s: %w", requested, m.maxTTL, common.ErrValidation)
	}
	return requested, nil
}

// Create shares fileID on behalf of ownerID. If an active share for exactly
// (fileID, recipientID) already exists it is returned unchanged; otherwise a
// new one expiring after ttl is stored. A nil recipientID makes the token
// usable by anyone who holds it.
//
// The ownership check, the lookup and the insert run in one SERIALIZABLE
// transaction, so two concurrent calls for the same pair cannot both insert:
// the loser is aborted by the database, retried, and then finds the
// winner's share.
func (m *ShareManager) Create(ctx context.Context, fileID, ownerID int64, recipientID *int64, ttl time.Duration) (*models.Share, error) {
	lifetime, err := m.ttl(ttl)
	if err != nil {
		return nil, err
	}

	var (
		share   *models.Share
		created bool
	)
	err = dbx.WithSerializableTx(ctx, m.db, func(ctx context.Context, tx dbx.DBTX) error {
		created = false
		now := m.now()

		file, err := m.repomanager.Files(tx).Get(ctx, fileID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrNotOwner
			}
			return fmt.Errorf("get file: %w", err)
		}
		if file.OwnerID != ownerID {
			return common.ErrNotOwner
		}

		if recipientID != nil {
			if _, err := m.repomanager.Users(tx).GetUserByID(ctx, *recipientID); err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return fmt.Errorf("unknown recipient %d: %w", *recipientID, common.ErrValidation)
				}
				return fmt.Errorf("get recipient: %w", err)
			}
		}

		shares := m.repomanager.Shares(tx)
		existing, err := shares.FindActive(ctx, fileID, recipientID, now)
		if err == nil {
			share = existing
			return nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("find active share: %w", err)
		}

		expires := now.Add(lifetime)
		share, err = shares.Insert(ctx, &models.Share{
			FileID:      fileID,
			GranterID:   ownerID,
			RecipientID: recipientID,
			Token:       m.newToken(),
			ExpiresAt:   &expires,
			CreatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("insert share: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		if !errors.Is(err, common.ErrNotOwner) && !errors.Is(err, common.ErrValidation) {
			m.logger.Error(ctx, "share creation failed", "file_id", fileID, "error", err)
		}
		return nil, err
	}

	if created {
		sharesCreatedTotal.WithLabelValues("created").Inc()
		m.logger.Info(ctx, "share created", "file_id", fileID, "share_id", share.ID)
	} else {
		sharesCreatedTotal.WithLabelValues("deduplicated").Inc()
	}
	return share, nil
}

// Resolve maps token to the file it was issued for. Unknown and expired
// tokens both yield common.ErrorNotFound. A token restricted to another user
// yields common.ErrForbidden, or common.ErrAuthRequired when the requester
// is anonymous.
func (m *ShareManager) Resolve(ctx context.Context, token string, requester models.Requester) (int64, models.AccessContext, error) {
	if token == "" {
		shareResolutionsTotal.WithLabelValues("not_found").Inc()
		return 0, models.Denied(), common.ErrorNotFound
	}

	share, err := m.repomanager.Shares(m.db).FindActiveByToken(ctx, token, m.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			shareResolutionsTotal.WithLabelValues("not_found").Inc()
			return 0, models.Denied(), common.ErrorNotFound
		}
		shareResolutionsTotal.WithLabelValues("error").Inc()
		m.logger.Error(ctx, "share lookup failed", "error", err)
		return 0, models.Denied(), fmt.Errorf("find share: %w", err)
	}

	if !share.AllowsRecipient(requester) {
		if requester.IsAnonymous() {
			shareResolutionsTotal.WithLabelValues("auth_required").Inc()
			return 0, models.Denied(), common.ErrAuthRequired
		}
		shareResolutionsTotal.WithLabelValues("forbidden").Inc()
		return 0, models.Denied(), common.ErrForbidden
	}

	shareResolutionsTotal.WithLabelValues("granted").Inc()
	return share.FileID, models.TokenGrant(share.FileID), nil
}
