package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/dmitrijs2005/fileshare/internal/logging"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/repomanager"
)

// AccessEvaluator decides whether a requester may read a file. It re-reads
// shares on every call and keeps no state between calls.
type AccessEvaluator struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

func NewAccessEvaluator(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *AccessEvaluator {
	return &AccessEvaluator{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "access"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate checks, in order: ownership, the public flag, a token grant for
// this very file, and finally an active share addressed to the requester.
// grant is the context returned by ShareManager.Resolve, or the zero value
// when the request did not come through a token.
//
// A storage failure yields a denied context together with the error.
func (e *AccessEvaluator) Evaluate(ctx context.Context, file *models.File, requester models.Requester, grant models.AccessContext) (models.AccessContext, error) {
	decide := func(r models.AccessReason) (models.AccessContext, error) {
		accessDecisionsTotal.WithLabelValues(r.String()).Inc()
		if r == models.AccessDenied {
			e.logger.Info(ctx, "access denied", "file_id", file.ID, "requester", requester.String())
		}
		return models.AccessContext{Reason: r, FileID: file.ID}, nil
	}

	if requester.Is(file.OwnerID) {
		return decide(models.AccessOwner)
	}
	if file.IsPublic {
		return decide(models.AccessPublic)
	}
	if grant.Reason == models.AccessValidToken && grant.FileID == file.ID {
		return decide(models.AccessValidToken)
	}

	userID, ok := requester.UserID()
	if !ok {
		return decide(models.AccessDenied)
	}

	shared, err := e.repomanager.Shares(e.db).HasActiveForRecipient(ctx, file.ID, userID, e.now())
	if err != nil {
		accessErrorsTotal.Inc()
		e.logger.Error(ctx, "share lookup failed", "file_id", file.ID, "error", err)
		return models.Denied(), fmt.Errorf("check shares: %w", err)
	}
	if shared {
		return decide(models.AccessRecipientShare)
	}
	return decide(models.AccessDenied)
}

// EvaluateAccess loads the file and evaluates it. A missing file is
// common.ErrorNotFound.
func (e *AccessEvaluator) EvaluateAccess(ctx context.Context, fileID int64, requester models.Requester, grant models.AccessContext) (*models.File, models.AccessContext, error) {
	file, err := e.repomanager.Files(e.db).Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, models.Denied(), common.ErrorNotFound
		}
		e.logger.Error(ctx, "file lookup failed", "file_id", fileID, "error", err)
		return nil, models.Denied(), fmt.Errorf("get file: %w", err)
	}

	ac, err := e.Evaluate(ctx, file, requester, grant)
	if err != nil {
		return nil, models.Denied(), err
	}
	return file, ac, nil
}
