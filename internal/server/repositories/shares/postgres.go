package shares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/dmitrijs2005/fileshare/internal/dbx"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
)

const shareColumns = `id, file_id, granter_id, recipient_id, token, expires_at, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanShare(row *sql.Row) (*models.Share, error) {
	var (
		s         models.Share
		recipient sql.NullInt64
		expires   sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.FileID, &s.GranterID, &recipient, &s.Token, &expires, &s.CreatedAt); err != nil {
		return nil, err
	}
	if recipient.Valid {
		s.RecipientID = &recipient.Int64
	}
	if expires.Valid {
		s.ExpiresAt = &expires.Time
	}
	return &s, nil
}

func (r *PostgresRepository) FindActive(ctx context.Context, fileID int64, recipientID *int64, now time.Time) (*models.Share, error) {
	query := `
		SELECT ` + shareColumns + `
		FROM shares
		WHERE file_id = $1
		  AND recipient_id IS NOT DISTINCT FROM $2
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY created_at DESC
		LIMIT 1
	`
	s, err := scanShare(r.db.QueryRowContext(ctx, query, fileID, recipientID, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// Insert stores share and fills in its id. Token uniqueness is enforced by
// the schema; a collision comes back as a storage error.
func (r *PostgresRepository) Insert(ctx context.Context, share *models.Share) (*models.Share, error) {
	query := `
		INSERT INTO shares (file_id, granter_id, recipient_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query, share.FileID, share.GranterID, share.RecipientID,
		share.Token, share.ExpiresAt, share.CreatedAt).Scan(&share.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return share, nil
}

func (r *PostgresRepository) FindActiveByToken(ctx context.Context, token string, now time.Time) (*models.Share, error) {
	query := `
		SELECT ` + shareColumns + `
		FROM shares
		WHERE token = $1
		  AND (expires_at IS NULL OR expires_at > $2)
	`
	s, err := scanShare(r.db.QueryRowContext(ctx, query, token, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) HasActiveForRecipient(ctx context.Context, fileID, userID int64, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM shares
			WHERE file_id = $1
			  AND recipient_id = $2
			  AND (expires_at IS NULL OR expires_at > $3)
		)
	`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, fileID, userID, now).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

// ListSharedWith returns the files shared to userID through active shares,
// newest share first.
func (r *PostgresRepository) ListSharedWith(ctx context.Context, userID int64, now time.Time) ([]*models.SharedFile, error) {
	query := `
		SELECT f.id, f.owner_id, f.stored_name, f.original_name, f.size_bytes, f.content_type,
		       f.uploaded_at, f.is_public,
		       s.token, s.granter_id, u.username, s.expires_at, s.created_at
		FROM shares s
		JOIN files f ON f.id = s.file_id
		JOIN users u ON u.id = s.granter_id
		WHERE s.recipient_id = $1
		  AND (s.expires_at IS NULL OR s.expires_at > $2)
		ORDER BY s.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select shares: %w", err)
	}
	defer rows.Close()

	var result []*models.SharedFile
	for rows.Next() {
		var (
			item    models.SharedFile
			expires sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.StoredName, &item.OriginalName, &item.Size,
			&item.ContentType, &item.UploadedAt, &item.IsPublic,
			&item.ShareToken, &item.SharedBy, &item.SharedByName, &expires, &item.ShareCreatedAt); err != nil {
			return nil, err
		}
		if expires.Valid {
			item.ShareExpiresAt = &expires.Time
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
