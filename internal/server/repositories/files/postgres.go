package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/dmitrijs2005/fileshare/internal/dbx"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
)

const fileColumns = `id, owner_id, stored_name, original_name, size_bytes, content_type, uploaded_at, is_public`

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	f := &models.File{}
	if err := s.Scan(&f.ID, &f.OwnerID, &f.StoredName, &f.OriginalName, &f.Size,
		&f.ContentType, &f.UploadedAt, &f.IsPublic); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, file *models.File) (*models.File, error) {
	query := `
		INSERT INTO files (owner_id, stored_name, original_name, size_bytes, content_type, uploaded_at, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query, file.OwnerID, file.StoredName, file.OriginalName,
		file.Size, file.ContentType, file.UploadedAt, file.IsPublic).Scan(&file.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return file, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// ListByOwner returns the owner's files, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1 ORDER BY uploaded_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SetPublic(ctx context.Context, id, ownerID int64, public bool) error {
	query := `UPDATE files SET is_public = $3 WHERE id = $1 AND owner_id = $2`

	res, err := r.db.ExecContext(ctx, query, id, ownerID, public)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Delete removes the row and returns it so the caller can drop the blob.
// Shares of the file go with it through ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id, ownerID int64) (*models.File, error) {
	query := `DELETE FROM files WHERE id = $1 AND owner_id = $2 RETURNING ` + fileColumns

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}
