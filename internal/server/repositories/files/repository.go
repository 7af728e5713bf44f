package files

import (
	"context"

	"github.com/dmitrijs2005/fileshare/internal/server/models"
)

// Repository is the file half of the relational store.
type Repository interface {
	// Insert stores file and fills in its generated id.
	Insert(ctx context.Context, file *models.File) (*models.File, error)
	// Get returns common.ErrorNotFound when no file has the id.
	Get(ctx context.Context, id int64) (*models.File, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.File, error)
	// SetPublic and Delete only touch rows owned by ownerID; otherwise they
	// return common.ErrorNotFound.
	SetPublic(ctx context.Context, id, ownerID int64, public bool) error
	Delete(ctx context.Context, id, ownerID int64) (*models.File, error)
}
