package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/fileshare/internal/dbx"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/files"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/shares"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/users"
)

// RepositoryManager hands out repositories bound to a *sql.DB or an open
// transaction, so a service can run several of them in one tx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Files(db dbx.DBTX) files.Repository
	Shares(db dbx.DBTX) shares.Repository
}
