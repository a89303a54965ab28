package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/coursekeeper/internal/dbx"
	"github.com/dmitrijs2005/coursekeeper/internal/server/repositories/codes"
	"github.com/dmitrijs2005/coursekeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX so services can run
// the same repository against a plain connection or a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Codes(db dbx.DBTX) codes.Repository
}
