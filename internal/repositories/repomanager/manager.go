package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/extmedia/internal/dbx"
	"github.com/dmitrijs2005/extmedia/internal/repositories/files"
	"github.com/dmitrijs2005/extmedia/internal/repositories/logs"
	"github.com/dmitrijs2005/extmedia/internal/repositories/queue"
	"github.com/dmitrijs2005/extmedia/internal/repositories/terms"
)

// RepositoryManager vends repositories bound to a DBTX, so callers can use
// the same repositories inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Queue(db dbx.DBTX) queue.Repository
	Logs(db dbx.DBTX) logs.Repository
	Terms(db dbx.DBTX) terms.Repository
}
