package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/goran-ethernal/HolderLedger/internal/db"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
)

//go:embed 001_cache_entries.sql
var mig001 string

// Run brings the disk cache schema up to date.
func Run(log *logger.Logger, sqlDB *sql.DB) error {
	return db.Migrate(log, sqlDB, []db.Migration{
		{ID: "001_cache_entries.sql", SQL: mig001},
	})
}
