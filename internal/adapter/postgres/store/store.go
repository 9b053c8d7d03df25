// Package store bundles the PostgreSQL repositories a unit of work needs
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"gitlab.com/fcv-2025.net/codegrader/internal/adapter/postgres/submissionrepository"
	"gitlab.com/fcv-2025.net/codegrader/internal/adapter/postgres/testcaserepository"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
)

var (
	_ secondary.Store        = (*Store)(nil)
	_ secondary.StoreFactory = (*Factory)(nil)
)

type Store struct {
	*submissionrepository.SubmissionRepository
	*testcaserepository.TestCaseRepository
}

// New builds a store on any sqlx handle
func New(db submissionrepository.DBTX, logger primary.Logger, schema string) *Store {
	return &Store{
		SubmissionRepository: submissionrepository.NewSubmissionRepository(db, logger, schema),
		TestCaseRepository:   testcaserepository.NewTestCaseRepository(db, logger, schema),
	}
}

// Factory opens stores pinned to a dedicated pool connection
type Factory struct {
	db     *sqlx.DB
	logger primary.Logger
	schema string
}

func NewFactory(db *sqlx.DB, logger primary.Logger, schema string) *Factory {
	return &Factory{
		db:     db,
		logger: logger,
		schema: schema,
	}
}

// Open takes a connection from the pool; the release function returns it.
func (f *Factory) Open(ctx context.Context) (secondary.Store, func() error, error) {
	conn, err := f.db.Connx(ctx)
	if err != nil {
		f.logger.Error("Failed to open database connection", "error", err)
		return nil, nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	return New(conn, f.logger, f.schema), conn.Close, nil
}
