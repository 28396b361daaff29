package postgres

import (
	"context"
	"database/sql"

	"github.com/phrazzld/inkwell-api/internal/store"
)

// Transactor implements store.Transactor on a PostgreSQL connection pool.
type Transactor struct {
	db        *sql.DB
	accounts  *PostgresAccountStore
	ledger    *PostgresLedgerStore
	tasks     *PostgresGenerationTaskStore
	artifacts *PostgresArtifactStore
}

// NewTransactor creates a Transactor. bcryptCost is used by the account store.
func NewTransactor(db *sql.DB, bcryptCost int) *Transactor {
	return &Transactor{
		db:        db,
		accounts:  NewPostgresAccountStore(db, bcryptCost),
		ledger:    NewPostgresLedgerStore(db),
		tasks:     NewPostgresGenerationTaskStore(db),
		artifacts: NewPostgresArtifactStore(db),
	}
}

var _ store.Transactor = (*Transactor)(nil)

// Stores returns stores that run each call on the pool.
func (t *Transactor) Stores() store.Stores {
	return store.Stores{
		Accounts:  t.accounts,
		Ledger:    t.ledger,
		Tasks:     t.tasks,
		Artifacts: t.artifacts,
	}
}

// RunInTx runs fn with stores bound to one database transaction.
func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Stores) error) error {
	return store.RunInTransaction(ctx, t.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, store.Stores{
			Accounts:  t.accounts.WithTx(tx),
			Ledger:    t.ledger.WithTx(tx),
			Tasks:     t.tasks.WithTx(tx),
			Artifacts: t.artifacts.WithTx(tx),
		})
	})
}
