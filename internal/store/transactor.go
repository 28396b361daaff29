package store

import "context"

// Stores groups the stores that take part in one unit of work.
type Stores struct {
	Accounts  AccountStore
	Ledger    LedgerStore
	Tasks     GenerationTaskStore
	Artifacts ArtifactStore
}

// Transactor runs a function against Stores bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error
}
