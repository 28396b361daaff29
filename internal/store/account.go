package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
)

// AccountStore persists accounts.
type AccountStore interface {
	// Create saves a new account with a zero balance. The account's password
	// is hashed by the store.
	// Returns ErrEmailExists if the email is taken.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by its unique ID.
	// Returns ErrAccountNotFound if the account does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)

	// GetByEmail retrieves an account by email (case-insensitive).
	// Returns ErrAccountNotFound if the account does not exist.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
}

// LedgerStore changes account balances. Every change is recorded as a ledger
// entry in the same atomic step as the balance update.
type LedgerStore interface {
	// Balance returns the current credit balance of an account.
	// Returns ErrAccountNotFound if the account does not exist.
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)

	// Debit lowers the balance by entry.Amount if and only if the balance
	// covers it. Concurrent debits on one account never overdraw it.
	// Returns ErrInsufficientFunds and changes nothing otherwise.
	// On success entry.BalanceAfter holds the new balance.
	Debit(ctx context.Context, entry *domain.LedgerEntry) error

	// Credit raises the balance by entry.Amount.
	// Returns ErrLedgerEntryExists if the task already has an entry of this kind.
	Credit(ctx context.Context, entry *domain.LedgerEntry) error

	// ListEntries returns all entries for the given task IDs, or every entry
	// when taskIDs is empty, ordered by creation time.
	ListEntries(ctx context.Context, taskIDs ...uuid.UUID) ([]domain.LedgerEntry, error)
}
