package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/store"
)

// PostgresLedgerStore implements the store.LedgerStore interface.
// Each balance change and its ledger entry are written by a single statement,
// so they commit together even outside an explicit transaction.
type PostgresLedgerStore struct {
	db store.DBTX
}

// NewPostgresLedgerStore creates a PostgresLedgerStore.
func NewPostgresLedgerStore(db store.DBTX) *PostgresLedgerStore {
	if db == nil {
		panic("db cannot be nil")
	}
	return &PostgresLedgerStore{db: db}
}

// Ensure PostgresLedgerStore implements store.LedgerStore interface
var _ store.LedgerStore = (*PostgresLedgerStore)(nil)

// WithTx returns a store that runs its queries on tx.
func (s *PostgresLedgerStore) WithTx(tx *sql.Tx) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: tx}
}

// Balance implements store.LedgerStore.Balance
func (s *PostgresLedgerStore) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var credits int64
	err := s.db.QueryRowContext(ctx, `SELECT credits FROM accounts WHERE id = $1`, accountID).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrAccountNotFound
	}
	if err != nil {
		return 0, storeError("ledger", "balance", err)
	}
	return credits, nil
}

// The balance guard lives in the WHERE clause: a concurrent debit that would
// overdraw matches no row and inserts nothing.
const debitQuery = `
	WITH updated AS (
		UPDATE accounts
		SET credits = credits - $3, updated_at = $6
		WHERE id = $2 AND credits >= $3
		RETURNING credits
	)
	INSERT INTO ledger_entries (id, account_id, task_id, kind, amount, balance_after, created_at)
	SELECT $1, $2, $4, $5, $3, credits, $6 FROM updated
	RETURNING balance_after`

const creditQuery = `
	WITH updated AS (
		UPDATE accounts
		SET credits = credits + $3, updated_at = $6
		WHERE id = $2
		RETURNING credits
	)
	INSERT INTO ledger_entries (id, account_id, task_id, kind, amount, balance_after, created_at)
	SELECT $1, $2, $4, $5, $3, credits, $6 FROM updated
	RETURNING balance_after`

// Debit implements store.LedgerStore.Debit
func (s *PostgresLedgerStore) Debit(ctx context.Context, entry *domain.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if !entry.IsDebit() {
		return fmt.Errorf("%w: %s entry cannot debit", store.ErrInvalidEntity, entry.Kind)
	}

	err := s.apply(ctx, debitQuery, entry)
	if errors.Is(err, sql.ErrNoRows) {
		exists, existsErr := accountExists(ctx, s.db, entry.AccountID)
		if existsErr != nil {
			return storeError("ledger", "debit", existsErr)
		}
		if !exists {
			return store.ErrAccountNotFound
		}
		return store.ErrInsufficientFunds
	}
	return err
}

// Credit implements store.LedgerStore.Credit
func (s *PostgresLedgerStore) Credit(ctx context.Context, entry *domain.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if entry.IsDebit() {
		return fmt.Errorf("%w: %s entry cannot credit", store.ErrInvalidEntity, entry.Kind)
	}

	err := s.apply(ctx, creditQuery, entry)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrAccountNotFound
	}
	return err
}

func (s *PostgresLedgerStore) apply(ctx context.Context, query string, entry *domain.LedgerEntry) error {
	log := logger.FromContext(ctx)

	var balance int64
	err := s.db.QueryRowContext(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Amount,
		nullableUUID(entry.TaskID),
		string(entry.Kind),
		entry.CreatedAt,
	).Scan(&balance)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return err
	case IsUniqueViolation(err):
		log.Debug("ledger entry already recorded",
			slog.String("task_id", entry.TaskID.String()),
			slog.String("kind", string(entry.Kind)))
		return MapUniqueViolation(err, store.ErrLedgerEntryExists)
	case err != nil:
		log.Error("failed to apply ledger entry",
			slog.String("account_id", entry.AccountID.String()),
			slog.String("kind", string(entry.Kind)),
			slog.String("error", err.Error()))
		return storeError("ledger", string(entry.Kind), err)
	}

	entry.BalanceAfter = balance
	return nil
}

// ListEntries implements store.LedgerStore.ListEntries
func (s *PostgresLedgerStore) ListEntries(ctx context.Context, taskIDs ...uuid.UUID) ([]domain.LedgerEntry, error) {
	query := `SELECT id, account_id, task_id, kind, amount, balance_after, created_at FROM ledger_entries`
	var args []any
	if len(taskIDs) > 0 {
		ids := make([]string, len(taskIDs))
		for i, id := range taskIDs {
			ids[i] = id.String()
		}
		query += ` WHERE task_id = ANY($1::uuid[])`
		args = append(args, ids)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("ledger", "list", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e      domain.LedgerEntry
			taskID uuid.NullUUID
			kind   string
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &taskID, &kind, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, storeError("ledger", "list", err)
		}
		e.TaskID = taskID.UUID
		e.Kind = domain.LedgerEntryKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("ledger", "list", err)
	}
	return entries, nil
}

func nullableUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
