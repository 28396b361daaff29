package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, *PostgresLedgerStore, *PostgresGenerationTaskStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return mock, NewPostgresLedgerStore(db), NewPostgresGenerationTaskStore(db)
}

func chargeEntry(t *testing.T) *domain.LedgerEntry {
	t.Helper()
	entry, err := domain.NewLedgerEntry(uuid.New(), domain.LedgerEntryCharge, 20, uuid.New())
	require.NoError(t, err)
	return entry
}

func TestPostgresLedgerStore_Debit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	debit := regexp.QuoteMeta("WITH updated AS")
	exists := regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM accounts")

	t.Run("success sets balance after", func(t *testing.T) {
		t.Parallel()
		mock, ledger, _ := newMock(t)
		entry := chargeEntry(t)

		mock.ExpectQuery(debit).
			WithArgs(entry.ID, entry.AccountID, entry.Amount, sqlmock.AnyArg(), "charge", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"balance_after"}).AddRow(int64(80)))

		require.NoError(t, ledger.Debit(ctx, entry))
		assert.Equal(t, int64(80), entry.BalanceAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no matching row means insufficient funds", func(t *testing.T) {
		t.Parallel()
		mock, ledger, _ := newMock(t)
		entry := chargeEntry(t)

		mock.ExpectQuery(debit).WillReturnRows(sqlmock.NewRows([]string{"balance_after"}))
		mock.ExpectQuery(exists).WithArgs(entry.AccountID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		assert.ErrorIs(t, ledger.Debit(ctx, entry), store.ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account", func(t *testing.T) {
		t.Parallel()
		mock, ledger, _ := newMock(t)
		entry := chargeEntry(t)

		mock.ExpectQuery(debit).WillReturnRows(sqlmock.NewRows([]string{"balance_after"}))
		mock.ExpectQuery(exists).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		assert.ErrorIs(t, ledger.Debit(ctx, entry), store.ErrAccountNotFound)
	})

	t.Run("duplicate charge", func(t *testing.T) {
		t.Parallel()
		mock, ledger, _ := newMock(t)
		entry := chargeEntry(t)

		mock.ExpectQuery(debit).WillReturnError(newPgError(uniqueViolationCode))

		assert.ErrorIs(t, ledger.Debit(ctx, entry), store.ErrLedgerEntryExists)
	})

	t.Run("refund cannot debit", func(t *testing.T) {
		t.Parallel()
		_, ledger, _ := newMock(t)
		entry, err := domain.NewLedgerEntry(uuid.New(), domain.LedgerEntryRefund, 20, uuid.New())
		require.NoError(t, err)

		assert.ErrorIs(t, ledger.Debit(ctx, entry), store.ErrInvalidEntity)
	})
}

func taskRow(id, owner uuid.UUID, state domain.TaskState) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "owner_id", "kind", "input", "state", "progress", "cost", "artifact_id",
		"error_code", "error_message", "created_at", "updated_at", "completed_at", "failed_at", "cancelled_at",
	}).AddRow(
		id.String(), owner.String(), "text-to-image", []byte(`{"prompt":"a fox","aspect_ratio":"1:1","is_public":false}`),
		string(state), 30, int64(20), nil, nil, nil, now, now, nil, nil, nil,
	)
}

func TestPostgresGenerationTaskStore_Transitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	update := regexp.QuoteMeta("UPDATE generation_tasks")
	get := regexp.QuoteMeta("FROM generation_tasks WHERE id = $1")

	t.Run("cancel returns the updated task", func(t *testing.T) {
		t.Parallel()
		mock, _, tasks := newMock(t)
		id, owner := uuid.New(), uuid.New()

		mock.ExpectQuery(update).WithArgs(id, owner, sqlmock.AnyArg()).
			WillReturnRows(taskRow(id, owner, domain.TaskStateCancelled))

		task, err := tasks.Cancel(ctx, id, owner)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStateCancelled, task.State)
		assert.Equal(t, "a fox", task.Input.Prompt)
		assert.Equal(t, domain.AspectSquare, task.Input.AspectRatio)
	})

	t.Run("cancel by another account", func(t *testing.T) {
		t.Parallel()
		mock, _, tasks := newMock(t)
		id, owner := uuid.New(), uuid.New()

		mock.ExpectQuery(update).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery(get).WithArgs(id).WillReturnRows(taskRow(id, owner, domain.TaskStateProcessing))

		_, err := tasks.Cancel(ctx, id, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotOwner)
	})

	t.Run("complete after cancel", func(t *testing.T) {
		t.Parallel()
		mock, _, tasks := newMock(t)
		id, owner := uuid.New(), uuid.New()

		mock.ExpectQuery(update).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery(get).WithArgs(id).WillReturnRows(taskRow(id, owner, domain.TaskStateCancelled))

		_, err := tasks.Complete(ctx, id, uuid.New())
		assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fail on unknown task", func(t *testing.T) {
		t.Parallel()
		mock, _, tasks := newMock(t)
		id := uuid.New()

		mock.ExpectQuery(update).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery(get).WithArgs(id).WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := tasks.Fail(ctx, id, domain.TaskError{Code: domain.TaskErrorGeneration})
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("progress is clamped below completion", func(t *testing.T) {
		t.Parallel()
		mock, _, tasks := newMock(t)
		id := uuid.New()

		mock.ExpectExec(update).WithArgs(id, domain.MaxProcessingProgress, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, tasks.UpdateProgress(ctx, id, 100))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
