package postgres

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/inkwell-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func newPgError(code string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		Message:        "error message",
		TableName:      "test_table",
		ColumnName:     "test_column",
		ConstraintName: "test_constraint",
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{"unique violation", newPgError(uniqueViolationCode), store.ErrDuplicate},
		{"foreign key violation", newPgError(foreignKeyViolationCode), store.ErrInvalidEntity},
		{"check violation", newPgError(checkViolationCode), store.ErrInvalidEntity},
		{"not null violation", newPgError(notNullViolationCode), store.ErrInvalidEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mapped := MapError(tt.err)
			assert.ErrorIs(t, mapped, tt.want)
			assert.ErrorIs(t, mapped, tt.err, "original error should stay wrapped")
		})
	}

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, MapError(nil))
	})

	t.Run("unmapped error passes through", func(t *testing.T) {
		t.Parallel()
		err := errors.New("connection reset")
		assert.Same(t, err, MapError(err))
	})
}

func TestMapUniqueViolation(t *testing.T) {
	t.Parallel()

	err := MapUniqueViolation(newPgError(uniqueViolationCode), store.ErrLedgerEntryExists)
	assert.ErrorIs(t, err, store.ErrLedgerEntryExists)

	err = MapUniqueViolation(newPgError(checkViolationCode), store.ErrLedgerEntryExists)
	assert.NotErrorIs(t, err, store.ErrLedgerEntryExists)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.True(t, IsCheckConstraintViolation(newPgError(checkViolationCode)))
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	err := storeError("generation_task", "create", newPgError(foreignKeyViolationCode))

	var se *store.StoreError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "generation_task", se.Entity)
	assert.Equal(t, "create", se.Operation)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}
