package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/mocks"
	"github.com/phrazzld/inkwell-api/internal/platform/memory"
	"github.com/phrazzld/inkwell-api/internal/service/auth"
	"github.com/phrazzld/inkwell-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccountService(t *testing.T, verifier auth.PasswordVerifier, initialCredits int64) (*AccountService, *memory.DB) {
	t.Helper()
	db := memory.NewDB(4)
	svc, err := NewAccountService(db.Stores(), memory.NewTransactor(db), verifier, initialCredits, testLogger())
	require.NoError(t, err)
	return svc, db
}

func TestAccountService_Register(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, db := newAccountService(t, auth.NewBcryptVerifier(), 40)

	account, err := svc.Register(ctx, "Painter@Example.com", "correct-horse-battery")
	require.NoError(t, err)
	assert.Equal(t, "painter@example.com", account.Email)
	assert.Equal(t, int64(40), account.Credits)

	entries, err := db.Stores().Ledger.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.LedgerEntryGrant, entries[0].Kind)
	assert.Equal(t, account.ID, entries[0].AccountID)

	_, err = svc.Register(ctx, "painter@example.com", "another-long-password")
	assert.ErrorIs(t, err, store.ErrEmailExists)

	_, err = svc.Register(ctx, "not-an-email", "correct-horse-battery")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Register(ctx, "short@example.com", "short")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAccountService_RegisterWithoutCredits(t *testing.T) {
	t.Parallel()
	svc, db := newAccountService(t, auth.NewBcryptVerifier(), 0)

	account, err := svc.Register(context.Background(), "zero@example.com", "correct-horse-battery")
	require.NoError(t, err)
	assert.Zero(t, account.Credits)

	entries, err := db.Stores().Ledger.ListEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAccountService_Login(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newAccountService(t, auth.NewBcryptVerifier(), 0)

	registered, err := svc.Register(ctx, "login@example.com", "correct-horse-battery")
	require.NoError(t, err)

	account, err := svc.Login(ctx, "LOGIN@example.com", "correct-horse-battery")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, account.ID)

	_, err = svc.Login(ctx, "login@example.com", "wrong-password-entirely")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "correct-horse-battery")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAccountService_LoginUsesVerifier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	verifier := &mocks.MockPasswordVerifier{ShouldSucceed: false}
	svc, _ := newAccountService(t, verifier, 0)

	_, err := svc.Register(ctx, "mock@example.com", "correct-horse-battery")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "mock@example.com", "correct-horse-battery")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, verifier.CompareCallCount)
}

func TestAccountService_GetAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, db := newAccountService(t, auth.NewBcryptVerifier(), 30)

	registered, err := svc.Register(ctx, "balance@example.com", "correct-horse-battery")
	require.NoError(t, err)

	charge, err := domain.NewLedgerEntry(registered.ID, domain.LedgerEntryCharge, 20, uuid.New())
	require.NoError(t, err)
	require.NoError(t, db.Stores().Ledger.Debit(ctx, charge))

	account, err := svc.GetAccount(ctx, registered.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), account.Credits)

	_, err = svc.GetAccount(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}
