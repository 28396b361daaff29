package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/service/auth"
	"github.com/phrazzld/inkwell-api/internal/store"
)

// AccountService registers and authenticates account holders.
type AccountService struct {
	stores         store.Stores
	tx             store.Transactor
	verifier       auth.PasswordVerifier
	initialCredits int64
	logger         *slog.Logger
}

// NewAccountService creates an AccountService that grants initialCredits to
// every new account.
func NewAccountService(
	stores store.Stores,
	tx store.Transactor,
	verifier auth.PasswordVerifier,
	initialCredits int64,
	logger *slog.Logger,
) (*AccountService, error) {
	if stores.Accounts == nil || stores.Ledger == nil {
		return nil, domain.NewValidationError("stores", "cannot be nil", domain.ErrValidation)
	}
	if tx == nil {
		return nil, domain.NewValidationError("tx", "cannot be nil", domain.ErrValidation)
	}
	if verifier == nil {
		return nil, domain.NewValidationError("verifier", "cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		stores:         stores,
		tx:             tx,
		verifier:       verifier,
		initialCredits: initialCredits,
		logger:         logger.With(slog.String("component", "account_service")),
	}, nil
}

// Register creates an account and grants the starting balance in the same
// transaction. It returns store.ErrEmailExists for a taken email.
func (s *AccountService) Register(ctx context.Context, email, password string) (*domain.Account, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	account, err := domain.NewAccount(email, password)
	if err != nil {
		return nil, domain.NewValidationError(fieldForAccountError(err), err.Error(), domain.ErrValidation)
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Stores) error {
		if err := tx.Accounts.Create(ctx, account); err != nil {
			return err
		}
		if s.initialCredits <= 0 {
			return nil
		}
		grant, err := domain.NewLedgerEntry(account.ID, domain.LedgerEntryGrant, s.initialCredits, uuid.Nil)
		if err != nil {
			return err
		}
		if err := tx.Ledger.Credit(ctx, grant); err != nil {
			return err
		}
		account.Credits = grant.BalanceAfter
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			return nil, err
		}
		log.Error("failed to register account", slog.String("error", err.Error()))
		return nil, NewAccountServiceError("register", err)
	}

	log.Info("account registered",
		slog.String("account_id", account.ID.String()),
		slog.Int64("credits", account.Credits))
	return account, nil
}

// Login returns the account for email if password matches. Unknown emails
// and wrong passwords both return ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := s.stores.Accounts.GetByEmail(ctx, email)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, NewAccountServiceError("login", err)
	}
	if err := s.verifier.Compare(account.HashedPassword, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// GetAccount returns the account with its current balance.
func (s *AccountService) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.stores.Accounts.GetByID(ctx, accountID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, err
		}
		return nil, NewAccountServiceError("get_account", err)
	}
	balance, err := s.stores.Ledger.Balance(ctx, accountID)
	if err != nil {
		return nil, NewAccountServiceError("get_account", err)
	}
	account.Credits = balance
	return account, nil
}

func fieldForAccountError(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyEmail), errors.Is(err, domain.ErrInvalidEmail):
		return "email"
	default:
		return "password"
	}
}
