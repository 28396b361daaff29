package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// PostgresAccountStore implements the store.AccountStore interface
// using a PostgreSQL database as the storage backend.
type PostgresAccountStore struct {
	db         store.DBTX
	bcryptCost int
}

// NewPostgresAccountStore creates a PostgresAccountStore. db may be a
// connection pool or a transaction.
func NewPostgresAccountStore(db store.DBTX, bcryptCost int) *PostgresAccountStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &PostgresAccountStore{db: db, bcryptCost: bcryptCost}
}

// Ensure PostgresAccountStore implements store.AccountStore interface
var _ store.AccountStore = (*PostgresAccountStore)(nil)

// WithTx returns a store that runs its queries on tx.
func (s *PostgresAccountStore) WithTx(tx *sql.Tx) *PostgresAccountStore {
	return &PostgresAccountStore{db: tx, bcryptCost: s.bcryptCost}
}

// Create implements store.AccountStore.Create
func (s *PostgresAccountStore) Create(ctx context.Context, account *domain.Account) error {
	log := logger.FromContext(ctx)

	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	hashed := account.HashedPassword
	if account.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(account.Password), s.bcryptCost)
		if err != nil {
			log.Error("failed to hash password", slog.String("error", err.Error()))
			return fmt.Errorf("failed to hash password: %w", err)
		}
		hashed = string(h)
	}

	email := strings.ToLower(account.Email)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, hashed_password, credits, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5)`,
		account.ID, email, hashed, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("email already registered", slog.String("account_id", account.ID.String()))
			return store.ErrEmailExists
		}
		log.Error("failed to insert account",
			slog.String("account_id", account.ID.String()),
			slog.String("error", err.Error()))
		return storeError("account", "create", err)
	}

	account.Email = email
	account.Password = ""
	account.HashedPassword = hashed
	account.Credits = 0
	return nil
}

const accountColumns = `id, email, hashed_password, credits, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.Email, &a.HashedPassword, &a.Credits, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByID implements store.AccountStore.GetByID
func (s *PostgresAccountStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, storeError("account", "get", err)
	}
	return account, nil
}

// GetByEmail implements store.AccountStore.GetByEmail
func (s *PostgresAccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, storeError("account", "get_by_email", err)
	}
	return account, nil
}

// accountExists reports whether an account row exists.
func accountExists(ctx context.Context, db store.DBTX, id uuid.UUID) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func utcNow() time.Time {
	return time.Now().UTC()
}
