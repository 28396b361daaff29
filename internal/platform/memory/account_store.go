package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// AccountStore implements store.AccountStore in memory.
type AccountStore struct {
	db *DB
	tx *journal
}

var _ store.AccountStore = (*AccountStore)(nil)

// NewAccountStore returns an AccountStore backed by d.
func NewAccountStore(d *DB) *AccountStore {
	return &AccountStore{db: d}
}

// Create implements store.AccountStore.Create.
func (s *AccountStore) Create(ctx context.Context, account *domain.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	hashed := account.HashedPassword
	if account.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(account.Password), s.db.bcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		hashed = string(h)
	}

	return s.db.exec(s.tx, func(j *journal) error {
		email := strings.ToLower(account.Email)
		if _, taken := s.db.emails[email]; taken {
			return store.ErrEmailExists
		}
		if _, exists := s.db.accounts[account.ID]; exists {
			return store.ErrDuplicate
		}

		stored := *account
		stored.Email = email
		stored.Password = ""
		stored.HashedPassword = hashed
		stored.Credits = 0
		s.db.accounts[stored.ID] = &stored
		s.db.emails[email] = stored.ID
		j.record(func() {
			delete(s.db.accounts, stored.ID)
			delete(s.db.emails, email)
		})

		account.Password = ""
		account.HashedPassword = hashed
		account.Credits = 0
		return nil
	})
}

// GetByID implements store.AccountStore.GetByID.
func (s *AccountStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var out *domain.Account
	err := s.db.exec(s.tx, func(*journal) error {
		a, ok := s.db.accounts[id]
		if !ok {
			return store.ErrAccountNotFound
		}
		c := *a
		out = &c
		return nil
	})
	return out, err
}

// GetByEmail implements store.AccountStore.GetByEmail.
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var out *domain.Account
	err := s.db.exec(s.tx, func(*journal) error {
		id, ok := s.db.emails[strings.ToLower(strings.TrimSpace(email))]
		if !ok {
			return store.ErrAccountNotFound
		}
		c := *s.db.accounts[id]
		out = &c
		return nil
	})
	return out, err
}
