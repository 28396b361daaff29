package domain

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account validation errors
var (
	ErrEmptyAccountID   = errors.New("account ID cannot be empty")
	ErrEmptyEmail       = errors.New("email cannot be empty")
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrPasswordTooShort = errors.New("password must be at least 12 characters long")
	ErrPasswordTooLong  = errors.New("password must be at most 72 characters long")
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrNegativeCredits  = errors.New("credit balance cannot be negative")
)

// Account is a registered user together with their spendable credit balance.
// Credits only change through ledger entries.
type Account struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Password       string    `json:"-"` // plaintext, only set during registration
	HashedPassword string    `json:"-"`
	Credits        int64     `json:"credits"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewAccount creates an Account with a zero balance.
// The caller is responsible for hashing the password before storing it.
func NewAccount(email, password string) (*Account, error) {
	now := time.Now().UTC()
	account := &Account{
		ID:        uuid.New(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Password:  password,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := account.Validate(); err != nil {
		return nil, err
	}

	return account, nil
}

// Validate checks if the Account has valid data.
func (a *Account) Validate() error {
	if a.ID == uuid.Nil {
		return ErrEmptyAccountID
	}
	if a.Email == "" {
		return ErrEmptyEmail
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return ErrInvalidEmail
	}
	if a.Password != "" {
		if len(a.Password) < 12 {
			return ErrPasswordTooShort
		}
		if len(a.Password) > 72 {
			return ErrPasswordTooLong
		}
	} else if a.HashedPassword == "" {
		return ErrEmptyPassword
	}
	if a.Credits < 0 {
		return ErrNegativeCredits
	}
	return nil
}
