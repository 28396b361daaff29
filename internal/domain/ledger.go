package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// LedgerEntryKind identifies why an account balance changed.
type LedgerEntryKind string

const (
	// LedgerEntryGrant credits an account outside of any task, e.g. at registration.
	LedgerEntryGrant LedgerEntryKind = "grant"
	// LedgerEntryCharge debits the cost of a generation task.
	LedgerEntryCharge LedgerEntryKind = "charge"
	// LedgerEntryRefund returns the cost of a task that failed or was cancelled.
	LedgerEntryRefund LedgerEntryKind = "refund"
)

// Ledger validation errors
var (
	ErrInvalidAmount    = errors.New("ledger amount must be positive")
	ErrInvalidEntryKind = errors.New("invalid ledger entry kind")
	ErrMissingTaskID    = errors.New("ledger entry requires a task ID")
	ErrUnexpectedTaskID = errors.New("grant entries cannot reference a task")
)

// LedgerEntry records one balance change. Amount is always positive; the kind
// decides the sign. Charges and refunds reference the task they pay for, and a
// task has at most one entry of each kind.
type LedgerEntry struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	TaskID       uuid.UUID       `json:"task_id,omitempty"`
	Kind         LedgerEntryKind `json:"kind"`
	Amount       int64           `json:"amount"`
	BalanceAfter int64           `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewLedgerEntry builds a validated entry. BalanceAfter is filled in by the store.
func NewLedgerEntry(accountID uuid.UUID, kind LedgerEntryKind, amount int64, taskID uuid.UUID) (*LedgerEntry, error) {
	entry := &LedgerEntry{
		ID:        uuid.New(),
		AccountID: accountID,
		TaskID:    taskID,
		Kind:      kind,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Validate checks the entry shape.
func (e *LedgerEntry) Validate() error {
	if e.AccountID == uuid.Nil {
		return ErrEmptyAccountID
	}
	if e.Amount <= 0 {
		return ErrInvalidAmount
	}
	switch e.Kind {
	case LedgerEntryCharge, LedgerEntryRefund:
		if e.TaskID == uuid.Nil {
			return ErrMissingTaskID
		}
	case LedgerEntryGrant:
		if e.TaskID != uuid.Nil {
			return ErrUnexpectedTaskID
		}
	default:
		return ErrInvalidEntryKind
	}
	return nil
}

// IsDebit reports whether the entry lowers the balance.
func (e *LedgerEntry) IsDebit() bool {
	return e.Kind == LedgerEntryCharge
}

// Signed returns the amount with the sign applied to the balance.
func (e *LedgerEntry) Signed() int64 {
	if e.IsDebit() {
		return -e.Amount
	}
	return e.Amount
}
