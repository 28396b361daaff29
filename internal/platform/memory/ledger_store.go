package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/store"
)

// LedgerStore implements store.LedgerStore in memory.
type LedgerStore struct {
	db *DB
	tx *journal
}

var _ store.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore returns a LedgerStore backed by d.
func NewLedgerStore(d *DB) *LedgerStore {
	return &LedgerStore{db: d}
}

// Balance implements store.LedgerStore.Balance.
func (s *LedgerStore) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var balance int64
	err := s.db.exec(s.tx, func(*journal) error {
		a, ok := s.db.accounts[accountID]
		if !ok {
			return store.ErrAccountNotFound
		}
		balance = a.Credits
		return nil
	})
	return balance, err
}

// Debit implements store.LedgerStore.Debit.
func (s *LedgerStore) Debit(ctx context.Context, entry *domain.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if !entry.IsDebit() {
		return fmt.Errorf("%w: %s entry cannot debit", store.ErrInvalidEntity, entry.Kind)
	}
	return s.db.exec(s.tx, func(j *journal) error {
		return s.apply(j, entry)
	})
}

// Credit implements store.LedgerStore.Credit.
func (s *LedgerStore) Credit(ctx context.Context, entry *domain.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if entry.IsDebit() {
		return fmt.Errorf("%w: %s entry cannot credit", store.ErrInvalidEntity, entry.Kind)
	}
	return s.db.exec(s.tx, func(j *journal) error {
		return s.apply(j, entry)
	})
}

// apply must be called with the DB lock held.
func (s *LedgerStore) apply(j *journal, entry *domain.LedgerEntry) error {
	account, ok := s.db.accounts[entry.AccountID]
	if !ok {
		return store.ErrAccountNotFound
	}

	key := entryKey{taskID: entry.TaskID, kind: entry.Kind}
	if entry.TaskID != uuid.Nil {
		if _, dup := s.db.entryKeys[key]; dup {
			return store.ErrLedgerEntryExists
		}
	}

	next := account.Credits + entry.Signed()
	if next < 0 {
		return store.ErrInsufficientFunds
	}

	previous := account.Credits
	account.Credits = next
	entry.BalanceAfter = next

	n := len(s.db.entries)
	s.db.entries = append(s.db.entries, *entry)
	if entry.TaskID != uuid.Nil {
		s.db.entryKeys[key] = struct{}{}
	}

	j.record(func() {
		account.Credits = previous
		s.db.entries = s.db.entries[:n]
		if entry.TaskID != uuid.Nil {
			delete(s.db.entryKeys, key)
		}
	})
	return nil
}

// ListEntries implements store.LedgerStore.ListEntries.
func (s *LedgerStore) ListEntries(ctx context.Context, taskIDs ...uuid.UUID) ([]domain.LedgerEntry, error) {
	want := make(map[uuid.UUID]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		want[id] = struct{}{}
	}

	var out []domain.LedgerEntry
	err := s.db.exec(s.tx, func(*journal) error {
		for _, e := range s.db.entries {
			if len(want) > 0 {
				if _, ok := want[e.TaskID]; !ok {
					continue
				}
			}
			out = append(out, e)
		}
		return nil
	})
	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, err
}
