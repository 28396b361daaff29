package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type entryKey struct {
	taskID uuid.UUID
	kind   domain.LedgerEntryKind
}

// DB holds every record kept by the memory stores.
type DB struct {
	mu         sync.Mutex
	bcryptCost int

	accounts  map[uuid.UUID]*domain.Account
	emails    map[string]uuid.UUID
	entries   []domain.LedgerEntry
	entryKeys map[entryKey]struct{}
	tasks     map[uuid.UUID]*domain.GenerationTask
	artifacts map[uuid.UUID]*domain.Artifact
}

// NewDB creates an empty database. bcryptCost is used when accounts are created.
func NewDB(bcryptCost int) *DB {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.MinCost
	}
	return &DB{
		bcryptCost: bcryptCost,
		accounts:   make(map[uuid.UUID]*domain.Account),
		emails:     make(map[string]uuid.UUID),
		entryKeys:  make(map[entryKey]struct{}),
		tasks:      make(map[uuid.UUID]*domain.GenerationTask),
		artifacts:  make(map[uuid.UUID]*domain.Artifact),
	}
}

// journal collects undo steps for the mutations of one transaction.
type journal struct {
	undo []func()
}

func (j *journal) record(fn func()) {
	if j != nil {
		j.undo = append(j.undo, fn)
	}
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// exec runs fn under the DB lock. Inside a transaction the lock is already
// held, so fn runs directly and records its undo steps in tx.
func (d *DB) exec(tx *journal, fn func(j *journal) error) error {
	if tx != nil {
		return fn(tx)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(nil)
}

// Stores returns non-transactional stores backed by d.
func (d *DB) Stores() store.Stores {
	return d.storesFor(nil)
}

func (d *DB) storesFor(tx *journal) store.Stores {
	return store.Stores{
		Accounts:  &AccountStore{db: d, tx: tx},
		Ledger:    &LedgerStore{db: d, tx: tx},
		Tasks:     &GenerationTaskStore{db: d, tx: tx},
		Artifacts: &ArtifactStore{db: d, tx: tx},
	}
}

// Transactor implements store.Transactor for a memory DB.
type Transactor struct {
	db *DB
}

// NewTransactor creates a Transactor over d.
func NewTransactor(d *DB) *Transactor {
	return &Transactor{db: d}
}

var _ store.Transactor = (*Transactor)(nil)

// RunInTx holds the DB lock while fn runs. If fn returns an error or panics,
// every mutation it made through the provided stores is undone.
func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Stores) error) (err error) {
	log := logger.FromContext(ctx)

	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	j := &journal{}
	defer func() {
		if p := recover(); p != nil {
			j.rollback()
			log.Error("rolled back memory transaction after panic", slog.Any("panic", p))
			panic(p)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err = fn(ctx, t.db.storesFor(j)); err != nil {
		j.rollback()
		log.Debug("rolled back memory transaction due to error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
