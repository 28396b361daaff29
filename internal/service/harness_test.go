package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/events"
	"github.com/phrazzld/inkwell-api/internal/generation"
	"github.com/phrazzld/inkwell-api/internal/platform/memory"
	"github.com/phrazzld/inkwell-api/internal/storage"
	"github.com/phrazzld/inkwell-api/internal/task"
	"github.com/stretchr/testify/require"
)

const testCost = 20

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings() GenerationSettings {
	return GenerationSettings{
		Costs: map[domain.TaskKind]int64{
			domain.TaskKindTextToImage:  testCost,
			domain.TaskKindImageToImage: testCost,
		},
		Limits: domain.InputLimits{
			MaxPromptLength: 500,
			AllowedAspectRatios: []domain.AspectRatio{
				domain.AspectSquare, domain.AspectPortrait, domain.AspectLandscape,
			},
		},
		ReadPolicy: ReadPolicyShared,
	}
}

// recordingHandler captures scheduled task IDs instead of running them, so
// tests decide when and how each job runs.
type recordingHandler struct {
	mu    sync.Mutex
	ids   []uuid.UUID
	err   error
	calls int
}

func (h *recordingHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.err != nil {
		return h.err
	}
	var req events.GenerationRequest
	if err := event.UnmarshalPayload(&req); err != nil {
		return err
	}
	h.ids = append(h.ids, req.TaskID)
	return nil
}

func (h *recordingHandler) scheduled() []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uuid.UUID(nil), h.ids...)
}

type harness struct {
	db      *memory.DB
	files   *storage.LocalStore
	handler *recordingHandler
	svc     *GenerationService
}

func newHarness(t *testing.T, opts ...GenerationOption) *harness {
	return newHarnessWithSettings(t, testSettings(), opts...)
}

func newHarnessWithSettings(t *testing.T, settings GenerationSettings, opts ...GenerationOption) *harness {
	t.Helper()

	db := memory.NewDB(4)
	files, err := storage.NewLocalStore(t.TempDir(), "http://localhost/files")
	require.NoError(t, err)

	handler := &recordingHandler{}
	emitter := events.NewInMemoryEventEmitter(testLogger())
	emitter.RegisterHandler(events.GenerationRequested, handler)

	svc, err := NewGenerationService(db.Stores(), memory.NewTransactor(db), emitter, files, settings, testLogger(), opts...)
	require.NoError(t, err)

	return &harness{db: db, files: files, handler: handler, svc: svc}
}

func (h *harness) account(t *testing.T, credits int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	account, err := domain.NewAccount(uuid.NewString()+"@example.com", "correct-horse-battery")
	require.NoError(t, err)
	require.NoError(t, h.db.Stores().Accounts.Create(ctx, account))
	if credits > 0 {
		grant, err := domain.NewLedgerEntry(account.ID, domain.LedgerEntryGrant, credits, uuid.Nil)
		require.NoError(t, err)
		require.NoError(t, h.db.Stores().Ledger.Credit(ctx, grant))
	}
	return account.ID
}

func (h *harness) balance(t *testing.T, accountID uuid.UUID) int64 {
	t.Helper()
	balance, err := h.db.Stores().Ledger.Balance(context.Background(), accountID)
	require.NoError(t, err)
	return balance
}

func (h *harness) task(t *testing.T, id uuid.UUID) *domain.GenerationTask {
	t.Helper()
	got, err := h.svc.GetTask(context.Background(), id)
	require.NoError(t, err)
	return got
}

func (h *harness) submitText(t *testing.T, owner uuid.UUID, prompt string) *domain.GenerationTask {
	t.Helper()
	res, err := h.svc.Submit(context.Background(), textRequest(owner, prompt))
	require.NoError(t, err)
	return res.Task
}

// run executes the generation job for taskID the way a worker would.
func (h *harness) run(t *testing.T, taskID uuid.UUID, producer generation.Producer) error {
	t.Helper()
	job, err := task.NewGenerationJob(taskID, producer, h.svc, 0, testLogger())
	require.NoError(t, err)
	return job.Execute(context.Background())
}

func textRequest(owner uuid.UUID, prompt string) SubmitRequest {
	return SubmitRequest{
		OwnerID: owner,
		Kind:    domain.TaskKindTextToImage,
		Input: domain.GenerationInput{
			Prompt:      prompt,
			AspectRatio: domain.AspectSquare,
		},
	}
}

var errStorageFull = errors.New("disk full")
