package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/store"
)

// PostgresGenerationTaskStore implements the store.GenerationTaskStore
// interface. Terminal transitions are single UPDATE statements guarded by
// state = 'processing', so concurrent transitions on one task resolve to one
// winner inside the database.
type PostgresGenerationTaskStore struct {
	db store.DBTX
}

// NewPostgresGenerationTaskStore creates a PostgresGenerationTaskStore.
func NewPostgresGenerationTaskStore(db store.DBTX) *PostgresGenerationTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	return &PostgresGenerationTaskStore{db: db}
}

// Ensure PostgresGenerationTaskStore implements store.GenerationTaskStore interface
var _ store.GenerationTaskStore = (*PostgresGenerationTaskStore)(nil)

// WithTx returns a store that runs its queries on tx.
func (s *PostgresGenerationTaskStore) WithTx(tx *sql.Tx) *PostgresGenerationTaskStore {
	return &PostgresGenerationTaskStore{db: tx}
}

const taskColumns = `id, owner_id, kind, input, state, progress, cost, artifact_id,
	error_code, error_message, created_at, updated_at, completed_at, failed_at, cancelled_at`

func scanTask(row interface{ Scan(...any) error }) (*domain.GenerationTask, error) {
	var (
		t           domain.GenerationTask
		kind, state string
		input       []byte
		artifactID  uuid.NullUUID
		errCode     sql.NullString
		errMessage  sql.NullString
		completedAt sql.NullTime
		failedAt    sql.NullTime
		cancelledAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.OwnerID, &kind, &input, &state, &t.Progress, &t.Cost, &artifactID,
		&errCode, &errMessage, &t.CreatedAt, &t.UpdatedAt, &completedAt, &failedAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(input, &t.Input); err != nil {
		return nil, fmt.Errorf("failed to decode task input: %w", err)
	}

	t.Kind = domain.TaskKind(kind)
	t.State = domain.TaskState(state)
	if artifactID.Valid {
		id := artifactID.UUID
		t.ArtifactID = &id
	}
	if errCode.Valid {
		t.Error = &domain.TaskError{Code: errCode.String, Message: errMessage.String}
	}
	t.CompletedAt = timePtr(completedAt)
	t.FailedAt = timePtr(failedAt)
	t.CancelledAt = timePtr(cancelledAt)
	return &t, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Create implements store.GenerationTaskStore.Create
func (s *PostgresGenerationTaskStore) Create(ctx context.Context, task *domain.GenerationTask) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	input, err := json.Marshal(task.Input)
	if err != nil {
		return fmt.Errorf("failed to encode task input: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generation_tasks (id, owner_id, kind, input, state, progress, cost, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.OwnerID, string(task.Kind), input, string(task.State),
		task.Progress, task.Cost, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to insert generation task",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		return storeError("generation_task", "create", err)
	}
	return nil
}

// GetByID implements store.GenerationTaskStore.GetByID
func (s *PostgresGenerationTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM generation_tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		return nil, storeError("generation_task", "get", err)
	}
	return task, nil
}

// ListByOwner implements store.GenerationTaskStore.ListByOwner
func (s *PostgresGenerationTaskStore) ListByOwner(
	ctx context.Context,
	ownerID uuid.UUID,
	filter store.TaskFilter,
	page store.Page,
) ([]*domain.GenerationTask, int, error) {
	const where = `WHERE owner_id = $1 AND ($2 = '' OR state = $2) AND ($3 = '' OR kind = $3)`
	state, kind := string(filter.State), string(filter.Kind)

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM generation_tasks `+where, ownerID, state, kind,
	).Scan(&total)
	if err != nil {
		return nil, 0, storeError("generation_task", "count", err)
	}

	var limit any
	if page.Limit > 0 {
		limit = page.Limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM generation_tasks `+where+`
		ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5`,
		ownerID, state, kind, limit, page.Offset(),
	)
	if err != nil {
		return nil, 0, storeError("generation_task", "list", err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, 0, storeError("generation_task", "list", err)
	}
	return tasks, total, nil
}

// ListProcessing implements store.GenerationTaskStore.ListProcessing
func (s *PostgresGenerationTaskStore) ListProcessing(ctx context.Context, olderThan time.Duration) ([]*domain.GenerationTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM generation_tasks
		WHERE state = 'processing' AND created_at <= $1
		ORDER BY created_at`,
		utcNow().Add(-olderThan),
	)
	if err != nil {
		return nil, storeError("generation_task", "list_processing", err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, storeError("generation_task", "list_processing", err)
	}
	return tasks, nil
}

// ListCreatedSince implements store.GenerationTaskStore.ListCreatedSince
func (s *PostgresGenerationTaskStore) ListCreatedSince(ctx context.Context, since time.Time) ([]*domain.GenerationTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM generation_tasks
		WHERE created_at >= $1
		ORDER BY created_at, id`,
		since.UTC(),
	)
	if err != nil {
		return nil, storeError("generation_task", "list_created_since", err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, storeError("generation_task", "list_created_since", err)
	}
	return tasks, nil
}

func collectTasks(rows *sql.Rows) ([]*domain.GenerationTask, error) {
	defer func() { _ = rows.Close() }()

	tasks := []*domain.GenerationTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateProgress implements store.GenerationTaskStore.UpdateProgress
func (s *PostgresGenerationTaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress > domain.MaxProcessingProgress {
		progress = domain.MaxProcessingProgress
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE generation_tasks SET progress = $2, updated_at = $3
		WHERE id = $1 AND state = 'processing' AND progress < $2`,
		id, progress, utcNow(),
	)
	if err != nil {
		return storeError("generation_task", "update_progress", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM generation_tasks WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return storeError("generation_task", "update_progress", err)
	}
	if !exists {
		return store.ErrTaskNotFound
	}
	return nil
}

// Complete implements store.GenerationTaskStore.Complete
func (s *PostgresGenerationTaskStore) Complete(ctx context.Context, id uuid.UUID, artifactID uuid.UUID) (*domain.GenerationTask, error) {
	if artifactID == uuid.Nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrMissingArtifact)
	}
	now := utcNow()
	return s.transition(ctx, id, uuid.Nil, "complete", `
		UPDATE generation_tasks
		SET state = 'completed', progress = 100, artifact_id = $2, completed_at = $3, updated_at = $3
		WHERE id = $1 AND state = 'processing'
		RETURNING `+taskColumns,
		id, artifactID, now,
	)
}

// Fail implements store.GenerationTaskStore.Fail
func (s *PostgresGenerationTaskStore) Fail(ctx context.Context, id uuid.UUID, desc domain.TaskError) (*domain.GenerationTask, error) {
	if desc.Code == "" {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrMissingTaskError)
	}
	now := utcNow()
	return s.transition(ctx, id, uuid.Nil, "fail", `
		UPDATE generation_tasks
		SET state = 'failed', error_code = $2, error_message = $3, failed_at = $4, updated_at = $4
		WHERE id = $1 AND state = 'processing'
		RETURNING `+taskColumns,
		id, desc.Code, desc.Message, now,
	)
}

// Cancel implements store.GenerationTaskStore.Cancel
func (s *PostgresGenerationTaskStore) Cancel(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*domain.GenerationTask, error) {
	now := utcNow()
	return s.transition(ctx, id, ownerID, "cancel", `
		UPDATE generation_tasks
		SET state = 'cancelled', cancelled_at = $3, updated_at = $3
		WHERE id = $1 AND owner_id = $2 AND state = 'processing'
		RETURNING `+taskColumns,
		id, ownerID, now,
	)
}

// transition runs a guarded UPDATE. When it matches no row the current
// record decides which error is reported.
func (s *PostgresGenerationTaskStore) transition(
	ctx context.Context,
	id uuid.UUID,
	ownerID uuid.UUID,
	operation string,
	query string,
	args ...any,
) (*domain.GenerationTask, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		logger.FromContext(ctx).Error("task transition failed",
			slog.String("task_id", id.String()),
			slog.String("operation", operation),
			slog.String("error", err.Error()))
		return nil, storeError("generation_task", operation, err)
	}

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ownerID != uuid.Nil && current.OwnerID != ownerID {
		return nil, domain.ErrNotOwner
	}
	return nil, domain.ErrAlreadyTerminal
}
