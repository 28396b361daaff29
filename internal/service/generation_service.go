package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/config"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/events"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/storage"
	"github.com/phrazzld/inkwell-api/internal/store"
)

// StatusCache stores serialized views of terminal tasks.
type StatusCache interface {
	Get(ctx context.Context, taskID uuid.UUID) ([]byte, bool, error)
	Set(ctx context.Context, taskID uuid.UUID, view []byte) error
}

// GenerationSettings holds the prices and limits applied to submissions.
type GenerationSettings struct {
	Costs         map[domain.TaskKind]int64
	Limits        domain.InputLimits
	EstimatedTime time.Duration
	ReadPolicy    ReadPolicy
}

// SettingsFromConfig converts the generation configuration section.
func SettingsFromConfig(cfg config.GenerationConfig) (GenerationSettings, error) {
	policy, err := ParseReadPolicy(cfg.StatusReadPolicy)
	if err != nil {
		return GenerationSettings{}, err
	}
	ratios := make([]domain.AspectRatio, 0, len(cfg.AllowedAspectRatios))
	for _, r := range cfg.AllowedAspectRatios {
		ratios = append(ratios, domain.AspectRatio(r))
	}
	return GenerationSettings{
		Costs: map[domain.TaskKind]int64{
			domain.TaskKindTextToImage:  cfg.TextToImageCost,
			domain.TaskKindImageToImage: cfg.ImageToImageCost,
		},
		Limits: domain.InputLimits{
			MaxPromptLength:     cfg.MaxPromptLength,
			AllowedAspectRatios: ratios,
		},
		EstimatedTime: time.Duration(cfg.EstimatedSeconds) * time.Second,
		ReadPolicy:    policy,
	}, nil
}

// SubmitRequest is a generation request made by an account.
type SubmitRequest struct {
	OwnerID uuid.UUID
	Kind    domain.TaskKind
	Input   domain.GenerationInput
}

// SubmitResult is returned as soon as a task has been charged and scheduled.
type SubmitResult struct {
	Task          *domain.GenerationTask
	EstimatedTime time.Duration
}

// GenerationService accepts generation requests, charges for them and
// applies their outcomes. Every terminal transition that entitles the owner
// to a refund writes the refund in the same transaction, so a task is
// refunded at most once.
type GenerationService struct {
	stores   store.Stores
	tx       store.Transactor
	emitter  events.EventEmitter
	files    storage.FileStore
	cache    StatusCache
	settings GenerationSettings
	logger   *slog.Logger
}

// GenerationOption customizes a GenerationService.
type GenerationOption func(*GenerationService)

// WithStatusCache caches the views of terminal tasks.
func WithStatusCache(cache StatusCache) GenerationOption {
	return func(s *GenerationService) {
		s.cache = cache
	}
}

// NewGenerationService creates a GenerationService. stores is used for reads
// outside a transaction.
func NewGenerationService(
	stores store.Stores,
	tx store.Transactor,
	emitter events.EventEmitter,
	files storage.FileStore,
	settings GenerationSettings,
	logger *slog.Logger,
	opts ...GenerationOption,
) (*GenerationService, error) {
	if stores.Tasks == nil || stores.Ledger == nil || stores.Artifacts == nil {
		return nil, domain.NewValidationError("stores", "cannot be nil", domain.ErrValidation)
	}
	if tx == nil {
		return nil, domain.NewValidationError("tx", "cannot be nil", domain.ErrValidation)
	}
	if emitter == nil {
		return nil, domain.NewValidationError("emitter", "cannot be nil", domain.ErrValidation)
	}
	if files == nil {
		return nil, domain.NewValidationError("files", "cannot be nil", domain.ErrValidation)
	}
	if settings.ReadPolicy == "" {
		settings.ReadPolicy = ReadPolicyShared
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &GenerationService{
		stores:   stores,
		tx:       tx,
		emitter:  emitter,
		files:    files,
		settings: settings,
		logger:   logger.With(slog.String("component", "generation_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Cost returns the price of a task of the given kind.
func (s *GenerationService) Cost(kind domain.TaskKind) (int64, bool) {
	cost, ok := s.settings.Costs[kind]
	return cost, ok && cost > 0
}

// Submit validates the request, charges the owner and records the task in
// one transaction, then schedules the producer. It returns without waiting
// for generation. A failed charge leaves no task behind.
func (s *GenerationService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("owner_id", req.OwnerID.String()),
		slog.String("task_kind", string(req.Kind)),
	)

	input := req.Input
	input.Prompt = strings.TrimSpace(input.Prompt)
	if err := input.Validate(req.Kind, s.settings.Limits); err != nil {
		return nil, err
	}
	cost, ok := s.Cost(req.Kind)
	if !ok {
		return nil, domain.NewValidationError("kind", "is not available", domain.ErrValidation)
	}

	task, err := domain.NewGenerationTask(req.OwnerID, req.Kind, input, cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Stores) error {
		charge, err := domain.NewLedgerEntry(req.OwnerID, domain.LedgerEntryCharge, cost, task.ID)
		if err != nil {
			return err
		}
		if err := tx.Ledger.Debit(ctx, charge); err != nil {
			return err
		}
		return tx.Tasks.Create(ctx, task)
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) || errors.Is(err, store.ErrAccountNotFound) {
			log.Info("generation request rejected", slog.String("error", err.Error()))
			return nil, err
		}
		log.Error("failed to charge and record task", slog.String("error", err.Error()))
		return nil, NewGenerationServiceError("submit", err)
	}
	log = log.With(slog.String("task_id", task.ID.String()))

	event, err := events.NewGenerationRequestedEvent(events.GenerationRequest{
		TaskID:  task.ID,
		OwnerID: task.OwnerID,
		Kind:    string(task.Kind),
	})
	if err == nil {
		err = s.emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		log.Error("failed to schedule generation task", slog.String("error", err.Error()))
		desc := domain.TaskError{Code: domain.TaskErrorScheduling, Message: "the task could not be scheduled"}
		if failErr := s.FailTask(context.WithoutCancel(ctx), task.ID, desc); failErr != nil {
			log.Error("failed to release unscheduled task", slog.String("error", failErr.Error()))
		}
		return nil, fmt.Errorf("%w: %v", ErrSchedulingFailed, err)
	}

	log.Info("generation task submitted", slog.Int64("cost", cost))
	return &SubmitResult{Task: task, EstimatedTime: s.settings.EstimatedTime}, nil
}

// Cancel moves a processing task owned by ownerID to cancelled and refunds
// its cost. It returns domain.ErrNotOwner, domain.ErrAlreadyTerminal or
// store.ErrTaskNotFound without side effects when the task cannot be
// cancelled.
func (s *GenerationService) Cancel(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("task_id", taskID.String()),
		slog.String("owner_id", ownerID.String()),
	)

	var cancelled *domain.GenerationTask
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Stores) error {
		t, err := tx.Tasks.Cancel(ctx, taskID, ownerID)
		if err != nil {
			return err
		}
		if err := refund(ctx, tx, t); err != nil {
			return err
		}
		cancelled = t
		return nil
	})
	if err != nil {
		if isTransitionRejected(err) {
			log.Info("cancel rejected", slog.String("error", err.Error()))
			return nil, err
		}
		log.Error("failed to cancel task", slog.String("error", err.Error()))
		return nil, NewGenerationServiceError("cancel", err)
	}

	log.Info("generation task cancelled and refunded", slog.Int64("refund", cancelled.Cost))
	return cancelled, nil
}

// GetTask returns the stored task.
func (s *GenerationService) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.GenerationTask, error) {
	return s.stores.Tasks.GetByID(ctx, taskID)
}

// RecordProgress raises the progress of a processing task. Updates on a
// finished task are ignored.
func (s *GenerationService) RecordProgress(ctx context.Context, taskID uuid.UUID, progress int) error {
	return s.stores.Tasks.UpdateProgress(ctx, taskID, progress)
}

// CompleteTask publishes the artifact and completes the task together. If
// the task already finished, the artifact files are deleted and
// domain.ErrAlreadyTerminal is returned.
func (s *GenerationService) CompleteTask(ctx context.Context, taskID uuid.UUID, artifact *domain.Artifact) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("task_id", taskID.String()))

	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Stores) error {
		if err := tx.Artifacts.Create(ctx, artifact); err != nil {
			return err
		}
		_, err := tx.Tasks.Complete(ctx, taskID, artifact.ID)
		return err
	})
	if err == nil {
		log.Info("generation task completed", slog.String("artifact_id", artifact.ID.String()))
		return nil
	}

	s.discardArtifact(ctx, log, artifact)
	if errors.Is(err, domain.ErrAlreadyTerminal) {
		log.Info("completion arrived after task finished")
		return err
	}
	log.Error("failed to complete task", slog.String("error", err.Error()))
	return NewGenerationServiceError("complete", err)
}

// FailTask records the failure and refunds the task cost. It returns
// domain.ErrAlreadyTerminal, and refunds nothing, if the task already
// finished.
func (s *GenerationService) FailTask(ctx context.Context, taskID uuid.UUID, desc domain.TaskError) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("task_id", taskID.String()))

	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Stores) error {
		t, err := tx.Tasks.Fail(ctx, taskID, desc)
		if err != nil {
			return err
		}
		return refund(ctx, tx, t)
	})
	if err != nil {
		if isTransitionRejected(err) {
			return err
		}
		log.Error("failed to fail task", slog.String("error", err.Error()))
		return NewGenerationServiceError("fail", err)
	}

	log.Info("generation task failed and refunded", slog.String("error_code", desc.Code))
	return nil
}

// GetStatus returns the view of a task if the read policy lets requester see
// it. requester is uuid.Nil for anonymous callers. Views of finished tasks
// never change and are served from the status cache when one is configured.
func (s *GenerationService) GetStatus(ctx context.Context, taskID, requester uuid.UUID) (*TaskView, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("task_id", taskID.String()))

	if cached, ok := s.cachedStatus(ctx, log, taskID); ok {
		if !s.settings.ReadPolicy.Allows(requester, cached.OwnerID, cached.IsPublic) {
			return nil, ErrForbidden
		}
		return cached.View, nil
	}

	t, err := s.stores.Tasks.GetByID(ctx, taskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, err
		}
		return nil, NewGenerationServiceError("get_status", err)
	}
	if !s.settings.ReadPolicy.Allows(requester, t.OwnerID, t.Input.IsPublic) {
		return nil, ErrForbidden
	}

	v, err := s.view(ctx, t)
	if err != nil {
		return nil, NewGenerationServiceError("get_status", err)
	}
	if t.IsTerminal() {
		s.cacheStatus(ctx, log, t, v)
	}
	return v, nil
}

func (s *GenerationService) cachedStatus(ctx context.Context, log *slog.Logger, taskID uuid.UUID) (*cachedView, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, taskID)
	if err != nil {
		log.Warn("status cache read failed", slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var cached cachedView
	if err := json.Unmarshal(data, &cached); err != nil || cached.View == nil {
		log.Warn("ignoring malformed cached status")
		return nil, false
	}
	return &cached, true
}

func (s *GenerationService) cacheStatus(ctx context.Context, log *slog.Logger, t *domain.GenerationTask, v *TaskView) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(cachedView{OwnerID: t.OwnerID, IsPublic: t.Input.IsPublic, View: v})
	if err != nil {
		log.Warn("failed to encode status for cache", slog.String("error", err.Error()))
		return
	}
	if err := s.cache.Set(ctx, t.ID, data); err != nil {
		log.Warn("status cache write failed", slog.String("error", err.Error()))
	}
}

// ListTasks returns one page of the owner's tasks, newest first, and the
// number of tasks matching the filter.
func (s *GenerationService) ListTasks(
	ctx context.Context,
	ownerID uuid.UUID,
	filter store.TaskFilter,
	page store.Page,
) ([]*TaskView, int, error) {
	tasks, total, err := s.stores.Tasks.ListByOwner(ctx, ownerID, filter, page)
	if err != nil {
		return nil, 0, NewGenerationServiceError("list", err)
	}
	views := make([]*TaskView, 0, len(tasks))
	for _, t := range tasks {
		v, err := s.view(ctx, t)
		if err != nil {
			return nil, 0, NewGenerationServiceError("list", err)
		}
		views = append(views, v)
	}
	return views, total, nil
}

// refund credits the task cost back to its owner. The ledger rejects a
// second refund for the same task.
func refund(ctx context.Context, tx store.Stores, t *domain.GenerationTask) error {
	entry, err := domain.NewLedgerEntry(t.OwnerID, domain.LedgerEntryRefund, t.Cost, t.ID)
	if err != nil {
		return err
	}
	return tx.Ledger.Credit(ctx, entry)
}

// discardArtifact deletes the files of an artifact that will never be
// published.
func (s *GenerationService) discardArtifact(ctx context.Context, log *slog.Logger, artifact *domain.Artifact) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	for _, key := range artifact.Keys() {
		if err := s.files.Delete(ctx, key); err != nil {
			log.Warn("failed to delete discarded artifact file",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}
}

func isTransitionRejected(err error) bool {
	return errors.Is(err, domain.ErrAlreadyTerminal) ||
		errors.Is(err, domain.ErrNotOwner) ||
		errors.Is(err, store.ErrNotFound)
}
