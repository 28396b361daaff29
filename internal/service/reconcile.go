package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
)

// Discrepancy is a task whose ledger entries disagree with its state.
type Discrepancy struct {
	TaskID  uuid.UUID        `json:"task_id"`
	OwnerID uuid.UUID        `json:"owner_id"`
	State   domain.TaskState `json:"state"`
	Reason  string           `json:"reason"`
}

// ReconcileReport summarizes a ledger check.
type ReconcileReport struct {
	TasksChecked  int           `json:"tasks_checked"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// OK reports whether every checked task was consistent.
func (r *ReconcileReport) OK() bool {
	return len(r.Discrepancies) == 0
}

// Reconcile checks, for every task created at or after since, that the task
// was charged exactly its cost once and refunded exactly once if and only if
// it failed or was cancelled.
func (s *GenerationService) Reconcile(ctx context.Context, since time.Time) (*ReconcileReport, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	tasks, err := s.stores.Tasks.ListCreatedSince(ctx, since)
	if err != nil {
		return nil, NewGenerationServiceError("reconcile", err)
	}
	report := &ReconcileReport{TasksChecked: len(tasks), Discrepancies: []Discrepancy{}}
	if len(tasks) == 0 {
		return report, nil
	}

	ids := make([]uuid.UUID, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	entries, err := s.stores.Ledger.ListEntries(ctx, ids...)
	if err != nil {
		return nil, NewGenerationServiceError("reconcile", err)
	}
	byTask := make(map[uuid.UUID][]domain.LedgerEntry, len(tasks))
	for _, e := range entries {
		byTask[e.TaskID] = append(byTask[e.TaskID], e)
	}

	for _, t := range tasks {
		for _, reason := range checkLedger(t, byTask[t.ID]) {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				TaskID:  t.ID,
				OwnerID: t.OwnerID,
				State:   t.State,
				Reason:  reason,
			})
		}
	}

	if report.OK() {
		log.Info("ledger reconciled", slog.Int("tasks_checked", report.TasksChecked))
	} else {
		log.Warn("ledger discrepancies found",
			slog.Int("tasks_checked", report.TasksChecked),
			slog.Int("discrepancies", len(report.Discrepancies)))
	}
	return report, nil
}

func checkLedger(t *domain.GenerationTask, entries []domain.LedgerEntry) []string {
	var charges, refunds []domain.LedgerEntry
	var reasons []string
	for _, e := range entries {
		if e.AccountID != t.OwnerID {
			reasons = append(reasons, fmt.Sprintf("%s entry %s belongs to another account", e.Kind, e.ID))
		}
		switch e.Kind {
		case domain.LedgerEntryCharge:
			charges = append(charges, e)
		case domain.LedgerEntryRefund:
			refunds = append(refunds, e)
		}
	}

	switch {
	case len(charges) != 1:
		reasons = append(reasons, fmt.Sprintf("expected 1 charge, found %d", len(charges)))
	case charges[0].Amount != t.Cost:
		reasons = append(reasons, fmt.Sprintf("charged %d, cost is %d", charges[0].Amount, t.Cost))
	}

	wantRefunds := 0
	if t.Refundable() {
		wantRefunds = 1
	}
	switch {
	case len(refunds) != wantRefunds:
		reasons = append(reasons, fmt.Sprintf("expected %d refunds, found %d", wantRefunds, len(refunds)))
	case wantRefunds == 1 && refunds[0].Amount != t.Cost:
		reasons = append(reasons, fmt.Sprintf("refunded %d, cost is %d", refunds[0].Amount, t.Cost))
	}
	return reasons
}

// ResolveOrphans fails and refunds every task that has been processing for
// longer than olderThan; zero selects all processing tasks. It returns how
// many tasks it failed. Tasks that finish concurrently are skipped.
func (s *GenerationService) ResolveOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	tasks, err := s.stores.Tasks.ListProcessing(ctx, olderThan)
	if err != nil {
		return 0, NewGenerationServiceError("resolve_orphans", err)
	}

	desc := domain.TaskError{Code: domain.TaskErrorInterrupted, Message: "generation was interrupted"}
	resolved := 0
	var errs []error
	for _, t := range tasks {
		err := s.FailTask(ctx, t.ID, desc)
		switch {
		case err == nil:
			resolved++
			log.Warn("failed orphaned task",
				slog.String("task_id", t.ID.String()),
				slog.Time("created_at", t.CreatedAt))
		case errors.Is(err, domain.ErrAlreadyTerminal):
		default:
			errs = append(errs, err)
		}
	}
	return resolved, errors.Join(errs...)
}
