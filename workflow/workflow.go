package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"town-desk/config"
	"town-desk/models"
)

// RunStore is the workflow_runs persistence surface.
type RunStore interface {
	Insert(ctx context.Context, run *models.WorkflowRun) (*models.WorkflowRun, error)
	Finish(ctx context.Context, runID string, status models.RunStatus, itemsProcessed int, errorMessage string, at time.Time) error
	ListRecent(ctx context.Context, phase models.PipelinePhase, limit int64) ([]models.WorkflowRun, error)
}

// Tracker is the observability ledger for phase batches. Every phase
// execution is bracketed by Start and Complete/Fail so the ops surface can
// answer "what ran, on how many items, and how did it end".
type Tracker struct {
	store RunStore
}

func NewTracker(store RunStore) *Tracker {
	return &Tracker{store: store}
}

// Start records the beginning of one phase batch and returns its run id.
func (t *Tracker) Start(ctx context.Context, phase models.PipelinePhase) (string, error) {
	run := &models.WorkflowRun{
		RunID:     uuid.NewString(),
		Phase:     phase,
		Status:    models.RunStarted,
		StartedAt: time.Now(),
	}
	inserted, err := t.store.Insert(ctx, run)
	if err != nil {
		return "", err
	}
	return inserted.RunID, nil
}

// Complete marks the run successful with its processed-item count.
func (t *Tracker) Complete(ctx context.Context, runID string, itemsProcessed int) error {
	return t.store.Finish(ctx, runID, models.RunCompleted, itemsProcessed, "", time.Now())
}

// Fail marks the run failed, keeping the count of items that did finish.
func (t *Tracker) Fail(ctx context.Context, runID string, itemsProcessed int, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	config.Logger.Errorf("workflow run %s failed after %d item(s): %s", runID, itemsProcessed, msg)
	return t.store.Finish(ctx, runID, models.RunFailed, itemsProcessed, msg, time.Now())
}

// Recent returns the latest runs for a phase, newest first.
func (t *Tracker) Recent(ctx context.Context, phase models.PipelinePhase, limit int64) ([]models.WorkflowRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return t.store.ListRecent(ctx, phase, limit)
}
