package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"town-desk/models"
	"town-desk/workflow"
)

type fakeRunStore struct {
	runs        map[string]*models.WorkflowRun
	listedLimit int64
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: map[string]*models.WorkflowRun{}}
}

func (s *fakeRunStore) Insert(_ context.Context, run *models.WorkflowRun) (*models.WorkflowRun, error) {
	s.runs[run.RunID] = run
	return run, nil
}

func (s *fakeRunStore) Finish(_ context.Context, runID string, status models.RunStatus, itemsProcessed int, errorMessage string, at time.Time) error {
	run, ok := s.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	run.Status = status
	run.ItemsProcessed = itemsProcessed
	run.ErrorMessage = errorMessage
	run.CompletedAt = &at
	return nil
}

func (s *fakeRunStore) ListRecent(_ context.Context, _ models.PipelinePhase, limit int64) ([]models.WorkflowRun, error) {
	s.listedLimit = limit
	return nil, nil
}

func TestStartCompleteRun(t *testing.T) {
	store := newFakeRunStore()
	tracker := workflow.NewTracker(store)

	runID, err := tracker.Start(context.Background(), models.PhaseIngest)
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	assert.Equal(t, models.RunStarted, store.runs[runID].Status)

	require.NoError(t, tracker.Complete(context.Background(), runID, 14))
	run := store.runs[runID]
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 14, run.ItemsProcessed)
	assert.Empty(t, run.ErrorMessage)
	require.NotNil(t, run.CompletedAt)
}

func TestFailRecordsCause(t *testing.T) {
	store := newFakeRunStore()
	tracker := workflow.NewTracker(store)

	runID, err := tracker.Start(context.Background(), models.PhaseClassify)
	require.NoError(t, err)

	require.NoError(t, tracker.Fail(context.Background(), runID, 3, errors.New("kafka unavailable")))
	run := store.runs[runID]
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Equal(t, 3, run.ItemsProcessed)
	assert.Equal(t, "kafka unavailable", run.ErrorMessage)
}

func TestRunIDsAreUnique(t *testing.T) {
	store := newFakeRunStore()
	tracker := workflow.NewTracker(store)

	first, err := tracker.Start(context.Background(), models.PhaseScore)
	require.NoError(t, err)
	second, err := tracker.Start(context.Background(), models.PhaseScore)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestRecentDefaultsLimit(t *testing.T) {
	store := newFakeRunStore()
	tracker := workflow.NewTracker(store)

	_, err := tracker.Recent(context.Background(), models.PhaseIngest, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(20), store.listedLimit)
}
