package postgresql_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/persistence"
	"github.com/runwayci/runway/pkg/persistence/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Gated on TEST_DATABASE_URL so the suite stays green without a database.
func setupStore(t *testing.T) *postgresql.Persistence {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	store, err := postgresql.NewPersistence(context.Background(), slog.Default(), databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	return store
}

func TestExecutionRepository_RoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	appID := "app-" + uuid.NewString()

	run := &models.WorkflowExecution{
		AppID:        appID,
		WorkflowID:   "wf-1",
		Name:         "deploy",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusQueued,
	}
	require.NoError(t, store.Executions().Save(ctx, run))
	require.NotEmpty(t, run.ID)

	loaded, err := store.Executions().GetByID(ctx, appID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, loaded.Status)
	assert.Equal(t, "deploy", loaded.Name)
}

func TestExecutionRepository_ListFiltersByStatus(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	appID := "app-" + uuid.NewString()

	for _, status := range []models.ExecutionStatus{models.StatusQueued, models.StatusRunning, models.StatusSuccess} {
		require.NoError(t, store.Executions().Save(ctx, &models.WorkflowExecution{
			AppID:        appID,
			WorkflowID:   "wf-1",
			WorkflowType: models.WorkflowTypeOrchestration,
			Status:       status,
		}))
	}

	runs, err := store.Executions().List(ctx, persistence.ListExecutionsOptions{
		AppID:    appID,
		Statuses: []models.ExecutionStatus{models.StatusQueued, models.StatusRunning},
	})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestExecutionRepository_UpdateSummaryVersionConflict(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	appID := "app-" + uuid.NewString()

	run := &models.WorkflowExecution{
		AppID:        appID,
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusRunning,
	}
	require.NoError(t, store.Executions().Save(ctx, run))

	current, err := store.Executions().GetByID(ctx, appID, run.ID)
	require.NoError(t, err)

	current.Status = models.StatusSuccess
	require.NoError(t, store.Executions().UpdateSummary(ctx, current))

	stale := *run
	stale.Status = models.StatusFailed
	err = store.Executions().UpdateSummary(ctx, &stale)
	assert.True(t, persistence.IsConcurrentUpdate(err))
}

func TestExecutionRepository_UpdateStartStatus(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	appID := "app-" + uuid.NewString()

	run := &models.WorkflowExecution{
		AppID:        appID,
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusQueued,
	}
	require.NoError(t, store.Executions().Save(ctx, run))

	now := time.Now().UTC()

	applied, err := store.Executions().UpdateStartStatus(ctx, appID, run.ID,
		[]models.ExecutionStatus{models.StatusNew, models.StatusQueued}, models.StatusRunning, &now)
	require.NoError(t, err)
	assert.True(t, applied)

	// A second attempt finds no run in a from-status.
	applied, err = store.Executions().UpdateStartStatus(ctx, appID, run.ID,
		[]models.ExecutionStatus{models.StatusNew, models.StatusQueued}, models.StatusRunning, &now)
	require.NoError(t, err)
	assert.False(t, applied)
}
