package execution

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/runwayci/runway/pkg/eventbus"
	"github.com/runwayci/runway/pkg/events"
	"github.com/runwayci/runway/pkg/interrupts"
	"github.com/runwayci/runway/pkg/locker"
	"github.com/runwayci/runway/pkg/mocks"
	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/persistence"
	"github.com/runwayci/runway/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	service   *Service
	store     *file.Persistence
	executor  *mocks.MockExecutor
	notifier  *mocks.MockInterruptNotifier
	artifacts *mocks.MockArtifactResolver
	services  *mocks.MockServiceInstanceResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	executor := &mocks.MockExecutor{}
	notifier := &mocks.MockInterruptNotifier{}
	artifacts := &mocks.MockArtifactResolver{}
	services := &mocks.MockServiceInstanceResolver{}
	logger := slog.Default()

	service := NewService(Config{
		Persistence:      store,
		Executor:         executor,
		Interrupts:       interrupts.NewManager(store, notifier, logger),
		Locker:           locker.NewMemoryLocker(),
		Artifacts:        artifacts,
		ServiceInstances: services,
		Logger:           logger,
	})

	return &fixture{
		service:   service,
		store:     store,
		executor:  executor,
		notifier:  notifier,
		artifacts: artifacts,
		services:  services,
	}
}

func listOptions(appID string) persistence.ListExecutionsOptions {
	return persistence.ListExecutionsOptions{AppID: appID}
}

func ts(minute int) *time.Time {
	t := time.Date(2024, 5, 10, 9, minute, 0, 0, time.UTC)

	return &t
}

func (f *fixture) saveWorkflow(t *testing.T, workflow *models.Workflow) *models.Workflow {
	t.Helper()

	require.NoError(t, f.store.Workflows().Save(context.Background(), workflow))

	return workflow
}

func (f *fixture) saveExecution(t *testing.T, execution *models.WorkflowExecution) *models.WorkflowExecution {
	t.Helper()

	require.NoError(t, f.store.Executions().Save(context.Background(), execution))

	return execution
}

func (f *fixture) saveInstance(t *testing.T, instance *models.StateExecutionInstance) *models.StateExecutionInstance {
	t.Helper()

	require.NoError(t, f.store.Instances().Save(context.Background(), instance))

	return instance
}

func (f *fixture) reload(t *testing.T, appID, executionID string) *models.WorkflowExecution {
	t.Helper()

	execution, err := f.store.Executions().GetByID(context.Background(), appID, executionID)
	require.NoError(t, err)

	return execution
}

func TestTriggerOrchestrationExecution_ParksQueued(t *testing.T) {
	f := newFixture(t)
	f.saveWorkflow(t, &models.Workflow{ID: "wf-1", AppID: "app-1", Name: "deploy", Valid: true})

	run, err := f.service.TriggerOrchestrationExecution(context.Background(), "app-1", "wf-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusQueued, run.Status)
	assert.Empty(t, run.Notes)
	assert.Equal(t, "Deployment Trigger", run.TriggeredBy.Name)
	f.executor.AssertNotCalled(t, "StartExecution", mock.Anything, mock.Anything)
}

func TestTriggerOrchestrationExecution_PublishesQueuedEvent(t *testing.T) {
	f := newFixture(t)
	bus := &mocks.MockEventBus{}
	f.service.publisher = bus

	var published eventbus.Event

	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(2).(eventbus.Event) }).
		Return(nil)

	f.saveWorkflow(t, &models.Workflow{ID: "wf-1", AppID: "app-1", Name: "deploy", Valid: true})

	run, err := f.service.TriggerOrchestrationExecution(context.Background(), "app-1", "wf-1", nil)
	require.NoError(t, err)

	bus.AssertNumberOfCalls(t, "Publish", 1)

	queued, ok := published.(events.ExecutionQueued)
	require.True(t, ok)
	assert.Equal(t, run.ID, queued.ExecutionID)
	assert.Equal(t, "wf-1", queued.WorkflowID)
}

func TestTriggerOrchestrationExecution_PublishFailureDoesNotFailTrigger(t *testing.T) {
	f := newFixture(t)
	bus := &mocks.MockEventBus{}
	f.service.publisher = bus
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker unreachable"))

	f.saveWorkflow(t, &models.Workflow{ID: "wf-1", AppID: "app-1", Name: "deploy", Valid: true})

	run, err := f.service.TriggerOrchestrationExecution(context.Background(), "app-1", "wf-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, run.Status)
}

func TestTriggerOrchestrationExecution_RejectsSecondQueuedRun(t *testing.T) {
	f := newFixture(t)
	f.saveWorkflow(t, &models.Workflow{ID: "wf-1", AppID: "app-1", Name: "deploy", Valid: true})

	_, err := f.service.TriggerOrchestrationExecution(context.Background(), "app-1", "wf-1", nil)
	require.NoError(t, err)

	_, err = f.service.TriggerOrchestrationExecution(context.Background(), "app-1", "wf-1", nil)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
}

func TestTriggerOrchestrationExecution_NotesActiveRun(t *testing.T) {
	f := newFixture(t)
	f.saveWorkflow(t, &models.Workflow{ID: "wf-1", AppID: "app-1", Name: "deploy", Valid: true})
	f.saveExecution(t, &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusRunning,
	})

	run, err := f.service.TriggerOrchestrationExecution(context.Background(), "app-1", "wf-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusQueued, run.Status)
	assert.Equal(t, "Waiting for a running execution of this workflow to finish", run.Notes)
}

func TestTriggerOrchestrationExecution_RejectsInvalidWorkflow(t *testing.T) {
	f := newFixture(t)
	f.saveWorkflow(t, &models.Workflow{ID: "wf-1", AppID: "app-1", Name: "deploy", Valid: false})

	_, err := f.service.TriggerOrchestrationExecution(context.Background(), "app-1", "wf-1", nil)
	assert.ErrorIs(t, err, ErrWorkflowInvalid)
}

func TestTriggerOrchestrationExecution_ValidatesVariables(t *testing.T) {
	f := newFixture(t)
	f.saveWorkflow(t, &models.Workflow{
		ID:    "wf-1",
		AppID: "app-1",
		Name:  "deploy",
		Valid: true,
		VariablesSchema: json.RawMessage(`{
			"type": "object",
			"required": ["environment"]
		}`),
	})

	_, err := f.service.TriggerOrchestrationExecution(context.Background(), "app-1", "wf-1", &models.ExecutionArgs{
		WorkflowVariables: map[string]string{"region": "us-east-1"},
	})
	assert.ErrorIs(t, err, ErrVariablesInvalid)

	// The same schema accepts a request that carries the required variable.
	_, err = f.service.TriggerOrchestrationExecution(context.Background(), "app-1", "wf-1", &models.ExecutionArgs{
		WorkflowVariables: map[string]string{"environment": "prod"},
	})
	require.NoError(t, err)
}

func TestTriggerOrchestrationExecution_TemplatizedStartsImmediately(t *testing.T) {
	f := newFixture(t)
	f.saveWorkflow(t, &models.Workflow{ID: "wf-1", AppID: "app-1", Name: "deploy", Valid: true, Templatized: true})

	f.executor.On("Queue", mock.Anything, mock.Anything).Return("handle-1", nil)
	f.executor.On("StartExecution", mock.Anything, mock.Anything).Return(nil)

	run, err := f.service.TriggerOrchestrationExecution(context.Background(), "app-1", "wf-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusRunning, run.Status)
	require.NotNil(t, run.StartTs)

	assert.Equal(t, models.StatusRunning, f.reload(t, "app-1", run.ID).Status)
	f.executor.AssertExpectations(t)
}

func TestTriggerPipelineExecution_StartsImmediately(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Pipelines().Save(context.Background(), &models.Pipeline{
		ID:    "pipe-1",
		AppID: "app-1",
		Name:  "release",
	}))

	f.executor.On("Queue", mock.Anything, mock.Anything).Return("handle-1", nil)
	f.executor.On("StartExecution", mock.Anything, mock.Anything).Return(nil)

	run, err := f.service.TriggerPipelineExecution(context.Background(), "app-1", "pipe-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusRunning, run.Status)
	assert.Equal(t, models.WorkflowTypePipeline, run.WorkflowType)
	require.NotNil(t, run.PipelineSummary)
	assert.Equal(t, "release", run.PipelineSummary.PipelineName)
	f.executor.AssertExpectations(t)
}

func TestTriggerSimpleExecution_RefusedStartMarksError(t *testing.T) {
	f := newFixture(t)

	f.executor.On("Queue", mock.Anything, mock.Anything).Return("handle-1", nil)
	f.executor.On("StartExecution", mock.Anything, mock.Anything).Return(errors.New("no capacity"))

	_, err := f.service.TriggerSimpleExecution(context.Background(), "app-1", "wf-1", &models.ExecutionArgs{CommandName: "Restart"})
	require.Error(t, err)

	runs, listErr := f.service.ListExecutions(context.Background(), listOptions("app-1"))
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	assert.Equal(t, models.StatusError, runs[0].Status)
}

func TestTriggerSimpleExecution_SnapshotsArtifacts(t *testing.T) {
	f := newFixture(t)

	f.artifacts.On("Resolve", mock.Anything, "app-1", []string{"art-1"}).Return([]*models.Artifact{
		{ID: "art-1", DisplayName: "web:1.4.2", ServiceIDs: []string{"svc-web"}},
	}, nil)
	f.executor.On("Queue", mock.Anything, mock.Anything).Return("handle-1", nil)
	f.executor.On("StartExecution", mock.Anything, mock.Anything).Return(nil)

	run, err := f.service.TriggerSimpleExecution(context.Background(), "app-1", "wf-1", &models.ExecutionArgs{
		CommandName: "Deploy",
		ArtifactIDs: []string{"art-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"art-1": "web:1.4.2"}, run.ExecutionArgs.ArtifactIDNames)
	assert.Equal(t, []string{"svc-web"}, run.ServiceIDs)
}

func TestTriggerSimpleExecution_UnresolvedArtifactRejectsTrigger(t *testing.T) {
	f := newFixture(t)

	f.artifacts.On("Resolve", mock.Anything, "app-1", []string{"art-gone"}).Return([]*models.Artifact{}, nil)

	_, err := f.service.TriggerSimpleExecution(context.Background(), "app-1", "wf-1", &models.ExecutionArgs{
		ArtifactIDs: []string{"art-gone"},
	})
	assert.ErrorIs(t, err, ErrArtifactNotResolved)
	f.executor.AssertNotCalled(t, "Queue", mock.Anything, mock.Anything)
}

func TestTriggerSimpleExecution_SnapshotsServiceInstances(t *testing.T) {
	f := newFixture(t)

	f.services.On("Resolve", mock.Anything, "app-1", []string{"si-1", "si-2"}).Return([]*models.ServiceInstance{
		{ID: "si-1", DisplayName: "web-0 (prod)", ServiceID: "svc-web", EnvID: "env-prod"},
		{ID: "si-2", DisplayName: "web-1 (prod)", ServiceID: "svc-web", EnvID: "env-prod"},
	}, nil)
	f.executor.On("Queue", mock.Anything, mock.Anything).Return("handle-1", nil)
	f.executor.On("StartExecution", mock.Anything, mock.Anything).Return(nil)

	run, err := f.service.TriggerSimpleExecution(context.Background(), "app-1", "wf-1", &models.ExecutionArgs{
		CommandName:        "Restart",
		ServiceInstanceIDs: []string{"si-1", "si-2"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"si-1": "web-0 (prod)", "si-2": "web-1 (prod)"},
		run.ExecutionArgs.ServiceInstanceIDNames)
	assert.Equal(t, []string{"svc-web"}, run.ServiceIDs)
	assert.Equal(t, []string{"env-prod"}, run.EnvIDs)
}

func TestTriggerSimpleExecution_UnresolvedServiceInstanceRejectsTrigger(t *testing.T) {
	f := newFixture(t)

	f.services.On("Resolve", mock.Anything, "app-1", []string{"si-gone"}).Return([]*models.ServiceInstance{}, nil)

	_, err := f.service.TriggerSimpleExecution(context.Background(), "app-1", "wf-1", &models.ExecutionArgs{
		ServiceInstanceIDs: []string{"si-gone"},
	})
	assert.ErrorIs(t, err, ErrServiceInstanceNotResolved)
	f.executor.AssertNotCalled(t, "Queue", mock.Anything, mock.Anything)
}

func TestStartQueuedExecution_PromotesOldestQueuedRun(t *testing.T) {
	f := newFixture(t)

	oldest := f.saveExecution(t, &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusQueued,
		CreatedAt:    *ts(0),
	})
	newer := f.saveExecution(t, &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusQueued,
		CreatedAt:    *ts(5),
	})

	f.executor.On("StartQueuedExecution", mock.Anything, "app-1", oldest.ID).Return(true, nil)

	started, err := f.service.StartQueuedExecution(context.Background(), "app-1", "wf-1")
	require.NoError(t, err)
	assert.True(t, started)

	assert.Equal(t, models.StatusRunning, f.reload(t, "app-1", oldest.ID).Status)
	assert.Equal(t, models.StatusQueued, f.reload(t, "app-1", newer.ID).Status)
	f.executor.AssertExpectations(t)
}

func TestStartQueuedExecution_SkipsWhileAnotherRunIsActive(t *testing.T) {
	f := newFixture(t)

	f.saveExecution(t, &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusRunning,
		CreatedAt:    *ts(0),
	})
	queued := f.saveExecution(t, &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusQueued,
		CreatedAt:    *ts(5),
	})

	started, err := f.service.StartQueuedExecution(context.Background(), "app-1", "wf-1")
	require.NoError(t, err)
	assert.False(t, started)

	assert.Equal(t, models.StatusQueued, f.reload(t, "app-1", queued.ID).Status)
	f.executor.AssertNotCalled(t, "StartQueuedExecution", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartQueuedExecution_NothingQueued(t *testing.T) {
	f := newFixture(t)

	started, err := f.service.StartQueuedExecution(context.Background(), "app-1", "wf-1")
	require.NoError(t, err)
	assert.False(t, started)
}

func TestStartQueuedExecution_ExecutorRefusalMarksError(t *testing.T) {
	f := newFixture(t)

	queued := f.saveExecution(t, &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusQueued,
		CreatedAt:    *ts(0),
	})

	f.executor.On("StartQueuedExecution", mock.Anything, "app-1", queued.ID).Return(false, nil)

	started, err := f.service.StartQueuedExecution(context.Background(), "app-1", "wf-1")
	require.NoError(t, err)
	assert.False(t, started)

	assert.Equal(t, models.StatusError, f.reload(t, "app-1", queued.ID).Status)
}
