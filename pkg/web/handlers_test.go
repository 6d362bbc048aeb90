package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/runwayci/runway/pkg/execution"
	"github.com/runwayci/runway/pkg/interrupts"
	"github.com/runwayci/runway/pkg/locker"
	"github.com/runwayci/runway/pkg/mocks"
	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/persistence/file"
	"github.com/runwayci/runway/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app      *fiber.App
	store    *file.Persistence
	executor *mocks.MockExecutor
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	executor := &mocks.MockExecutor{}
	notifier := &mocks.MockInterruptNotifier{}
	notifier.On("Register", mock.Anything, mock.Anything).Return(nil)
	logger := slog.Default()

	service := execution.NewService(execution.Config{
		Persistence: store,
		Executor:    executor,
		Interrupts:  interrupts.NewManager(store, notifier, logger),
		Locker:      locker.NewMemoryLocker(),
		Logger:      logger,
	})

	handlers := web.NewAPIHandlers(service, store, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	a := app.Group("/applications/:appId")
	e := a.Group("/executions")
	e.Post("/", handlers.TriggerExecution)
	e.Get("/", handlers.ListExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/breakdown", handlers.GetExecutionBreakdown)
	e.Get("/:id/approval", handlers.GetWaitingApproval)
	e.Post("/:id/interrupts", handlers.RegisterInterrupt)
	e.Put("/:id/notes", handlers.UpdateNotes)
	a.Get("/workflows/:workflowId/running", handlers.ExecutionsRunning)
	app.Get("/health", handlers.HealthCheck)

	return &testEnv{app: app, store: store, executor: executor}
}

func (e *testEnv) request(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()

	var body []byte

	switch v := payload.(type) {
	case nil:
	case string:
		body = []byte(v)
	default:
		var err error

		body, err = json.Marshal(v)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out T

	require.NoError(t, json.Unmarshal(raw, &out))

	return out
}

func TestAPIHandlers_TriggerExecution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name: "queues an orchestration run",
			requestBody: web.TriggerExecutionRequest{
				WorkflowType:    models.WorkflowTypeOrchestration,
				OrchestrationID: "wf-1",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "missing workflow type",
			requestBody: web.TriggerExecutionRequest{
				OrchestrationID: "wf-1",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "pipeline without pipeline id",
			requestBody: web.TriggerExecutionRequest{
				WorkflowType: models.WorkflowTypePipeline,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown workflow",
			requestBody: web.TriggerExecutionRequest{
				WorkflowType:    models.WorkflowTypeOrchestration,
				OrchestrationID: "wf-missing",
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid JSON",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t)
			require.NoError(t, env.store.Workflows().Save(context.Background(), &models.Workflow{
				ID: "wf-1", AppID: "app-1", Name: "deploy", Valid: true,
			}))

			resp := env.request(t, http.MethodPost, "/applications/app-1/executions/", tt.requestBody)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated {
				run := decodeBody[models.WorkflowExecution](t, resp)
				assert.NotEmpty(t, run.ID)
				assert.Equal(t, models.StatusQueued, run.Status)
			}
		})
	}
}

func TestAPIHandlers_TriggerExecution_SecondQueuedConflicts(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	require.NoError(t, env.store.Workflows().Save(context.Background(), &models.Workflow{
		ID: "wf-1", AppID: "app-1", Name: "deploy", Valid: true,
	}))

	body := web.TriggerExecutionRequest{
		WorkflowType:    models.WorkflowTypeOrchestration,
		OrchestrationID: "wf-1",
	}

	first := env.request(t, http.MethodPost, "/applications/app-1/executions/", body)

	defer func() { _ = first.Body.Close() }()

	require.Equal(t, http.StatusCreated, first.StatusCode)

	second := env.request(t, http.MethodPost, "/applications/app-1/executions/", body)

	defer func() { _ = second.Body.Close() }()

	assert.Equal(t, http.StatusConflict, second.StatusCode)
}

func TestAPIHandlers_GetExecution(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	run := &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusRunning,
	}
	require.NoError(t, env.store.Executions().Save(context.Background(), run))
	require.NoError(t, env.store.Instances().Save(context.Background(), &models.StateExecutionInstance{
		ID:          "i-1",
		AppID:       "app-1",
		ExecutionID: run.ID,
		StateType:   models.StateTypeCommand,
		DisplayName: "Install",
		Status:      models.StatusRunning,
	}))

	resp := env.request(t, http.MethodGet, "/applications/app-1/executions/"+run.ID+"?include_graph=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	details := decodeBody[models.WorkflowExecution](t, resp)
	require.NotNil(t, details.ExecutionNode)
	assert.Equal(t, "Install", details.ExecutionNode.Name)

	missing := env.request(t, http.MethodGet, "/applications/app-1/executions/nope", nil)

	defer func() { _ = missing.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	badFlag := env.request(t, http.MethodGet, "/applications/app-1/executions/"+run.ID+"?include_graph=maybe", nil)

	defer func() { _ = badFlag.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, badFlag.StatusCode)
}

func TestAPIHandlers_ListExecutions(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	for _, status := range []models.ExecutionStatus{models.StatusSuccess, models.StatusRunning} {
		require.NoError(t, env.store.Executions().Save(context.Background(), &models.WorkflowExecution{
			AppID:        "app-1",
			WorkflowID:   "wf-1",
			WorkflowType: models.WorkflowTypeOrchestration,
			Status:       status,
		}))
	}

	resp := env.request(t, http.MethodGet, "/applications/app-1/executions/?status=RUNNING", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody[struct {
		Executions []models.WorkflowExecution `json:"executions"`
	}](t, resp)
	require.Len(t, payload.Executions, 1)
	assert.Equal(t, models.StatusRunning, payload.Executions[0].Status)
}

func TestAPIHandlers_GetExecutionBreakdown(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	run := &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusRunning,
	}
	require.NoError(t, env.store.Executions().Save(context.Background(), run))
	require.NoError(t, env.store.Instances().Save(context.Background(), &models.StateExecutionInstance{
		ID:          "i-1",
		AppID:       "app-1",
		ExecutionID: run.ID,
		StateType:   models.StateTypePhase,
		DisplayName: "Phase 1",
		Status:      models.StatusSuccess,
	}))

	resp := env.request(t, http.MethodGet, "/applications/app-1/executions/"+run.ID+"/breakdown", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	breakdown := decodeBody[web.BreakdownResponse](t, resp)
	assert.Equal(t, run.ID, breakdown.ExecutionID)
	assert.Equal(t, 1, breakdown.Total)
	require.NotNil(t, breakdown.Breakdown)
	assert.Equal(t, 1, breakdown.Breakdown.Success)
}

func TestAPIHandlers_GetWaitingApproval(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	require.NoError(t, env.store.Pipelines().Save(context.Background(), &models.Pipeline{
		ID:    "pipe-1",
		AppID: "app-1",
		Name:  "release",
		Stages: []models.PipelineStage{
			{Elements: []models.PipelineStageElement{
				{Name: "Approve", Type: models.StateTypeApproval},
			}},
		},
	}))

	run := &models.WorkflowExecution{
		AppID:           "app-1",
		WorkflowID:      "pipe-1",
		WorkflowType:    models.WorkflowTypePipeline,
		Status:          models.StatusRunning,
		PipelineSummary: &models.PipelineSummary{PipelineID: "pipe-1", PipelineName: "release"},
	}
	require.NoError(t, env.store.Executions().Save(context.Background(), run))
	require.NoError(t, env.store.Instances().Save(context.Background(), &models.StateExecutionInstance{
		ID:          "i-approve",
		AppID:       "app-1",
		ExecutionID: run.ID,
		StateType:   models.StateTypeApproval,
		DisplayName: "Approve",
		Status:      models.StatusPaused,
		ExecutionData: &models.ApprovalExecutionData{
			BaseExecutionData: models.BaseExecutionData{Status: models.StatusPaused},
			ApprovalID:        "appr-1",
		},
	}))

	resp := env.request(t, http.MethodGet, "/applications/app-1/executions/"+run.ID+"/approval", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	approval := decodeBody[models.ApprovalExecutionData](t, resp)
	assert.Equal(t, "appr-1", approval.ApprovalID)

	// A run without a pending approval has nothing to serve.
	other := &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusRunning,
	}
	require.NoError(t, env.store.Executions().Save(context.Background(), other))

	missing := env.request(t, http.MethodGet, "/applications/app-1/executions/"+other.ID+"/approval", nil)

	defer func() { _ = missing.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestAPIHandlers_RegisterInterrupt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		runStatus      models.ExecutionStatus
		requestBody    any
		expectedStatus int
	}{
		{
			name:           "pauses a running run",
			runStatus:      models.StatusRunning,
			requestBody:    web.RegisterInterruptRequest{Type: models.InterruptPause},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "conflicts on a finished run",
			runStatus:      models.StatusSuccess,
			requestBody:    web.RegisterInterruptRequest{Type: models.InterruptAbort},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "rejects an unknown type",
			runStatus:      models.StatusRunning,
			requestBody:    web.RegisterInterruptRequest{Type: "HALT"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t)

			run := &models.WorkflowExecution{
				AppID:        "app-1",
				WorkflowID:   "wf-1",
				WorkflowType: models.WorkflowTypeOrchestration,
				Status:       tt.runStatus,
			}
			require.NoError(t, env.store.Executions().Save(context.Background(), run))

			resp := env.request(t, http.MethodPost, "/applications/app-1/executions/"+run.ID+"/interrupts", tt.requestBody)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestAPIHandlers_UpdateNotes(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	run := &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusRunning,
	}
	require.NoError(t, env.store.Executions().Save(context.Background(), run))

	resp := env.request(t, http.MethodPut, "/applications/app-1/executions/"+run.ID+"/notes",
		web.UpdateNotesRequest{Notes: "redeploy after hotfix"})

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	stored, err := env.store.Executions().GetByID(context.Background(), "app-1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, "redeploy after hotfix", stored.Notes)
}

func TestAPIHandlers_ExecutionsRunning(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	require.NoError(t, env.store.Executions().Save(context.Background(), &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusRunning,
	}))

	resp := env.request(t, http.MethodGet, "/applications/app-1/workflows/wf-1/running", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody[struct {
		Running bool `json:"running"`
	}](t, resp)
	assert.True(t, payload.Running)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/health", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
