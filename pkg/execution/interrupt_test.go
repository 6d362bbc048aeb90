package execution

import (
	"context"
	"testing"

	"github.com/runwayci/runway/pkg/interrupts"
	"github.com/runwayci/runway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTriggerExecutionInterrupt_DirectOnOrchestrationRun(t *testing.T) {
	f := newFixture(t)

	run := f.saveExecution(t, &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusRunning,
	})

	f.notifier.On("Register", mock.Anything, mock.Anything).Return(nil)

	err := f.service.TriggerExecutionInterrupt(context.Background(), &models.ExecutionInterrupt{
		AppID:       "app-1",
		ExecutionID: run.ID,
		Type:        models.InterruptPause,
	})
	require.NoError(t, err)

	registered, err := f.store.Interrupts().ListByExecution(context.Background(), "app-1", run.ID)
	require.NoError(t, err)
	require.Len(t, registered, 1)
	assert.Equal(t, models.InterruptPause, registered[0].Type)
	f.notifier.AssertNumberOfCalls(t, "Register", 1)
}

func TestTriggerExecutionInterrupt_RejectsFinishedRun(t *testing.T) {
	f := newFixture(t)

	run := f.saveExecution(t, &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-1",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusSuccess,
	})

	err := f.service.TriggerExecutionInterrupt(context.Background(), &models.ExecutionInterrupt{
		AppID:       "app-1",
		ExecutionID: run.ID,
		Type:        models.InterruptAbort,
	})
	assert.ErrorIs(t, err, interrupts.ErrInvalidState)
}

func TestTriggerExecutionInterrupt_RejectsSingleRunTypeOnPipeline(t *testing.T) {
	f := newFixture(t)

	run := f.saveExecution(t, &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "pipe-1",
		WorkflowType: models.WorkflowTypePipeline,
		Status:       models.StatusRunning,
	})

	err := f.service.TriggerExecutionInterrupt(context.Background(), &models.ExecutionInterrupt{
		AppID:       "app-1",
		ExecutionID: run.ID,
		Type:        models.InterruptAbort,
	})
	assert.ErrorIs(t, err, ErrInvalidPipelineInterrupt)
}

func TestTriggerExecutionInterrupt_PipelineFanOutSkipsFinishedNestedRuns(t *testing.T) {
	f := newFixture(t)

	pipelineRun := f.saveExecution(t, &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "pipe-1",
		WorkflowType: models.WorkflowTypePipeline,
		Status:       models.StatusRunning,
	})
	activeNested := f.saveExecution(t, &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-prod",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusRunning,
	})
	finishedNested := f.saveExecution(t, &models.WorkflowExecution{
		AppID:        "app-1",
		WorkflowID:   "wf-qa",
		WorkflowType: models.WorkflowTypeOrchestration,
		Status:       models.StatusSuccess,
	})

	f.saveInstance(t, &models.StateExecutionInstance{
		ID:            "i-prod",
		AppID:         "app-1",
		ExecutionID:   pipelineRun.ID,
		StateType:     models.StateTypeEnvState,
		DisplayName:   "Deploy Prod",
		Status:        models.StatusRunning,
		ExecutionData: &models.EnvStateExecutionData{ExecutionID: activeNested.ID},
	})
	f.saveInstance(t, &models.StateExecutionInstance{
		ID:            "i-qa",
		AppID:         "app-1",
		ExecutionID:   pipelineRun.ID,
		StateType:     models.StateTypeEnvState,
		DisplayName:   "Deploy QA",
		Status:        models.StatusSuccess,
		ExecutionData: &models.EnvStateExecutionData{ExecutionID: finishedNested.ID},
	})

	f.notifier.On("Register", mock.Anything, mock.Anything).Return(nil)

	err := f.service.TriggerExecutionInterrupt(context.Background(), &models.ExecutionInterrupt{
		AppID:       "app-1",
		ExecutionID: pipelineRun.ID,
		Type:        models.InterruptAbortAll,
	})
	require.NoError(t, err)

	pipelineInterrupts, err := f.store.Interrupts().ListByExecution(context.Background(), "app-1", pipelineRun.ID)
	require.NoError(t, err)
	assert.Len(t, pipelineInterrupts, 1)

	nestedInterrupts, err := f.store.Interrupts().ListByExecution(context.Background(), "app-1", activeNested.ID)
	require.NoError(t, err)
	require.Len(t, nestedInterrupts, 1)
	assert.Equal(t, models.InterruptAbortAll, nestedInterrupts[0].Type)

	finishedInterrupts, err := f.store.Interrupts().ListByExecution(context.Background(), "app-1", finishedNested.ID)
	require.NoError(t, err)
	assert.Empty(t, finishedInterrupts)

	f.notifier.AssertNumberOfCalls(t, "Register", 2)
}
