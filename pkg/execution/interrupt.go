package execution

import (
	"context"
	"fmt"

	"github.com/runwayci/runway/pkg/interrupts"
	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

// TriggerExecutionInterrupt validates and registers an interrupt against a
// run. For pipeline runs only the *_ALL types are accepted; the interrupt is
// registered against the pipeline run itself, then cloned to every
// still-active nested run discovered through env-stage execution data. Clone
// failures are isolated per nested run.
func (s *Service) TriggerExecutionInterrupt(ctx context.Context, interrupt *models.ExecutionInterrupt) (err error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "execution.interrupt",
		attribute.String(otelhelper.AppIDKey, interrupt.AppID),
		attribute.String(otelhelper.ExecutionIDKey, interrupt.ExecutionID),
		attribute.String(otelhelper.InterruptTypeKey, string(interrupt.Type)))

	defer func() {
		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}()

	execution, err := s.persistence.Executions().GetByID(ctx, interrupt.AppID, interrupt.ExecutionID)
	if err != nil {
		return err
	}

	if execution.Status.IsFinal() {
		return fmt.Errorf("%w: %s is %s", interrupts.ErrInvalidState, execution.ID, execution.Status)
	}

	if execution.WorkflowType != models.WorkflowTypePipeline {
		return s.interrupts.Register(ctx, interrupt)
	}

	if !interrupt.Type.IsPipelineScope() {
		return fmt.Errorf("%w: %s", ErrInvalidPipelineInterrupt, interrupt.Type)
	}

	err = s.interrupts.Register(ctx, interrupt)
	if err != nil {
		return err
	}

	instances, err := s.persistence.Instances().ListByExecution(ctx, interrupt.AppID, interrupt.ExecutionID)
	if err != nil {
		return fmt.Errorf("failed to list instances for interrupt fan-out: %w", err)
	}

	for _, instance := range instances {
		data, ok := instance.ExecutionData.(*models.EnvStateExecutionData)
		if !ok || data.ExecutionID == "" {
			continue
		}

		nested, err := s.persistence.Executions().GetByID(ctx, interrupt.AppID, data.ExecutionID)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to load nested execution for interrupt",
				"nested_execution_id", data.ExecutionID, "error", err)

			continue
		}

		if nested.Status.IsFinal() {
			continue
		}

		clone := &models.ExecutionInterrupt{
			AppID:       interrupt.AppID,
			ExecutionID: nested.ID,
			Type:        interrupt.Type,
			Properties:  interrupt.Properties,
			CreatedBy:   interrupt.CreatedBy,
		}

		err = s.interrupts.Register(ctx, clone)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to interrupt nested execution",
				"nested_execution_id", nested.ID, "type", interrupt.Type, "error", err)
		}
	}

	return nil
}
