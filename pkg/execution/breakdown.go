package execution

import (
	"context"
	"time"

	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/persistence"
	"github.com/runwayci/runway/pkg/status"
)

// refreshBreakdown recomputes the run's per-status instance counts and
// per-service execution summaries and, when no instance is still active,
// settles the run into its final aggregate status. It reports whether the
// run just became final.
//
// A run that is already final with a persisted breakdown is left untouched,
// making repeated refreshes idempotent.
func (s *Service) refreshBreakdown(execution *models.WorkflowExecution, instances map[string]*models.StateExecutionInstance) bool {
	if execution.Status.IsFinal() && execution.Breakdown != nil {
		return false
	}

	if len(instances) == 0 {
		return false
	}

	counts := &models.CountsByStatuses{}

	var (
		topStatuses      []models.ExecutionStatus
		startTimes       []*time.Time
		endTimes         []*time.Time
		serviceSummaries []models.ElementExecutionSummary
	)

	for _, instance := range instances {
		switch {
		case instance.Status == models.StatusSuccess:
			counts.Success++
		case instance.Status.IsFinal():
			counts.Failed++
		case instance.Status == models.StatusNew || instance.Status == models.StatusQueued:
			counts.Queued++
		default:
			counts.InProgress++
		}

		if instance.ParentInstanceID == "" {
			topStatuses = append(topStatuses, instance.Status)
			startTimes = append(startTimes, instance.StartTs)
			endTimes = append(endTimes, instance.EndTs)
		}

		if provider, ok := instance.ExecutionData.(models.ElementSummaryProvider); ok {
			for _, summary := range provider.ElementSummaries() {
				if summary.ContextElement != nil && summary.ContextElement.Type == models.ContextElementTypeService {
					serviceSummaries = append(serviceSummaries, summary)
				}
			}
		}
	}

	execution.Breakdown = counts
	execution.Total = counts.Total()

	if len(serviceSummaries) > 0 {
		execution.ServiceSummaries = serviceSummaries
	}

	wasFinal := execution.Status.IsFinal()

	if aggregated, ok := status.Aggregate(topStatuses); ok && aggregated.IsFinal() {
		execution.Status = aggregated
		execution.EndTs = status.AggregateEndTs(endTimes...)

		if execution.StartTs == nil {
			execution.StartTs = status.AggregateStartTs(startTimes...)
		}
	}

	return !wasFinal && execution.Status.IsFinal()
}

// persistSummary writes the refreshed summary best-effort. A lost optimistic
// write is dropped; the next refresh reconciles.
func (s *Service) persistSummary(ctx context.Context, execution *models.WorkflowExecution) {
	err := s.persistence.Executions().UpdateSummary(ctx, execution)
	if err == nil {
		return
	}

	if persistence.IsConcurrentUpdate(err) {
		s.logger.DebugContext(ctx, "dropped summary update after concurrent write",
			"execution_id", execution.ID)

		return
	}

	s.logger.WarnContext(ctx, "failed to persist execution summary",
		"execution_id", execution.ID, "error", err)
}
