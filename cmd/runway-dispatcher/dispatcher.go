// Package main provides the Runway dispatcher, which promotes queued runs
// when their workflow frees up.
package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/runwayci/runway/pkg/background"
	"github.com/runwayci/runway/pkg/eventbus"
	"github.com/runwayci/runway/pkg/events"
	"github.com/runwayci/runway/pkg/execution"
	"github.com/runwayci/runway/pkg/executor/remote"
	"github.com/runwayci/runway/pkg/interrupts"
	"github.com/runwayci/runway/pkg/locker"
	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/persistence"
)

// reconcileSchedule is the sweep picking up queued runs whose promotion
// event was lost or raced an active run.
const reconcileSchedule = "@every 1m"

type Dispatcher struct {
	id          string
	service     *execution.Service
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	cron        *cron.Cron
	pool        *background.Pool
	logger      *slog.Logger
}

func NewDispatcher(
	id string,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	lock locker.Locker,
	logger *slog.Logger,
) *Dispatcher {
	executor := remote.NewExecutor(eventBus, logger)
	pool := background.NewPool(logger, 4)

	service := execution.NewService(execution.Config{
		Persistence: p,
		Executor:    executor,
		Interrupts:  interrupts.NewManager(p, executor, logger),
		Publisher:   eventBus,
		Locker:      lock,
		Pool:        pool,
		Logger:      logger,
	})

	return &Dispatcher{
		id:          id,
		service:     service,
		persistence: p,
		eventBus:    eventBus,
		pool:        pool,
		logger:      logger.With("module", "runway-dispatcher", "dispatcher_id", id),
	}
}

// Start subscribes to queue lifecycle events and runs the periodic
// reconcile sweep until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	err := errors.Join(
		d.eventBus.Handle(events.ExecutionQueuedEvent, d.handleExecutionQueued),
		d.eventBus.Handle(events.ExecutionFinishedEvent, d.handleExecutionFinished),
	)
	if err != nil {
		return err
	}

	err = d.eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	d.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err = d.cron.AddFunc(reconcileSchedule, func() {
		d.reconcile(context.WithoutCancel(ctx))
	})
	if err != nil {
		return err
	}

	d.cron.Start()
	d.logger.InfoContext(ctx, "Dispatcher started")

	<-ctx.Done()

	cronCtx := d.cron.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err = d.pool.Shutdown(shutdownCtx)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to drain background pool", "error", err)
	}

	d.logger.InfoContext(ctx, "Dispatcher stopped")

	return nil
}

func (d *Dispatcher) handleExecutionQueued(ctx context.Context, event any) error {
	queued, ok := event.(*events.ExecutionQueued)
	if !ok {
		d.logger.WarnContext(ctx, "Dropped event with unexpected payload type")

		return nil
	}

	return d.promote(ctx, queued.AppID, queued.WorkflowID)
}

func (d *Dispatcher) handleExecutionFinished(ctx context.Context, event any) error {
	finished, ok := event.(*events.ExecutionFinished)
	if !ok {
		d.logger.WarnContext(ctx, "Dropped event with unexpected payload type")

		return nil
	}

	return d.promote(ctx, finished.AppID, finished.WorkflowID)
}

func (d *Dispatcher) promote(ctx context.Context, appID, workflowID string) error {
	started, err := d.service.StartQueuedExecution(ctx, appID, workflowID)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to promote queued execution",
			"app_id", appID, "workflow_id", workflowID, "error", err)

		return err
	}

	if started {
		d.logger.InfoContext(ctx, "Promoted queued execution",
			"app_id", appID, "workflow_id", workflowID)
	}

	return nil
}

// reconcile sweeps all queued runs and retries promotion per workflow. The
// per-workflow advisory lock keeps concurrent dispatchers from double
// starting.
func (d *Dispatcher) reconcile(ctx context.Context) {
	queued, err := d.persistence.Executions().List(ctx, persistence.ListExecutionsOptions{
		Statuses:    []models.ExecutionStatus{models.StatusQueued},
		OldestFirst: true,
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to list queued executions", "error", err)

		return
	}

	type target struct{ appID, workflowID string }

	seen := make(map[target]struct{})

	for _, run := range queued {
		key := target{appID: run.AppID, workflowID: run.WorkflowID}
		if _, done := seen[key]; done {
			continue
		}

		seen[key] = struct{}{}

		_ = d.promote(ctx, run.AppID, run.WorkflowID)
	}
}
