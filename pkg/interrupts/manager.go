// Package interrupts registers out-of-band control signals against single
// runs: persist first, then notify the executor.
package interrupts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/persistence"
	"github.com/runwayci/runway/pkg/protocol"
)

var (
	// ErrInvalidState is returned when the target run already reached a
	// final status. The usual cause is an interrupt racing run completion.
	ErrInvalidState = errors.New("execution already finished")

	// ErrUnknownInterruptType is returned for interrupt types the manager
	// does not recognize.
	ErrUnknownInterruptType = errors.New("unknown interrupt type")
)

type Manager struct {
	persistence persistence.Persistence
	notifier    protocol.InterruptManager
	logger      *slog.Logger
}

func NewManager(p persistence.Persistence, notifier protocol.InterruptManager, logger *slog.Logger) *Manager {
	return &Manager{
		persistence: p,
		notifier:    notifier,
		logger:      logger.With("module", "interrupts"),
	}
}

// Register validates, persists and forwards one interrupt targeting a single
// run. Pipeline-scoped fan-out happens upstream; by the time an interrupt
// reaches the manager it names exactly one run.
func (m *Manager) Register(ctx context.Context, interrupt *models.ExecutionInterrupt) error {
	switch interrupt.Type {
	case models.InterruptPause, models.InterruptResume, models.InterruptAbort,
		models.InterruptPauseAll, models.InterruptResumeAll, models.InterruptAbortAll:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownInterruptType, interrupt.Type)
	}

	execution, err := m.persistence.Executions().GetByID(ctx, interrupt.AppID, interrupt.ExecutionID)
	if err != nil {
		return fmt.Errorf("failed to load execution %s: %w", interrupt.ExecutionID, err)
	}

	if execution.Status.IsFinal() {
		return fmt.Errorf("%w: %s is %s", ErrInvalidState, execution.ID, execution.Status)
	}

	err = m.persistence.Interrupts().Save(ctx, interrupt)
	if err != nil {
		return fmt.Errorf("failed to save interrupt: %w", err)
	}

	err = m.notifier.Register(ctx, interrupt)
	if err != nil {
		return fmt.Errorf("failed to notify executor of interrupt %s: %w", interrupt.ID, err)
	}

	m.logger.InfoContext(ctx, "Registered execution interrupt",
		"execution_id", interrupt.ExecutionID, "type", interrupt.Type)

	return nil
}
