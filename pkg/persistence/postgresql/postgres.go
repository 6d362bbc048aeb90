// Package postgresql provides PostgreSQL persistence for runs, instances,
// workflows and pipelines.
//
// Entities are stored as JSONB documents alongside the columns the queries
// filter and guard on (status, version, timestamps). The columns are
// authoritative for those fields and copied back into the document on load.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // database/sql driver
	"github.com/runwayci/runway/pkg/persistence"
	"github.com/runwayci/runway/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	executionRepo *ExecutionRepository
	instanceRepo  *InstanceRepository
	workflowRepo  *WorkflowRepository
	pipelineRepo  *PipelineRepository
	interruptRepo *InterruptRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	postgres := &Persistence{
		db:     database,
		logger: logger,
	}
	postgres.executionRepo = &ExecutionRepository{db: database, logger: logger}
	postgres.instanceRepo = &InstanceRepository{db: database, logger: logger}
	postgres.workflowRepo = &WorkflowRepository{db: database, logger: logger}
	postgres.pipelineRepo = &PipelineRepository{db: database, logger: logger}
	postgres.interruptRepo = &InterruptRepository{db: database, logger: logger}

	return postgres, nil
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) Instances() persistence.InstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) Pipelines() persistence.PipelineRepository {
	return p.pipelineRepo
}

func (p *Persistence) Interrupts() persistence.InterruptRepository {
	return p.interruptRepo
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}
