package postgresql

// migrations returns the PostgreSQL schema migrations keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS executions (
				id TEXT PRIMARY KEY,
				app_id TEXT NOT NULL,
				workflow_id TEXT NOT NULL,
				workflow_type TEXT NOT NULL,
				status TEXT NOT NULL,
				version INTEGER NOT NULL DEFAULT 0,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				start_ts TIMESTAMP WITH TIME ZONE,
				end_ts TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_executions_app_workflow_status
				ON executions (app_id, workflow_id, status);

			CREATE INDEX IF NOT EXISTS idx_executions_app_created
				ON executions (app_id, created_at DESC);

			CREATE TABLE IF NOT EXISTS state_execution_instances (
				id TEXT PRIMARY KEY,
				app_id TEXT NOT NULL,
				execution_id TEXT NOT NULL,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_instances_app_execution
				ON state_execution_instances (app_id, execution_id);

			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				app_id TEXT NOT NULL,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_app
				ON workflows (app_id);

			CREATE TABLE IF NOT EXISTS pipelines (
				id TEXT PRIMARY KEY,
				app_id TEXT NOT NULL,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_pipelines_app
				ON pipelines (app_id);

			CREATE TABLE IF NOT EXISTS execution_interrupts (
				id TEXT PRIMARY KEY,
				app_id TEXT NOT NULL,
				execution_id TEXT NOT NULL,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_interrupts_app_execution
				ON execution_interrupts (app_id, execution_id);
		`,
	}
}
