package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				definition JSONB NOT NULL DEFAULT '{}',
				execution_count BIGINT NOT NULL DEFAULT 0,
				last_executed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_owner_id ON workflows(owner_id);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			CREATE TABLE executions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				user_id TEXT NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed')),
				input_data JSONB NOT NULL DEFAULT '{}',
				output_data JSONB,
				logs JSONB NOT NULL DEFAULT '[]',
				error TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workflow_started ON executions(workflow_id, started_at DESC);
			CREATE INDEX idx_executions_status ON executions(status);
		`,
		2: `
			-- Migration 2: idempotent run requests
			ALTER TABLE executions ADD COLUMN idempotency_key TEXT;

			CREATE UNIQUE INDEX idx_executions_idempotency_key
				ON executions(workflow_id, idempotency_key)
				WHERE idempotency_key IS NOT NULL;
		`,
	}
}
