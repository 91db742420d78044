package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				owner VARCHAR(255),
				trigger_config JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_owner ON workflows(owner);

			CREATE TABLE workflow_actions (
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				stage_index INT NOT NULL,
				handler_kind VARCHAR(255) NOT NULL,
				parameters JSONB NOT NULL DEFAULT '{}',
				PRIMARY KEY (workflow_id, id),
				UNIQUE (workflow_id, stage_index)
			);

			CREATE TABLE runs (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id),
				context JSONB,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_runs_workflow_id ON runs(workflow_id);

			CREATE TABLE run_outbox (
				id UUID PRIMARY KEY,
				run_id UUID NOT NULL REFERENCES runs(id),
				processed BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_run_outbox_unprocessed ON run_outbox(created_at) WHERE NOT processed;
		`,
	}
}
