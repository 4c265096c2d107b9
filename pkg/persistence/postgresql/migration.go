package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions and their ordered steps
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				entity_type VARCHAR(50) NOT NULL,
				trigger_type VARCHAR(50) NOT NULL,
				trigger_config JSONB NOT NULL DEFAULT '{}',
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_trigger ON workflows(entity_type, trigger_type) WHERE is_active;
			CREATE INDEX idx_workflows_time_based ON workflows(trigger_type) WHERE is_active;

			CREATE TABLE workflow_steps (
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id UUID NOT NULL,
				position INT NOT NULL CHECK (position >= 0),
				kind VARCHAR(20) NOT NULL CHECK (kind IN ('condition', 'action', 'delay')),
				config JSONB NOT NULL DEFAULT '{}',
				PRIMARY KEY (workflow_id, id),
				UNIQUE (workflow_id, position)
			);
		`,
		2: `
			-- Run execution log; the step snapshot keeps in-flight runs
			-- isolated from definition updates
			CREATE TABLE workflow_runs (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				entity_type VARCHAR(50) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('running', 'completed', 'failed', 'waiting')),
				cursor_position INT NOT NULL DEFAULT 0,
				steps JSONB NOT NULL DEFAULT '[]',
				context JSONB NOT NULL DEFAULT '{}',
				trace JSONB NOT NULL DEFAULT '[]',
				error_message TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				resume_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_runs_workflow_id ON workflow_runs(workflow_id);
			CREATE INDEX idx_workflow_runs_due ON workflow_runs(resume_at) WHERE status = 'waiting';
		`,
		3: `
			-- Webhook subscriptions and their delivery audit trail
			CREATE TABLE webhooks (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				url TEXT NOT NULL,
				secret TEXT NOT NULL,
				events JSONB NOT NULL DEFAULT '[]',
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE TABLE webhook_deliveries (
				id UUID PRIMARY KEY,
				webhook_id UUID NOT NULL REFERENCES webhooks(id) ON DELETE CASCADE,
				event VARCHAR(255) NOT NULL,
				payload JSONB NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'success', 'failed')),
				status_code INT,
				response_body TEXT,
				attempts INT NOT NULL DEFAULT 0 CHECK (attempts >= 0 AND attempts <= 5),
				next_retry_at TIMESTAMP WITH TIME ZONE,
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_webhook_deliveries_webhook_id ON webhook_deliveries(webhook_id);
			CREATE INDEX idx_webhook_deliveries_due ON webhook_deliveries(next_retry_at) WHERE status = 'failed';
		`,
	}
}
