package corestore

// schemaStatements is executed in order at Open. Every statement is
// CREATE TABLE/INDEX IF NOT EXISTS so repeated opens of the same database
// file are safe, matching the teacher's schema-on-open idiom.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		mandate TEXT NOT NULL DEFAULT '',
		sector TEXT NOT NULL DEFAULT '',
		region_scope TEXT NOT NULL DEFAULT '',
		config_json TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'planned',
		created_by TEXT NOT NULL DEFAULT '',
		started_at TEXT,
		finished_at TEXT,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_runs_tenant ON runs(tenant, created_at);`,

	`CREATE TABLE IF NOT EXISTS run_steps (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		step_key TEXT NOT NULL,
		step_order INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempt_count INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 5,
		next_retry_at TEXT,
		input_hash TEXT NOT NULL DEFAULT '',
		input_json TEXT NOT NULL DEFAULT '{}',
		output_json TEXT NOT NULL DEFAULT '{}',
		last_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(run_id, step_key)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_run_steps_run_order ON run_steps(run_id, step_order);`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		job_type TEXT NOT NULL,
		params_hash TEXT NOT NULL,
		params_json TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'queued',
		attempt_count INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 5,
		next_retry_at TEXT,
		locked_at TEXT,
		locked_by TEXT NOT NULL DEFAULT '',
		cancel_requested INTEGER NOT NULL DEFAULT 0,
		progress_json TEXT NOT NULL DEFAULT '{}',
		error_json TEXT NOT NULL DEFAULT '{}',
		started_at TEXT,
		finished_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_claimable ON jobs(status, locked_at);`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_active_unique ON jobs(tenant, run_id, job_type, status);`,

	`CREATE TABLE IF NOT EXISTS source_documents (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		source_type TEXT NOT NULL,
		url_raw TEXT NOT NULL DEFAULT '',
		url_normalized TEXT NOT NULL DEFAULT '',
		canonical_final_url TEXT NOT NULL DEFAULT '',
		mime_type TEXT NOT NULL DEFAULT '',
		content_hash TEXT,
		content_bytes BLOB,
		content_text TEXT NOT NULL DEFAULT '',
		http_status_code INTEGER NOT NULL DEFAULT 0,
		http_error_message TEXT NOT NULL DEFAULT '',
		http_final_url TEXT NOT NULL DEFAULT '',
		http_headers_json TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'new',
		attempt_count INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 5,
		next_retry_at TEXT,
		canonical_source_id TEXT,
		meta_json TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_source_documents_hash ON source_documents(tenant, run_id, content_hash) WHERE content_hash IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_source_documents_run ON source_documents(run_id, url_normalized);`,

	`CREATE TABLE IF NOT EXISTS prospects (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		mandate TEXT NOT NULL DEFAULT '',
		name_raw TEXT NOT NULL,
		name_normalized TEXT NOT NULL,
		website_url TEXT NOT NULL DEFAULT '',
		hq_country TEXT NOT NULL DEFAULT '',
		hq_city TEXT NOT NULL DEFAULT '',
		sector TEXT NOT NULL DEFAULT '',
		subsector TEXT NOT NULL DEFAULT '',
		relevance_score REAL NOT NULL DEFAULT 0,
		evidence_score REAL NOT NULL DEFAULT 0,
		confidence_score REAL NOT NULL DEFAULT 0,
		discovered_by TEXT NOT NULL DEFAULT 'internal',
		review_status TEXT NOT NULL DEFAULT 'new',
		exec_search_enabled INTEGER NOT NULL DEFAULT 0,
		manual_priority INTEGER NOT NULL DEFAULT 0,
		is_pinned INTEGER NOT NULL DEFAULT 0,
		verification_status TEXT NOT NULL DEFAULT 'unverified',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_prospects_canonical ON prospects(tenant, run_id, name_normalized);`,

	`CREATE TABLE IF NOT EXISTS prospect_evidence (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		prospect_id TEXT NOT NULL REFERENCES prospects(id) ON DELETE CASCADE,
		source_type TEXT NOT NULL DEFAULT '',
		source_name TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		source_document_id TEXT,
		source_content_hash TEXT NOT NULL DEFAULT '',
		raw_snippet TEXT NOT NULL DEFAULT '',
		evidence_weight REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_prospect_evidence_prospect ON prospect_evidence(prospect_id);`,

	`CREATE TABLE IF NOT EXISTS executives (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		company_prospect_id TEXT NOT NULL REFERENCES prospects(id) ON DELETE CASCADE,
		name_raw TEXT NOT NULL DEFAULT '',
		name_normalized TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		profile_url TEXT NOT NULL DEFAULT '',
		linkedin_url TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 0,
		discovered_by TEXT NOT NULL DEFAULT 'internal',
		review_status TEXT NOT NULL DEFAULT 'new',
		verification_status TEXT NOT NULL DEFAULT 'unverified',
		source_label TEXT NOT NULL DEFAULT '',
		source_document_id TEXT,
		candidate_id TEXT NOT NULL DEFAULT '',
		contact_id TEXT NOT NULL DEFAULT '',
		assignment_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_executives_company ON executives(company_prospect_id);`,
	`CREATE INDEX IF NOT EXISTS idx_executives_run ON executives(run_id, created_at, id);`,

	`CREATE TABLE IF NOT EXISTS executive_evidence (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		executive_id TEXT NOT NULL REFERENCES executives(id) ON DELETE CASCADE,
		source_type TEXT NOT NULL DEFAULT '',
		source_name TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		source_document_id TEXT,
		source_content_hash TEXT NOT NULL DEFAULT '',
		raw_snippet TEXT NOT NULL DEFAULT '',
		evidence_weight REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_executive_evidence_exec ON executive_evidence(executive_id);`,

	`CREATE TABLE IF NOT EXISTS executive_merge_decisions (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		company_prospect_id TEXT NOT NULL REFERENCES prospects(id) ON DELETE CASCADE,
		left_executive_id TEXT NOT NULL REFERENCES executives(id) ON DELETE CASCADE,
		right_executive_id TEXT NOT NULL REFERENCES executives(id) ON DELETE CASCADE,
		decision_type TEXT NOT NULL,
		evidence_refs_json TEXT NOT NULL DEFAULT '[]',
		resolution_hash TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_merge_decisions_run ON executive_merge_decisions(run_id, company_prospect_id);`,

	`CREATE TABLE IF NOT EXISTS enrichment_records (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		provider TEXT NOT NULL,
		purpose TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		input_scope_hash TEXT NOT NULL,
		content_hash TEXT,
		status TEXT NOT NULL DEFAULT 'succeeded',
		source_document_id TEXT,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_enrichment_lookup ON enrichment_records(tenant, run_id, provider, purpose, target_type, target_id, input_scope_hash);`,

	`CREATE TABLE IF NOT EXISTS export_packs (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		kind TEXT NOT NULL DEFAULT 'run_export',
		storage_pointer TEXT NOT NULL,
		sha256 TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_export_packs_listing ON export_packs(tenant, run_id, created_at DESC, id DESC);`,
}
