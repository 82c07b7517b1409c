package postgres

// Schema creates every table the Postgres stores expect. Integration tests
// apply it against a fresh container; production deployments run the same
// statements through their migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS organizations (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	parent_id   TEXT REFERENCES organizations(id),
	name        TEXT NOT NULL,
	level       INT  NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_organizations_tenant ON organizations (tenant_id);
CREATE INDEX IF NOT EXISTS idx_organizations_parent ON organizations (parent_id);

CREATE TABLE IF NOT EXISTS compliance_records (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	organization_id TEXT NOT NULL,
	requirement_id  TEXT NOT NULL,
	title           TEXT NOT NULL,
	status          TEXT NOT NULL,
	due_date        TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_compliance_records_tenant ON compliance_records (tenant_id);
CREATE INDEX IF NOT EXISTS idx_compliance_records_org ON compliance_records (organization_id);

CREATE TABLE IF NOT EXISTS control_measures (
	id                         TEXT PRIMARY KEY,
	record_id                  TEXT NOT NULL REFERENCES compliance_records(id),
	tenant_id                  TEXT NOT NULL,
	name                       TEXT NOT NULL,
	description                TEXT NOT NULL DEFAULT '',
	status                     TEXT NOT NULL,
	from_template              BOOLEAN NOT NULL DEFAULT FALSE,
	is_locked                  BOOLEAN NOT NULL DEFAULT FALSE,
	required_evidence_types    JSONB NOT NULL DEFAULT '[]',
	target_implementation_date TIMESTAMPTZ,
	valid_until                TIMESTAMPTZ,
	created_at                 TIMESTAMPTZ NOT NULL,
	updated_at                 TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_control_measures_record ON control_measures (record_id);

CREATE TABLE IF NOT EXISTS evidence (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	name          TEXT NOT NULL,
	evidence_type TEXT NOT NULL,
	uri           TEXT NOT NULL DEFAULT '',
	review_status TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS evidence_links (
	id          TEXT PRIMARY KEY,
	evidence_id TEXT NOT NULL REFERENCES evidence(id),
	measure_id  TEXT NOT NULL REFERENCES control_measures(id),
	relevance   INT,
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evidence_links_measure ON evidence_links (measure_id) WHERE active;
CREATE INDEX IF NOT EXISTS idx_evidence_links_evidence ON evidence_links (evidence_id);

CREATE TABLE IF NOT EXISTS workflow_definitions (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	version     INT  NOT NULL DEFAULT 1,
	states      JSONB NOT NULL,
	transitions JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workflow_definitions_tenant ON workflow_definitions (tenant_id);

CREATE TABLE IF NOT EXISTS workflow_instances (
	id               TEXT PRIMARY KEY,
	definition_id    TEXT NOT NULL REFERENCES workflow_definitions(id),
	tenant_id        TEXT NOT NULL,
	entity_type      TEXT NOT NULL,
	entity_id        TEXT NOT NULL,
	current_state_id TEXT,
	status           TEXT NOT NULL,
	context          JSONB,
	started_by       TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_workflow_instances_one_active
	ON workflow_instances (entity_type, entity_id, definition_id)
	WHERE status = 'active';

CREATE TABLE IF NOT EXISTS workflow_history (
	id            TEXT PRIMARY KEY,
	instance_id   TEXT NOT NULL REFERENCES workflow_instances(id),
	from_state_id TEXT,
	to_state_id   TEXT NOT NULL,
	transition_id TEXT NOT NULL,
	performed_by  TEXT NOT NULL,
	comment       TEXT NOT NULL DEFAULT '',
	metadata      JSONB,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workflow_history_instance ON workflow_history (instance_id);

CREATE TABLE IF NOT EXISTS workflow_approvals (
	id            TEXT PRIMARY KEY,
	instance_id   TEXT NOT NULL REFERENCES workflow_instances(id),
	transition_id TEXT NOT NULL,
	approver_id   TEXT NOT NULL,
	status        TEXT NOT NULL,
	comment       TEXT NOT NULL DEFAULT '',
	responded_at  TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (instance_id, transition_id, approver_id)
);

CREATE TABLE IF NOT EXISTS role_assignments (
	actor_id   TEXT PRIMARY KEY,
	role       TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_events (
	id            TEXT PRIMARY KEY,
	occurred_at   TIMESTAMPTZ NOT NULL,
	actor_id      TEXT NOT NULL,
	tenant_id     TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	decision      TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT '',
	changes       JSONB
);
CREATE INDEX IF NOT EXISTS idx_audit_events_tenant ON audit_events (tenant_id, occurred_at DESC);
`
