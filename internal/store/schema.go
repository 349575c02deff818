package store

// Schema bootstrap statements, run in order by Migrate. Unique indexes carry
// the idempotence contract: rerunning a batch never duplicates rows.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS planning_applications (
		id BIGSERIAL PRIMARY KEY,
		borough TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		raw_data JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_planning_borough_ref
		ON planning_applications (borough, reference)`,

	`CREATE TABLE IF NOT EXISTS applicants (
		id BIGSERIAL PRIMARY KEY,
		planning_application_id BIGINT NOT NULL REFERENCES planning_applications(id),
		raw_name TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		applicant_type TEXT NOT NULL DEFAULT 'company',
		contact_email TEXT NOT NULL DEFAULT '',
		contact_phone TEXT NOT NULL DEFAULT '',
		contact_address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_applicant_app_name
		ON applicants (planning_application_id, normalized_name)`,

	`CREATE TABLE IF NOT EXISTS companies (
		id BIGSERIAL PRIMARY KEY,
		company_number VARCHAR(20) NOT NULL,
		company_name TEXT NOT NULL DEFAULT '',
		company_status TEXT NOT NULL DEFAULT '',
		company_type TEXT NOT NULL DEFAULT '',
		date_of_creation TEXT NOT NULL DEFAULT '',
		address_line_1 TEXT NOT NULL DEFAULT '',
		address_line_2 TEXT NOT NULL DEFAULT '',
		locality TEXT NOT NULL DEFAULT '',
		postal_code TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_company_number
		ON companies (company_number)`,

	`CREATE TABLE IF NOT EXISTS officers (
		id BIGSERIAL PRIMARY KEY,
		ch_officer_id VARCHAR(100) NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		nationality TEXT NOT NULL DEFAULT '',
		date_of_birth_month INT NOT NULL DEFAULT 0,
		date_of_birth_year INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_officer_ch_id
		ON officers (ch_officer_id)`,

	`CREATE TABLE IF NOT EXISTS appointments (
		id BIGSERIAL PRIMARY KEY,
		officer_id BIGINT NOT NULL REFERENCES officers(id),
		company_id BIGINT NOT NULL REFERENCES companies(id),
		role TEXT NOT NULL DEFAULT '',
		appointed_date TEXT NOT NULL DEFAULT '',
		resigned_date TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointment_unique
		ON appointments (officer_id, company_id, role, appointed_date)`,

	`CREATE TABLE IF NOT EXISTS applicant_company_matches (
		id BIGSERIAL PRIMARY KEY,
		applicant_id BIGINT NOT NULL REFERENCES applicants(id),
		company_id BIGINT NOT NULL REFERENCES companies(id),
		match_method TEXT NOT NULL,
		confidence_score DOUBLE PRECISION NOT NULL,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_match_unique
		ON applicant_company_matches (applicant_id, company_id)`,

	`CREATE TABLE IF NOT EXISTS shared_officer_edges (
		id BIGSERIAL PRIMARY KEY,
		company_a_id BIGINT NOT NULL,
		company_b_id BIGINT NOT NULL,
		shared_officer_count INT NOT NULL,
		last_computed TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_shared_edge_companies
		ON shared_officer_edges (company_a_id, company_b_id)`,

	`CREATE TABLE IF NOT EXISTS contacts (
		id BIGSERIAL PRIMARY KEY,
		company_id BIGINT NOT NULL REFERENCES companies(id),
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL,
		position TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_contact_company_email
		ON contacts (company_id, email)`,

	`CREATE TABLE IF NOT EXISTS automation_runs (
		id BIGSERIAL PRIMARY KEY,
		run_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ,
		duration_seconds INT NOT NULL DEFAULT 0,
		applications_discovered INT NOT NULL DEFAULT 0,
		boroughs_processed INT NOT NULL DEFAULT 0,
		applications_processed INT NOT NULL DEFAULT 0,
		companies_matched INT NOT NULL DEFAULT 0,
		new_companies_created INT NOT NULL DEFAULT 0,
		new_officers_created INT NOT NULL DEFAULT 0,
		contacts_enriched INT NOT NULL DEFAULT 0,
		error_count INT NOT NULL DEFAULT 0,
		error_details TEXT NOT NULL DEFAULT ''
	)`,
}
