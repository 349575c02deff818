package store

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Store is the Postgres record store behind the pipeline and scheduler.
// Write paths are upserts keyed on the unique indexes in schema.go, so
// reprocessing a batch never creates duplicate rows.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates a store over an open database handle.
func New(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Ping verifies the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	s.logger.Info("schema is up to date")
	return nil
}

// SavePlanningApplication inserts the application if the (borough, reference)
// pair is new, otherwise returns the id of the existing row.
func (s *Store) SavePlanningApplication(app PlanningApplication) (int64, error) {
	var id int64
	err := s.db.QueryRow(`
		INSERT INTO planning_applications (borough, reference, description, raw_data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (borough, reference) DO UPDATE SET reference = EXCLUDED.reference
		RETURNING id
	`, app.Borough, app.Reference, app.Description, nullableJSON(app.RawData)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save planning application %s/%s: %w", app.Borough, app.Reference, err)
	}
	return id, nil
}

// PlanningApplicationExists reports whether a (borough, reference) pair has
// been seen before. Used by discovery to filter already-processed
// applications.
func (s *Store) PlanningApplicationExists(borough, reference string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM planning_applications WHERE borough = $1 AND reference = $2
		)
	`, borough, reference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check planning application %s/%s: %w", borough, reference, err)
	}
	return exists, nil
}

// GetOrCreateApplicant returns the applicant row for (planning application,
// normalized name), creating it on first sight.
func (s *Store) GetOrCreateApplicant(planningAppID int64, rawName, normalizedName, applicantType, email, phone, address string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`
		INSERT INTO applicants
			(planning_application_id, raw_name, normalized_name, applicant_type,
			 contact_email, contact_phone, contact_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (planning_application_id, normalized_name)
			DO UPDATE SET normalized_name = EXCLUDED.normalized_name
		RETURNING id
	`, planningAppID, rawName, normalizedName, applicantType, email, phone, address).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save applicant %q: %w", rawName, err)
	}
	return id, nil
}

// GetCompanyByNumber returns the persisted company with the given Companies
// House number, or nil when it is not yet stored.
func (s *Store) GetCompanyByNumber(companyNumber string) (*CompanyRecord, error) {
	var c CompanyRecord
	err := s.db.QueryRow(`
		SELECT id, company_number, company_name, company_status, company_type,
		       date_of_creation, address_line_1, address_line_2, locality,
		       postal_code, country
		FROM companies
		WHERE company_number = $1
	`, companyNumber).Scan(
		&c.ID, &c.CompanyNumber, &c.CompanyName, &c.CompanyStatus, &c.CompanyType,
		&c.DateOfCreation, &c.AddressLine1, &c.AddressLine2, &c.Locality,
		&c.PostalCode, &c.Country,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query company %s: %w", companyNumber, err)
	}
	return &c, nil
}

// GetCompanyByID returns a persisted company by database id, or nil.
func (s *Store) GetCompanyByID(id int64) (*CompanyRecord, error) {
	var c CompanyRecord
	err := s.db.QueryRow(`
		SELECT id, company_number, company_name, company_status, company_type,
		       date_of_creation, address_line_1, address_line_2, locality,
		       postal_code, country
		FROM companies
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.CompanyNumber, &c.CompanyName, &c.CompanyStatus, &c.CompanyType,
		&c.DateOfCreation, &c.AddressLine1, &c.AddressLine2, &c.Locality,
		&c.PostalCode, &c.Country,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query company id %d: %w", id, err)
	}
	return &c, nil
}

// SaveCompany upserts a company keyed on company_number and returns its id.
func (s *Store) SaveCompany(c CompanyRecord) (int64, error) {
	var id int64
	err := s.db.QueryRow(`
		INSERT INTO companies
			(company_number, company_name, company_status, company_type,
			 date_of_creation, address_line_1, address_line_2, locality,
			 postal_code, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (company_number) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			company_status = EXCLUDED.company_status,
			company_type = EXCLUDED.company_type,
			date_of_creation = EXCLUDED.date_of_creation
		RETURNING id
	`, c.CompanyNumber, c.CompanyName, c.CompanyStatus, c.CompanyType,
		c.DateOfCreation, c.AddressLine1, c.AddressLine2, c.Locality,
		c.PostalCode, c.Country).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save company %s: %w", c.CompanyNumber, err)
	}
	return id, nil
}

// UpsertOfficer upserts an officer keyed on ch_officer_id. created reports
// whether a new row was inserted.
func (s *Store) UpsertOfficer(o OfficerRecord) (id int64, created bool, err error) {
	err = s.db.QueryRow(`
		INSERT INTO officers (ch_officer_id, name, nationality, date_of_birth_month, date_of_birth_year)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ch_officer_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, (xmax = 0)
	`, o.CHOfficerID, o.Name, o.Nationality, o.DateOfBirthMonth, o.DateOfBirthYear).Scan(&id, &created)
	if err != nil {
		return 0, false, fmt.Errorf("failed to save officer %s: %w", o.CHOfficerID, err)
	}
	return id, created, nil
}

// UpsertAppointment inserts an appointment unless one already exists for
// (officer, company, role, appointed date). created reports whether a row
// was inserted.
func (s *Store) UpsertAppointment(a AppointmentRecord) (created bool, err error) {
	res, err := s.db.Exec(`
		INSERT INTO appointments (officer_id, company_id, role, appointed_date, resigned_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (officer_id, company_id, role, appointed_date) DO NOTHING
	`, a.OfficerID, a.CompanyID, a.Role, a.AppointedDate, a.ResignedDate, a.IsActive)
	if err != nil {
		return false, fmt.Errorf("failed to save appointment for officer %d at company %d: %w", a.OfficerID, a.CompanyID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// CreateMatchIfAbsent records an applicant/company match once; repeat calls
// for the same pair are no-ops. created reports whether a row was inserted.
func (s *Store) CreateMatchIfAbsent(applicantID, companyID int64, method string, confidence float64) (created bool, err error) {
	res, err := s.db.Exec(`
		INSERT INTO applicant_company_matches (applicant_id, company_id, match_method, confidence_score, verified)
		VALUES ($1, $2, $3, $4, FALSE)
		ON CONFLICT (applicant_id, company_id) DO NOTHING
	`, applicantID, companyID, method, confidence)
	if err != nil {
		return false, fmt.Errorf("failed to save match applicant %d company %d: %w", applicantID, companyID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SaveContact upserts a discovered contact keyed on (company, email).
func (s *Store) SaveContact(c ContactRecord) (created bool, err error) {
	res, err := s.db.Exec(`
		INSERT INTO contacts (company_id, name, email, position, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id, email) DO NOTHING
	`, c.CompanyID, c.Name, c.Email, c.Position, c.Source)
	if err != nil {
		return false, fmt.Errorf("failed to save contact %s for company %d: %w", c.Email, c.CompanyID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// RebuildSharedOfficerEdges recomputes the shared-officer graph from scratch
// inside one transaction: every pair of companies (a < b) sharing at least
// one active officer gets an edge carrying the shared count. Returns the
// number of edges written.
func (s *Store) RebuildSharedOfficerEdges() (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin edge rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM shared_officer_edges`); err != nil {
		return 0, fmt.Errorf("failed to clear shared officer edges: %w", err)
	}

	res, err := tx.Exec(`
		INSERT INTO shared_officer_edges (company_a_id, company_b_id, shared_officer_count, last_computed)
		SELECT
			a1.company_id AS company_a_id,
			a2.company_id AS company_b_id,
			COUNT(DISTINCT a1.officer_id) AS shared_officer_count,
			NOW() AS last_computed
		FROM appointments a1
		JOIN appointments a2 ON a1.officer_id = a2.officer_id
		WHERE a1.company_id < a2.company_id
			AND a1.is_active = TRUE
			AND a2.is_active = TRUE
		GROUP BY a1.company_id, a2.company_id
		HAVING COUNT(DISTINCT a1.officer_id) > 0
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild shared officer edges: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit edge rebuild: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// RecentlyTouchedCompanies returns the ids of companies created, or given a
// new appointment, at or after the cutoff. Feeds the contact-enrichment
// batch.
func (s *Store) RecentlyTouchedCompanies(since time.Time) ([]int64, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT company_id FROM appointments WHERE created_at >= $1
		UNION
		SELECT id FROM companies WHERE created_at >= $1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query recently touched companies: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan company id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateAutomationRun opens a new run record in the running state.
func (s *Store) CreateAutomationRun(runType string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`
		INSERT INTO automation_runs (run_type, status, started_at)
		VALUES ($1, $2, NOW())
		RETURNING id
	`, runType, RunStatusRunning).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create automation run: %w", err)
	}
	return id, nil
}

// UpdateAutomationRunStats writes the per-stage counters onto a run.
func (s *Store) UpdateAutomationRunStats(id int64, stats RunStats) error {
	_, err := s.db.Exec(`
		UPDATE automation_runs SET
			applications_discovered = $2,
			boroughs_processed = $3,
			applications_processed = $4,
			companies_matched = $5,
			new_companies_created = $6,
			new_officers_created = $7,
			contacts_enriched = $8,
			error_count = $9,
			error_details = $10
		WHERE id = $1
	`, id, stats.ApplicationsDiscovered, stats.BoroughsProcessed,
		stats.ApplicationsProcessed, stats.CompaniesMatched,
		stats.NewCompaniesCreated, stats.NewOfficersCreated,
		stats.ContactsEnriched, stats.ErrorCount, stats.ErrorDetails)
	if err != nil {
		return fmt.Errorf("failed to update automation run %d: %w", id, err)
	}
	return nil
}

// CompleteAutomationRun closes a run with its terminal status and duration.
func (s *Store) CompleteAutomationRun(id int64, status string, startedAt time.Time) error {
	_, err := s.db.Exec(`
		UPDATE automation_runs SET
			status = $2,
			completed_at = NOW(),
			duration_seconds = $3
		WHERE id = $1
	`, id, status, int(time.Since(startedAt).Seconds()))
	if err != nil {
		return fmt.Errorf("failed to complete automation run %d: %w", id, err)
	}
	return nil
}

// FailRunningRuns marks any run still in the running state as failed. Called
// on startup so a crashed run does not look alive forever.
func (s *Store) FailRunningRuns(reason string) (int, error) {
	res, err := s.db.Exec(`
		UPDATE automation_runs SET
			status = $1,
			completed_at = NOW(),
			error_count = error_count + 1,
			error_details = $2
		WHERE status = $3
	`, RunStatusFailed, reason, RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to fail running runs: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// RecentAutomationRuns returns the latest runs, newest first.
func (s *Store) RecentAutomationRuns(limit int) ([]AutomationRun, error) {
	rows, err := s.db.Query(`
		SELECT id, run_type, status, started_at, completed_at, duration_seconds,
		       applications_discovered, boroughs_processed, applications_processed,
		       companies_matched, new_companies_created, new_officers_created,
		       contacts_enriched, error_count, error_details
		FROM automation_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query automation runs: %w", err)
	}
	defer rows.Close()

	var runs []AutomationRun
	for rows.Next() {
		var r AutomationRun
		var completedAt sql.NullTime
		if err := rows.Scan(
			&r.ID, &r.RunType, &r.Status, &r.StartedAt, &completedAt, &r.DurationSeconds,
			&r.ApplicationsDiscovered, &r.BoroughsProcessed, &r.ApplicationsProcessed,
			&r.CompaniesMatched, &r.NewCompaniesCreated, &r.NewOfficersCreated,
			&r.ContactsEnriched, &r.ErrorCount, &r.ErrorDetails,
		); err != nil {
			return nil, fmt.Errorf("failed to scan automation run: %w", err)
		}
		if completedAt.Valid {
			r.CompletedAt = &completedAt.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// nullableJSON maps an empty payload to NULL so JSONB columns stay clean.
func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
