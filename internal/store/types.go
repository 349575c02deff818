package store

import "time"

// PlanningApplication is a discovered planning application. Unique per
// (borough, reference).
type PlanningApplication struct {
	ID          int64
	Borough     string
	Reference   string
	Description string
	RawData     []byte // source record as JSON
}

// CompanyRecord is a persisted Companies House company. Unique per
// CompanyNumber.
type CompanyRecord struct {
	ID             int64
	CompanyNumber  string
	CompanyName    string
	CompanyStatus  string
	CompanyType    string
	DateOfCreation string
	AddressLine1   string
	AddressLine2   string
	Locality       string
	PostalCode     string
	Country        string
}

// OfficerRecord is a persisted company officer. Unique per CHOfficerID.
type OfficerRecord struct {
	ID               int64
	CHOfficerID      string
	Name             string
	Nationality      string
	DateOfBirthMonth int
	DateOfBirthYear  int
}

// AppointmentRecord links an officer to a company with a role. Unique per
// (OfficerID, CompanyID, Role, AppointedDate); active while no resignation
// date is present.
type AppointmentRecord struct {
	OfficerID     int64
	CompanyID     int64
	Role          string
	AppointedDate string
	ResignedDate  string
	IsActive      bool
}

// ContactRecord is a discovered contact for a company. Unique per
// (CompanyID, Email).
type ContactRecord struct {
	CompanyID int64
	Name      string
	Email     string
	Position  string
	Source    string
}

// Automation run terminal states.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
)

// RunStats carries the per-stage counters written onto an automation run.
// JSON tags serve the ops API, which reports runs as-is.
type RunStats struct {
	ApplicationsDiscovered int    `json:"applications_discovered"`
	BoroughsProcessed      int    `json:"boroughs_processed"`
	ApplicationsProcessed  int    `json:"applications_processed"`
	CompaniesMatched       int    `json:"companies_matched"`
	NewCompaniesCreated    int    `json:"new_companies_created"`
	NewOfficersCreated     int    `json:"new_officers_created"`
	ContactsEnriched       int    `json:"contacts_enriched"`
	ErrorCount             int    `json:"error_count"`
	ErrorDetails           string `json:"error_details,omitempty"`
}

// AutomationRun is the write-only telemetry record of one scheduler run.
type AutomationRun struct {
	ID              int64      `json:"id"`
	RunType         string     `json:"run_type"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	RunStats
}
