package pipeline

import (
	"time"

	"github.com/planning-intel/internal/match"
	"github.com/planning-intel/internal/store"
)

// CompanyProfile is the full company record returned by the details
// collaborator.
type CompanyProfile struct {
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

// Officer is a company officer as returned by the officers collaborator.
type Officer struct {
	CHOfficerID      string
	Name             string
	Role             string
	AppointedOn      string
	ResignedOn       string
	Nationality      string
	DateOfBirthMonth int
	DateOfBirthYear  int
}

// CompanyDirectory is the external company-data collaborator (Companies
// House in production).
type CompanyDirectory interface {
	SearchCompanies(query string, pageSize int) ([]match.CandidateCompany, error)
	CompanyDetails(companyNumber string) (*CompanyProfile, error)
	CompanyOfficers(companyNumber string) ([]Officer, error)
}

// EnrichmentResult aggregates one contact-enrichment batch call.
type EnrichmentResult struct {
	CompaniesProcessed int
	LinkedInProfiles   int
	EmailsDiscovered   int
	ContactsCreated    int
	FailedCompanies    []FailedCompany
}

// FailedCompany reports a per-company enrichment failure; enrichment is
// best-effort and failures never abort the batch.
type FailedCompany struct {
	CompanyID int64
	Reason    string
}

// ContactEnricher is the external contact-enrichment collaborator.
type ContactEnricher interface {
	EnrichCompanies(companyIDs []int64) (EnrichmentResult, error)
}

// Store is the persistence surface the pipeline writes through. Implemented
// by *store.Store; narrowed to an interface so tests can substitute an
// in-memory fake.
type Store interface {
	Ping() error
	SavePlanningApplication(app store.PlanningApplication) (int64, error)
	GetOrCreateApplicant(planningAppID int64, rawName, normalizedName, applicantType, email, phone, address string) (int64, error)
	GetCompanyByNumber(companyNumber string) (*store.CompanyRecord, error)
	SaveCompany(c store.CompanyRecord) (int64, error)
	CreateMatchIfAbsent(applicantID, companyID int64, method string, confidence float64) (bool, error)
	UpsertOfficer(o store.OfficerRecord) (int64, bool, error)
	UpsertAppointment(a store.AppointmentRecord) (bool, error)
	RebuildSharedOfficerEdges() (int, error)
	RecentlyTouchedCompanies(since time.Time) ([]int64, error)
}
