package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planning-intel/internal/ingest"
	"github.com/planning-intel/internal/match"
	"github.com/planning-intel/internal/normalize"
	"github.com/planning-intel/internal/store"
)

// fakeStore is an in-memory Store that mimics the upsert semantics of the
// real one: repeat writes with the same natural key report created=false.
type fakeStore struct {
	pingErr error

	planningApps map[string]int64 // borough|reference -> id
	applicants   map[string]int64 // planningAppID|normalizedName -> id
	companies    map[string]int64 // companyNumber -> id
	matches      map[string]bool  // applicantID|companyID
	officers     map[string]int64 // chOfficerID -> id
	appointments map[string]bool  // officerID|companyID|role|appointedDate

	touched []int64
	nextID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		planningApps: make(map[string]int64),
		applicants:   make(map[string]int64),
		companies:    make(map[string]int64),
		matches:      make(map[string]bool),
		officers:     make(map[string]int64),
		appointments: make(map[string]bool),
	}
}

func (f *fakeStore) id() int64 { f.nextID++; return f.nextID }

func (f *fakeStore) Ping() error { return f.pingErr }

func (f *fakeStore) SavePlanningApplication(app store.PlanningApplication) (int64, error) {
	key := app.Borough + "|" + app.Reference
	if id, ok := f.planningApps[key]; ok {
		return id, nil
	}
	id := f.id()
	f.planningApps[key] = id
	return id, nil
}

func (f *fakeStore) GetOrCreateApplicant(planningAppID int64, rawName, normalizedName, applicantType, email, phone, address string) (int64, error) {
	key := fmt.Sprintf("%d|%s", planningAppID, normalizedName)
	if id, ok := f.applicants[key]; ok {
		return id, nil
	}
	id := f.id()
	f.applicants[key] = id
	return id, nil
}

func (f *fakeStore) GetCompanyByNumber(companyNumber string) (*store.CompanyRecord, error) {
	if id, ok := f.companies[companyNumber]; ok {
		return &store.CompanyRecord{ID: id, CompanyNumber: companyNumber}, nil
	}
	return nil, nil
}

func (f *fakeStore) SaveCompany(c store.CompanyRecord) (int64, error) {
	if id, ok := f.companies[c.CompanyNumber]; ok {
		return id, nil
	}
	id := f.id()
	f.companies[c.CompanyNumber] = id
	f.touched = append(f.touched, id)
	return id, nil
}

func (f *fakeStore) CreateMatchIfAbsent(applicantID, companyID int64, method string, confidence float64) (bool, error) {
	key := fmt.Sprintf("%d|%d", applicantID, companyID)
	if f.matches[key] {
		return false, nil
	}
	f.matches[key] = true
	return true, nil
}

func (f *fakeStore) UpsertOfficer(o store.OfficerRecord) (int64, bool, error) {
	if id, ok := f.officers[o.CHOfficerID]; ok {
		return id, false, nil
	}
	id := f.id()
	f.officers[o.CHOfficerID] = id
	return id, true, nil
}

func (f *fakeStore) UpsertAppointment(a store.AppointmentRecord) (bool, error) {
	key := fmt.Sprintf("%d|%d|%s|%s", a.OfficerID, a.CompanyID, a.Role, a.AppointedDate)
	if f.appointments[key] {
		return false, nil
	}
	f.appointments[key] = true
	return true, nil
}

func (f *fakeStore) RebuildSharedOfficerEdges() (int, error) {
	return len(f.appointments), nil
}

func (f *fakeStore) RecentlyTouchedCompanies(since time.Time) ([]int64, error) {
	return f.touched, nil
}

// fakeDirectory serves canned candidates and profiles.
type fakeDirectory struct {
	candidates  map[string][]match.CandidateCompany // query -> results
	profiles    map[string]*CompanyProfile
	officers    map[string][]Officer
	searchCalls int
}

func (f *fakeDirectory) SearchCompanies(query string, pageSize int) ([]match.CandidateCompany, error) {
	f.searchCalls++
	return f.candidates[query], nil
}

func (f *fakeDirectory) CompanyDetails(companyNumber string) (*CompanyProfile, error) {
	return f.profiles[companyNumber], nil
}

func (f *fakeDirectory) CompanyOfficers(companyNumber string) ([]Officer, error) {
	return f.officers[companyNumber], nil
}

type fakeEnricher struct {
	result EnrichmentResult
	calls  int
}

func (f *fakeEnricher) EnrichCompanies(companyIDs []int64) (EnrichmentResult, error) {
	f.calls++
	return f.result, nil
}

func newTestPipeline(st Store, dir CompanyDirectory, enricher ContactEnricher, cfg Config) *Pipeline {
	norm := normalize.NewNormalizer()
	return New(cfg, st, dir, enricher,
		ingest.NewValidator(norm),
		match.NewMatcher(norm, match.NewScorer(norm), zap.NewNop()),
		zap.NewNop())
}

func companyBatch() []ingest.RawApplicant {
	return []ingest.RawApplicant{{
		PlanningReference: "24/01234/FULL",
		ApplicantName:     "Acme Developments Ltd",
		Borough:           "Camden",
	}}
}

func acmeDirectory() *fakeDirectory {
	return &fakeDirectory{
		candidates: map[string][]match.CandidateCompany{
			"Acme Developments Ltd": {
				{CompanyNumber: "12345678", CompanyName: "ACME DEVELOPMENTS LIMITED", CompanyStatus: "active"},
				{CompanyNumber: "99999999", CompanyName: "Zenith Partners"},
			},
		},
		profiles: map[string]*CompanyProfile{
			"12345678": {CompanyNumber: "12345678", CompanyName: "ACME DEVELOPMENTS LIMITED", CompanyStatus: "active"},
		},
		officers: map[string][]Officer{
			"12345678": {
				{CHOfficerID: "off-1", Name: "SMITH, John", Role: "director", AppointedOn: "2015-03-01"},
				{CHOfficerID: "off-2", Name: "JONES, Mary", Role: "secretary", AppointedOn: "2016-07-12", ResignedOn: "2020-01-01"},
			},
		},
	}
}

func TestProcessBatchMatchesAndPersists(t *testing.T) {
	st := newFakeStore()
	dir := acmeDirectory()
	p := newTestPipeline(st, dir, nil, DefaultConfig())

	stats := p.ProcessBatch(companyBatch())

	assert.Empty(t, stats.Errors)
	assert.Equal(t, 1, stats.ProcessedApplicants)
	assert.Equal(t, 1, stats.MatchedCompanies)
	assert.Equal(t, 1, stats.NewCompaniesFetched)
	assert.Equal(t, 2, stats.NewOfficersFetched)
	assert.Equal(t, 2, stats.NewAppointments)
	assert.Len(t, st.matches, 1)
	assert.Len(t, st.companies, 1)
}

func TestProcessBatchRerunIsIdempotent(t *testing.T) {
	st := newFakeStore()
	dir := acmeDirectory()
	p := newTestPipeline(st, dir, nil, DefaultConfig())

	first := p.ProcessBatch(companyBatch())
	require.Empty(t, first.Errors)

	second := p.ProcessBatch(companyBatch())
	assert.Empty(t, second.Errors)
	assert.Equal(t, 1, second.ProcessedApplicants)
	assert.Equal(t, 1, second.MatchedCompanies)
	assert.Equal(t, 0, second.NewCompaniesFetched)
	assert.Equal(t, 0, second.NewOfficersFetched)
	assert.Equal(t, 0, second.NewAppointments)
	assert.Len(t, st.companies, 1)
	assert.Len(t, st.officers, 2)
}

func TestProcessBatchSkipsIndividuals(t *testing.T) {
	st := newFakeStore()
	dir := &fakeDirectory{}
	p := newTestPipeline(st, dir, nil, DefaultConfig())

	stats := p.ProcessBatch([]ingest.RawApplicant{{
		PlanningReference: "24/02000/HSE",
		ApplicantName:     "Mr John Smith",
		Borough:           "Camden",
	}})

	assert.Empty(t, stats.Errors)
	assert.Equal(t, 1, stats.ProcessedApplicants)
	assert.Equal(t, 0, stats.MatchedCompanies)
	assert.Equal(t, 0, dir.searchCalls, "individuals must never hit company search")
	// The applicant itself is still persisted.
	assert.Len(t, st.applicants, 1)
}

func TestProcessBatchNoCandidates(t *testing.T) {
	st := newFakeStore()
	dir := &fakeDirectory{}
	p := newTestPipeline(st, dir, nil, DefaultConfig())

	stats := p.ProcessBatch(companyBatch())

	assert.Empty(t, stats.Errors)
	assert.Equal(t, 1, stats.ProcessedApplicants)
	assert.Equal(t, 0, stats.MatchedCompanies)
	assert.Equal(t, 1, dir.searchCalls)
}

func TestProcessBatchDeduplicates(t *testing.T) {
	st := newFakeStore()
	dir := acmeDirectory()
	p := newTestPipeline(st, dir, nil, DefaultConfig())

	batch := append(companyBatch(), ingest.RawApplicant{
		PlanningReference: "24/01234/full", // same reference, different case
		ApplicantName:     "ACME Developments Ltd.",
		Borough:           "Camden",
	})

	stats := p.ProcessBatch(batch)

	assert.Equal(t, 2, stats.TotalApplicants)
	assert.Equal(t, 1, stats.ProcessedApplicants, "duplicate applicant must be dropped")
	assert.Equal(t, 1, dir.searchCalls)
}

func TestProcessBatchRecordsValidationFailures(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(st, acmeDirectory(), nil, DefaultConfig())

	batch := append(companyBatch(), ingest.RawApplicant{ApplicantName: "No Reference Ltd"})

	stats := p.ProcessBatch(batch)

	assert.Equal(t, 1, stats.ProcessedApplicants)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "validation failed")
}

func TestProcessBatchFatalWhenStoreUnreachable(t *testing.T) {
	st := newFakeStore()
	st.pingErr = fmt.Errorf("connection refused")
	p := newTestPipeline(st, acmeDirectory(), nil, DefaultConfig())

	stats := p.ProcessBatch(companyBatch())

	assert.Equal(t, 0, stats.ProcessedApplicants)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "pipeline fatal error")
}

func TestProcessBatchRunsEnrichment(t *testing.T) {
	st := newFakeStore()
	enricher := &fakeEnricher{result: EnrichmentResult{
		CompaniesProcessed: 1,
		EmailsDiscovered:   3,
		ContactsCreated:    2,
		FailedCompanies:    []FailedCompany{{CompanyID: 42, Reason: "no domain found"}},
	}}
	p := newTestPipeline(st, acmeDirectory(), enricher, DefaultConfig())

	stats := p.ProcessBatch(companyBatch())

	assert.Equal(t, 1, enricher.calls)
	assert.Equal(t, 1, stats.CompaniesEnriched)
	assert.Equal(t, 3, stats.EmailsDiscovered)
	assert.Equal(t, 2, stats.ContactsCreated)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "enrichment failed for company 42")
}

func TestProcessBatchEnrichmentDisabled(t *testing.T) {
	st := newFakeStore()
	enricher := &fakeEnricher{}
	cfg := DefaultConfig()
	cfg.EnableEnrichment = false
	p := newTestPipeline(st, acmeDirectory(), enricher, cfg)

	p.ProcessBatch(companyBatch())

	assert.Equal(t, 0, enricher.calls)
}
