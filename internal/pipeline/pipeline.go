package pipeline

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/planning-intel/internal/ingest"
	"github.com/planning-intel/internal/match"
	"github.com/planning-intel/internal/store"
)

// Config tunes the pipeline.
type Config struct {
	MinConfidenceScore     float64       // matches below this never persist
	MaxMatchesPerApplicant int           // persisted matches per applicant
	SearchPageSize         int           // candidates requested per search
	EnableEnrichment       bool          // hand touched companies to the enricher
	EnrichmentLookback     time.Duration // how far back "touched" reaches
}

// DefaultConfig returns the production pipeline settings.
func DefaultConfig() Config {
	return Config{
		MinConfidenceScore:     0.7,
		MaxMatchesPerApplicant: 3,
		SearchPageSize:         20,
		EnableEnrichment:       true,
		EnrichmentLookback:     time.Hour,
	}
}

// Stats is the result of one ProcessBatch call. Errors holds human-readable
// messages for every per-record failure; the batch itself never fails except
// when the store is unreachable at the start.
type Stats struct {
	TotalApplicants       int
	ProcessedApplicants   int
	MatchedCompanies      int
	NewCompaniesFetched   int
	NewOfficersFetched    int
	NewAppointments       int
	NetworkEdgesUpdated   int
	CompaniesEnriched     int
	LinkedInProfilesFound int
	EmailsDiscovered      int
	ContactsCreated       int
	Errors                []string
}

// applicantResult carries the counters from one applicant's processing.
type applicantResult struct {
	matchedCompanies    int
	newCompaniesFetched int
	newOfficersFetched  int
	newAppointments     int
}

// Pipeline orchestrates a batch: validate, dedupe, match each applicant
// against company search results, persist matches and officer networks,
// rebuild the shared-officer graph, then run one contact-enrichment batch.
type Pipeline struct {
	cfg       Config
	store     Store
	directory CompanyDirectory
	enricher  ContactEnricher // nil when enrichment is disabled
	validator *ingest.Validator
	matcher   *match.Matcher
	logger    *zap.Logger
}

// New creates a pipeline. enricher may be nil; it is only consulted when
// cfg.EnableEnrichment is set.
func New(cfg Config, st Store, directory CompanyDirectory, enricher ContactEnricher,
	validator *ingest.Validator, matcher *match.Matcher, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		directory: directory,
		enricher:  enricher,
		validator: validator,
		matcher:   matcher,
		logger:    logger,
	}
}

// ProcessBatch runs the full pipeline over a batch of raw applicants. Every
// stage is fault-tolerant: one applicant's failure is recorded and the batch
// continues. Only an unreachable store aborts the whole batch, reported as a
// single fatal error entry.
func (p *Pipeline) ProcessBatch(rawApplicants []ingest.RawApplicant) *Stats {
	stats := &Stats{TotalApplicants: len(rawApplicants)}
	startedAt := time.Now()

	if err := p.store.Ping(); err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("pipeline fatal error: %v", err))
		p.logger.Error("cannot open persistence session, aborting batch", zap.Error(err))
		return stats
	}

	p.logger.Info("starting pipeline batch", zap.Int("applicants", len(rawApplicants)))

	// Stage 1: validate and normalize.
	validated := make([]ingest.NormalizedApplicant, 0, len(rawApplicants))
	for _, raw := range rawApplicants {
		ok, msg := p.validator.Validate(raw)
		if !ok {
			stats.Errors = append(stats.Errors, fmt.Sprintf("validation failed: %s", msg))
			continue
		}
		validated = append(validated, p.validator.Normalize(raw))
	}

	// Stage 2: deduplicate, first occurrence wins.
	deduplicated := p.validator.Deduplicate(validated)
	p.logger.Info("validated batch",
		zap.Int("valid", len(validated)),
		zap.Int("unique", len(deduplicated)))

	// Stage 3: per-applicant processing.
	for _, applicant := range deduplicated {
		result, err := p.processApplicant(applicant)
		if err != nil {
			stats.Errors = append(stats.Errors,
				fmt.Sprintf("error processing applicant %s: %v", applicant.RawName, err))
			p.logger.Error("applicant processing failed",
				zap.String("applicant", applicant.RawName), zap.Error(err))
			continue
		}

		stats.ProcessedApplicants++
		stats.MatchedCompanies += result.matchedCompanies
		stats.NewCompaniesFetched += result.newCompaniesFetched
		stats.NewOfficersFetched += result.newOfficersFetched
		stats.NewAppointments += result.newAppointments
	}

	// Stage 4: rebuild the shared-officer graph from scratch. A full
	// delete-and-reinsert per run is the accepted cost for never carrying
	// stale edges.
	edges, err := p.store.RebuildSharedOfficerEdges()
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("failed to update officer network: %v", err))
		p.logger.Error("edge rebuild failed", zap.Error(err))
	} else {
		stats.NetworkEdgesUpdated = edges
	}

	// Stage 5: one enrichment call over everything this batch touched.
	if p.cfg.EnableEnrichment && p.enricher != nil {
		p.runEnrichment(stats, startedAt)
	}

	p.logger.Info("pipeline batch complete",
		zap.Int("processed", stats.ProcessedApplicants),
		zap.Int("matched", stats.MatchedCompanies),
		zap.Int("errors", len(stats.Errors)))

	return stats
}

// processApplicant walks one applicant through search, matching and
// persistence. Individuals and applicants with no candidates terminate early
// with zero matches; neither is an error.
func (p *Pipeline) processApplicant(applicant ingest.NormalizedApplicant) (applicantResult, error) {
	var result applicantResult

	planningAppID, err := p.store.SavePlanningApplication(store.PlanningApplication{
		Borough:     applicant.Borough,
		Reference:   applicant.PlanningReference,
		Description: applicant.Description,
		RawData:     applicant.RawPayload,
	})
	if err != nil {
		return result, err
	}

	applicantID, err := p.store.GetOrCreateApplicant(planningAppID,
		applicant.RawName, applicant.NormalizedName, applicant.ApplicantType,
		applicant.ContactEmail, applicant.ContactPhone, applicant.ContactAddress)
	if err != nil {
		return result, err
	}

	if applicant.ApplicantType == ingest.TypeIndividual {
		p.logger.Debug("skipping individual applicant", zap.String("applicant", applicant.RawName))
		return result, nil
	}

	candidates, err := p.directory.SearchCompanies(applicant.RawName, p.cfg.SearchPageSize)
	if err != nil {
		return result, fmt.Errorf("company search failed: %w", err)
	}
	if len(candidates) == 0 {
		p.logger.Debug("no company candidates", zap.String("applicant", applicant.RawName))
		return result, nil
	}

	matches := p.matcher.FindMatches(applicant.RawName, candidates)

	kept := matches[:0]
	for _, m := range matches {
		if m.ConfidenceScore >= p.cfg.MinConfidenceScore {
			kept = append(kept, m)
		}
	}
	if len(kept) > p.cfg.MaxMatchesPerApplicant {
		kept = kept[:p.cfg.MaxMatchesPerApplicant]
	}
	if len(kept) == 0 {
		p.logger.Debug("no high-confidence matches", zap.String("applicant", applicant.RawName))
		return result, nil
	}

	for _, m := range kept {
		matchResult, err := p.processMatch(applicantID, m)
		if err != nil {
			// One bad match must not sink the applicant's remaining matches.
			p.logger.Error("match processing failed",
				zap.String("company_number", m.CompanyNumber), zap.Error(err))
			continue
		}
		result.matchedCompanies++
		result.newCompaniesFetched += matchResult.newCompaniesFetched
		result.newOfficersFetched += matchResult.newOfficersFetched
		result.newAppointments += matchResult.newAppointments
	}

	return result, nil
}

// processMatch persists one company match: fetch-or-create the company,
// record the match once, then upsert the company's officers and
// appointments. Officer and appointment writes only happen after the company
// row exists.
func (p *Pipeline) processMatch(applicantID int64, m match.CompanyMatch) (applicantResult, error) {
	var result applicantResult

	company, err := p.store.GetCompanyByNumber(m.CompanyNumber)
	if err != nil {
		return result, err
	}

	var companyID int64
	if company != nil {
		companyID = company.ID
	} else {
		profile, err := p.directory.CompanyDetails(m.CompanyNumber)
		if err != nil {
			return result, fmt.Errorf("company details fetch failed: %w", err)
		}
		if profile == nil {
			p.logger.Warn("company details unavailable", zap.String("company_number", m.CompanyNumber))
			return result, nil
		}

		companyID, err = p.store.SaveCompany(store.CompanyRecord{
			CompanyNumber:  profile.CompanyNumber,
			CompanyName:    profile.CompanyName,
			CompanyStatus:  profile.CompanyStatus,
			CompanyType:    profile.CompanyType,
			DateOfCreation: profile.DateOfCreation,
			AddressLine1:   profile.AddressLine1,
			AddressLine2:   profile.AddressLine2,
			Locality:       profile.Locality,
			PostalCode:     profile.PostalCode,
			Country:        profile.Country,
		})
		if err != nil {
			return result, err
		}
		result.newCompaniesFetched = 1
		p.logger.Info("fetched new company", zap.String("company_number", m.CompanyNumber))
	}

	if _, err := p.store.CreateMatchIfAbsent(applicantID, companyID, string(m.Method), m.ConfidenceScore); err != nil {
		return result, err
	}

	officers, err := p.directory.CompanyOfficers(m.CompanyNumber)
	if err != nil {
		return result, fmt.Errorf("officer fetch failed: %w", err)
	}

	for _, officer := range officers {
		officerID, created, err := p.store.UpsertOfficer(store.OfficerRecord{
			CHOfficerID:      officer.CHOfficerID,
			Name:             officer.Name,
			Nationality:      officer.Nationality,
			DateOfBirthMonth: officer.DateOfBirthMonth,
			DateOfBirthYear:  officer.DateOfBirthYear,
		})
		if err != nil {
			p.logger.Error("officer upsert failed",
				zap.String("company_number", m.CompanyNumber), zap.Error(err))
			continue
		}
		if created {
			result.newOfficersFetched++
		}

		appointmentCreated, err := p.store.UpsertAppointment(store.AppointmentRecord{
			OfficerID:     officerID,
			CompanyID:     companyID,
			Role:          officer.Role,
			AppointedDate: officer.AppointedOn,
			ResignedDate:  officer.ResignedOn,
			IsActive:      officer.ResignedOn == "",
		})
		if err != nil {
			p.logger.Error("appointment upsert failed",
				zap.String("company_number", m.CompanyNumber), zap.Error(err))
			continue
		}
		if appointmentCreated {
			result.newAppointments++
		}
	}

	return result, nil
}

// runEnrichment hands every company touched since the batch started (minus
// the lookback window) to the enricher in one call.
func (p *Pipeline) runEnrichment(stats *Stats, startedAt time.Time) {
	cutoff := startedAt.Add(-p.cfg.EnrichmentLookback)

	companyIDs, err := p.store.RecentlyTouchedCompanies(cutoff)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("contact enrichment failed: %v", err))
		return
	}
	if len(companyIDs) == 0 {
		p.logger.Info("no companies to enrich in this batch")
		return
	}

	p.logger.Info("starting contact enrichment", zap.Int("companies", len(companyIDs)))

	result, err := p.enricher.EnrichCompanies(companyIDs)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("contact enrichment failed: %v", err))
		return
	}

	stats.CompaniesEnriched = result.CompaniesProcessed
	stats.LinkedInProfilesFound = result.LinkedInProfiles
	stats.EmailsDiscovered = result.EmailsDiscovered
	stats.ContactsCreated = result.ContactsCreated

	for _, failed := range result.FailedCompanies {
		stats.Errors = append(stats.Errors,
			fmt.Sprintf("enrichment failed for company %d: %s", failed.CompanyID, failed.Reason))
	}
}

// Summary renders the stats as a single log-friendly line.
func (s *Stats) Summary() string {
	return strings.TrimSpace(fmt.Sprintf(
		"processed %d/%d applicants, %d matches, %d new companies, %d new officers, %d edges, %d errors",
		s.ProcessedApplicants, s.TotalApplicants, s.MatchedCompanies,
		s.NewCompaniesFetched, s.NewOfficersFetched, s.NetworkEdgesUpdated, len(s.Errors)))
}
