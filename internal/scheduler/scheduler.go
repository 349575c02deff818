package scheduler

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/planning-intel/internal/ingest"
	"github.com/planning-intel/internal/pipeline"
	"github.com/planning-intel/internal/planning"
	"github.com/planning-intel/internal/store"
)

const runTypeDiscovery = "weekly_discovery"

// Config holds discovery parameters.
type Config struct {
	Boroughs       []string
	DaysBack       int
	BatchSize      int
	RateLimitDelay time.Duration
	CronExpr       string
}

// PlanningSearcher finds recent planning applications for one borough.
type PlanningSearcher interface {
	SearchApplications(borough string, since time.Time) ([]planning.Application, error)
}

// RunStore persists run telemetry and discovered applications, and remembers
// which applications have already been seen.
type RunStore interface {
	PlanningApplicationExists(borough, reference string) (bool, error)
	SavePlanningApplication(app store.PlanningApplication) (int64, error)
	CreateAutomationRun(runType string) (int64, error)
	UpdateAutomationRunStats(id int64, stats store.RunStats) error
	CompleteAutomationRun(id int64, status string, startedAt time.Time) error
	FailRunningRuns(reason string) (int, error)
	RecentAutomationRuns(limit int) ([]store.AutomationRun, error)
}

// BatchProcessor runs the matching pipeline over one batch of applicants.
type BatchProcessor interface {
	ProcessBatch(applicants []ingest.RawApplicant) *pipeline.Stats
}

// Scheduler runs weekly discovery: search each borough for new applications,
// filter out those already stored, and feed the rest through the pipeline in
// rate-limited batches.
type Scheduler struct {
	cfg       Config
	searcher  PlanningSearcher
	runs      RunStore
	processor BatchProcessor
	logger    *zap.Logger

	cron    *cron.Cron
	running atomic.Bool
	lastRun atomic.Value // time.Time
}

func New(cfg Config, searcher PlanningSearcher, runs RunStore, processor BatchProcessor, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		searcher:  searcher,
		runs:      runs,
		processor: processor,
		logger:    logger,
	}
}

// Start marks stale running runs as failed, then schedules discovery on the
// configured cron expression. Overlapping triggers are skipped rather than
// queued.
func (s *Scheduler) Start() error {
	failed, err := s.runs.FailRunningRuns("interrupted by restart")
	if err != nil {
		return fmt.Errorf("failed to recover stale runs: %w", err)
	}
	if failed > 0 {
		s.logger.Warn("marked stale runs as failed", zap.Int("count", failed))
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{s.logger}),
	))
	_, err = s.cron.AddFunc(s.cfg.CronExpr, func() {
		if _, err := s.RunDiscovery(); err != nil {
			s.logger.Error("scheduled discovery failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.cfg.CronExpr, err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("cron", s.cfg.CronExpr))
	return nil
}

// Stop halts the cron loop and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// ErrAlreadyRunning is returned when a manual trigger overlaps a run.
var ErrAlreadyRunning = fmt.Errorf("a discovery run is already in progress")

// TriggerManual starts discovery in the background, refusing overlap.
func (s *Scheduler) TriggerManual() error {
	if s.running.Load() {
		return ErrAlreadyRunning
	}
	go func() {
		if _, err := s.RunDiscovery(); err != nil {
			s.logger.Error("manual discovery failed", zap.Error(err))
		}
	}()
	return nil
}

// Status reports whether a run is in flight, the last run start time, and
// recent run records.
type Status struct {
	Running    bool                  `json:"running"`
	LastRunAt  *time.Time            `json:"last_run_at,omitempty"`
	RecentRuns []store.AutomationRun `json:"recent_runs"`
}

func (s *Scheduler) Status() (Status, error) {
	recent, err := s.runs.RecentAutomationRuns(10)
	if err != nil {
		return Status{}, err
	}
	st := Status{Running: s.running.Load(), RecentRuns: recent}
	if last, ok := s.lastRun.Load().(time.Time); ok && !last.IsZero() {
		st.LastRunAt = &last
	}
	return st, nil
}

// RunDiscovery executes one full discovery cycle and returns the final
// run stats. The run record is created up front and completed whatever
// happens, so crashes mid-run leave an identifiable stale record.
func (s *Scheduler) RunDiscovery() (store.RunStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return store.RunStats{}, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	startedAt := time.Now()
	s.lastRun.Store(startedAt)

	runID, err := s.runs.CreateAutomationRun(runTypeDiscovery)
	if err != nil {
		return store.RunStats{}, fmt.Errorf("failed to create run record: %w", err)
	}

	s.logger.Info("discovery run started",
		zap.Int64("run_id", runID),
		zap.Int("boroughs", len(s.cfg.Boroughs)),
		zap.Int("days_back", s.cfg.DaysBack))

	stats, errs := s.discover()

	stats.ErrorCount = len(errs)
	if len(errs) > 0 {
		stats.ErrorDetails = strings.Join(errs, "; ")
	}

	if err := s.runs.UpdateAutomationRunStats(runID, stats); err != nil {
		s.logger.Error("failed to record run stats", zap.Int64("run_id", runID), zap.Error(err))
	}

	status := runStatus(stats)
	if err := s.runs.CompleteAutomationRun(runID, status, startedAt); err != nil {
		s.logger.Error("failed to complete run record", zap.Int64("run_id", runID), zap.Error(err))
	}

	s.logger.Info("discovery run finished",
		zap.Int64("run_id", runID),
		zap.String("status", status),
		zap.Int("discovered", stats.ApplicationsDiscovered),
		zap.Int("processed", stats.ApplicationsProcessed),
		zap.Int("matched", stats.CompaniesMatched),
		zap.Int("errors", stats.ErrorCount),
		zap.Duration("elapsed", time.Since(startedAt)))
	return stats, nil
}

// runStatus derives the final run status: completed needs work done and no
// errors; partial needs work done despite errors; everything else, including
// a run that processed nothing, is failed.
func runStatus(stats store.RunStats) string {
	switch {
	case stats.ApplicationsProcessed > 0 && stats.ErrorCount == 0:
		return store.RunStatusCompleted
	case stats.ApplicationsProcessed > 0:
		return store.RunStatusPartial
	default:
		return store.RunStatusFailed
	}
}

func (s *Scheduler) discover() (store.RunStats, []string) {
	var stats store.RunStats
	var errs []string

	since := time.Now().AddDate(0, 0, -s.cfg.DaysBack)
	var fresh []ingest.RawApplicant

	for _, borough := range s.cfg.Boroughs {
		apps, err := s.searcher.SearchApplications(borough, since)
		if err != nil {
			errs = append(errs, fmt.Sprintf("search failed for %s: %v", borough, err))
			continue
		}
		stats.BoroughsProcessed++
		stats.ApplicationsDiscovered += len(apps)

		for i := range apps {
			app := &apps[i]

			// The store keys references uppercased; fold here so the
			// seen-filter matches what was persisted.
			reference := strings.ToUpper(strings.TrimSpace(app.Reference))
			if reference == "" {
				continue
			}

			seen, err := s.runs.PlanningApplicationExists(borough, reference)
			if err != nil {
				errs = append(errs, fmt.Sprintf("existence check failed for %s/%s: %v", borough, reference, err))
				continue
			}
			if seen {
				continue
			}

			// Persist every new application at discovery time, even ones
			// with no usable applicant name, so it registers as seen and is
			// not re-discovered on every later run.
			if _, err := s.runs.SavePlanningApplication(store.PlanningApplication{
				Borough:     borough,
				Reference:   reference,
				Description: app.Description,
				RawData:     app.Raw,
			}); err != nil {
				errs = append(errs, fmt.Sprintf("failed to save application %s/%s: %v", borough, reference, err))
				continue
			}

			name := app.BestApplicantName()
			if name == "" {
				continue
			}
			fresh = append(fresh, ingest.RawApplicant{
				PlanningReference: reference,
				ApplicantName:     name,
				Borough:           borough,
				Description:       app.Description,
				RawPayload:        app.Raw,
			})
		}

		time.Sleep(s.cfg.RateLimitDelay)
	}

	s.logger.Info("discovery complete",
		zap.Int("discovered", stats.ApplicationsDiscovered),
		zap.Int("fresh", len(fresh)))

	for start := 0; start < len(fresh); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(fresh) {
			end = len(fresh)
		}
		batch := fresh[start:end]

		result := s.processor.ProcessBatch(batch)
		stats.ApplicationsProcessed += result.ProcessedApplicants
		stats.CompaniesMatched += result.MatchedCompanies
		stats.NewCompaniesCreated += result.NewCompaniesFetched
		stats.NewOfficersCreated += result.NewOfficersFetched
		stats.ContactsEnriched += result.ContactsCreated
		errs = append(errs, result.Errors...)

		if end < len(fresh) {
			time.Sleep(s.cfg.RateLimitDelay)
		}
	}

	return stats, errs
}

// cronLogger adapts zap to the cron logger interface, used only to report
// skipped overlapping triggers.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
