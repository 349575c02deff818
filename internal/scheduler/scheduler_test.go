package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planning-intel/internal/ingest"
	"github.com/planning-intel/internal/pipeline"
	"github.com/planning-intel/internal/planning"
	"github.com/planning-intel/internal/store"
)

type fakeSearcher struct {
	apps   map[string][]planning.Application
	errFor map[string]error
}

func (f *fakeSearcher) SearchApplications(borough string, since time.Time) ([]planning.Application, error) {
	if err := f.errFor[borough]; err != nil {
		return nil, err
	}
	return f.apps[borough], nil
}

type fakeRunStore struct {
	seen map[string]bool // borough|reference

	savedApps     []store.PlanningApplication
	createdRuns   int
	updatedStats  store.RunStats
	completedWith string
	failedCalls   int
	recent        []store.AutomationRun
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{seen: make(map[string]bool)}
}

func (f *fakeRunStore) PlanningApplicationExists(borough, reference string) (bool, error) {
	return f.seen[borough+"|"+reference], nil
}

func (f *fakeRunStore) SavePlanningApplication(app store.PlanningApplication) (int64, error) {
	f.savedApps = append(f.savedApps, app)
	f.seen[app.Borough+"|"+app.Reference] = true
	return int64(len(f.savedApps)), nil
}

func (f *fakeRunStore) CreateAutomationRun(runType string) (int64, error) {
	f.createdRuns++
	return int64(f.createdRuns), nil
}

func (f *fakeRunStore) UpdateAutomationRunStats(id int64, stats store.RunStats) error {
	f.updatedStats = stats
	return nil
}

func (f *fakeRunStore) CompleteAutomationRun(id int64, status string, startedAt time.Time) error {
	f.completedWith = status
	return nil
}

func (f *fakeRunStore) FailRunningRuns(reason string) (int, error) {
	f.failedCalls++
	return 0, nil
}

func (f *fakeRunStore) RecentAutomationRuns(limit int) ([]store.AutomationRun, error) {
	return f.recent, nil
}

type fakeProcessor struct {
	batches [][]ingest.RawApplicant
	stats   pipeline.Stats
}

func (f *fakeProcessor) ProcessBatch(applicants []ingest.RawApplicant) *pipeline.Stats {
	f.batches = append(f.batches, applicants)
	s := f.stats
	s.ProcessedApplicants = len(applicants)
	return &s
}

func testConfig(boroughs ...string) Config {
	return Config{
		Boroughs:       boroughs,
		DaysBack:       7,
		BatchSize:      50,
		RateLimitDelay: 0,
		CronExpr:       "0 2 * * 0",
	}
}

func TestRunDiscoveryFiltersSeenApplications(t *testing.T) {
	searcher := &fakeSearcher{apps: map[string][]planning.Application{
		"Camden": {
			{Reference: "24/0001", ApplicantName: "Acme Developments Ltd"},
			{Reference: "24/0002", ApplicantName: "Zenith Estates Ltd"},
		},
	}}
	runs := newFakeRunStore()
	runs.seen["Camden|24/0001"] = true
	proc := &fakeProcessor{}

	s := New(testConfig("Camden"), searcher, runs, proc, zap.NewNop())
	stats, err := s.RunDiscovery()
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ApplicationsDiscovered)
	assert.Equal(t, 1, stats.BoroughsProcessed)
	require.Len(t, proc.batches, 1)
	require.Len(t, proc.batches[0], 1)
	assert.Equal(t, "24/0002", proc.batches[0][0].PlanningReference)
	assert.Equal(t, "Camden", proc.batches[0][0].Borough)
}

func TestRunDiscoveryApplicantNamePriority(t *testing.T) {
	searcher := &fakeSearcher{apps: map[string][]planning.Application{
		"Camden": {
			{Reference: "24/0001", ApplicantName: "Primary Ltd", Name: "Secondary", Organisation: "Tertiary"},
			{Reference: "24/0002", Name: "Secondary Ltd", Organisation: "Tertiary"},
			{Reference: "24/0003", Organisation: "Tertiary Ltd"},
			{Reference: "24/0004"}, // nameless, dropped
		},
	}}
	proc := &fakeProcessor{}

	s := New(testConfig("Camden"), searcher, newFakeRunStore(), proc, zap.NewNop())
	_, err := s.RunDiscovery()
	require.NoError(t, err)

	require.Len(t, proc.batches, 1)
	names := make([]string, 0, len(proc.batches[0]))
	for _, a := range proc.batches[0] {
		names = append(names, a.ApplicantName)
	}
	assert.Equal(t, []string{"Primary Ltd", "Secondary Ltd", "Tertiary Ltd"}, names)
}

func TestRunDiscoveryPersistsApplicationsOnDiscovery(t *testing.T) {
	searcher := &fakeSearcher{apps: map[string][]planning.Application{
		"Camden": {
			{Reference: "24/0001", ApplicantName: "Acme Developments Ltd", Raw: []byte(`{"reference":"24/0001"}`)},
			{Reference: "24/0002"}, // no applicant name
		},
	}}
	runs := newFakeRunStore()
	proc := &fakeProcessor{}
	s := New(testConfig("Camden"), searcher, runs, proc, zap.NewNop())

	_, err := s.RunDiscovery()
	require.NoError(t, err)

	// Both applications are saved at discovery time, raw payload included.
	require.Len(t, runs.savedApps, 2)
	assert.Equal(t, "24/0001", runs.savedApps[0].Reference)
	assert.JSONEq(t, `{"reference":"24/0001"}`, string(runs.savedApps[0].RawData))
	assert.Equal(t, "24/0002", runs.savedApps[1].Reference)

	// The nameless application now counts as seen: a second run neither
	// saves it again nor feeds anything back through the processor.
	_, err = s.RunDiscovery()
	require.NoError(t, err)
	assert.Len(t, runs.savedApps, 2)
	assert.Len(t, proc.batches, 1)
}

func TestRunDiscoveryUppercasesReferences(t *testing.T) {
	searcher := &fakeSearcher{apps: map[string][]planning.Application{
		"Camden": {
			{Reference: "24/0001/full", ApplicantName: "Acme Developments Ltd"},
			{Reference: "24/0002/full", ApplicantName: "Zenith Estates Ltd"},
		},
	}}
	runs := newFakeRunStore()
	runs.seen["Camden|24/0001/FULL"] = true // persisted form is uppercased
	proc := &fakeProcessor{}
	s := New(testConfig("Camden"), searcher, runs, proc, zap.NewNop())

	_, err := s.RunDiscovery()
	require.NoError(t, err)

	require.Len(t, proc.batches, 1)
	require.Len(t, proc.batches[0], 1)
	assert.Equal(t, "24/0002/FULL", proc.batches[0][0].PlanningReference)
	require.Len(t, runs.savedApps, 1)
	assert.Equal(t, "24/0002/FULL", runs.savedApps[0].Reference)
}

func TestRunDiscoveryBatching(t *testing.T) {
	var apps []planning.Application
	for i := 0; i < 5; i++ {
		apps = append(apps, planning.Application{
			Reference:     fmt.Sprintf("24/%04d", i),
			ApplicantName: "Acme Developments Ltd",
		})
	}
	searcher := &fakeSearcher{apps: map[string][]planning.Application{"Camden": apps}}
	proc := &fakeProcessor{}

	cfg := testConfig("Camden")
	cfg.BatchSize = 2
	s := New(cfg, searcher, newFakeRunStore(), proc, zap.NewNop())
	_, err := s.RunDiscovery()
	require.NoError(t, err)

	require.Len(t, proc.batches, 3)
	assert.Len(t, proc.batches[0], 2)
	assert.Len(t, proc.batches[2], 1)
}

func TestRunDiscoveryStatusCompleted(t *testing.T) {
	searcher := &fakeSearcher{apps: map[string][]planning.Application{
		"Camden": {{Reference: "24/0001", ApplicantName: "Acme Developments Ltd"}},
	}}
	runs := newFakeRunStore()

	s := New(testConfig("Camden"), searcher, runs, &fakeProcessor{}, zap.NewNop())
	_, err := s.RunDiscovery()
	require.NoError(t, err)

	assert.Equal(t, store.RunStatusCompleted, runs.completedWith)
	assert.Equal(t, 1, runs.createdRuns)
}

func TestRunDiscoveryStatusPartial(t *testing.T) {
	searcher := &fakeSearcher{
		apps: map[string][]planning.Application{
			"Camden": {{Reference: "24/0001", ApplicantName: "Acme Developments Ltd"}},
		},
		errFor: map[string]error{"Islington": fmt.Errorf("service unavailable")},
	}
	runs := newFakeRunStore()

	s := New(testConfig("Camden", "Islington"), searcher, runs, &fakeProcessor{}, zap.NewNop())
	stats, err := s.RunDiscovery()
	require.NoError(t, err)

	assert.Equal(t, store.RunStatusPartial, runs.completedWith)
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Contains(t, runs.updatedStats.ErrorDetails, "Islington")
}

func TestRunDiscoveryStatusFailedWhenNothingProcessed(t *testing.T) {
	searcher := &fakeSearcher{} // every borough comes back empty
	runs := newFakeRunStore()

	s := New(testConfig("Camden"), searcher, runs, &fakeProcessor{}, zap.NewNop())
	_, err := s.RunDiscovery()
	require.NoError(t, err)

	assert.Equal(t, store.RunStatusFailed, runs.completedWith)
}

func TestRunDiscoveryRefusesOverlap(t *testing.T) {
	s := New(testConfig("Camden"), &fakeSearcher{}, newFakeRunStore(), &fakeProcessor{}, zap.NewNop())
	s.running.Store(true)

	_, err := s.RunDiscovery()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStartRecoversStaleRuns(t *testing.T) {
	runs := newFakeRunStore()
	s := New(testConfig("Camden"), &fakeSearcher{}, runs, &fakeProcessor{}, zap.NewNop())

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, 1, runs.failedCalls)
}
