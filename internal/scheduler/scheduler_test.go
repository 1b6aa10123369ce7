package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/store"
)

type fakeStore struct {
	store.Store
	mu              sync.Mutex
	keywords        []model.Keyword
	existingJobKeys map[string]bool
	enqueued        []*model.TrackingJob
	insertedScores  []*model.VisibilityScore
	reapedCutoff    time.Time
	citationsCutoff time.Time
	alertsCutoff    time.Time
	jobsCutoff      time.Time
	activeProjects  []model.Project
}

func jobKey(j *model.TrackingJob) string {
	return j.ProjectID + "|" + j.KeywordID + "|" + string(j.Platform)
}

func (f *fakeStore) ListActiveKeywords(ctx context.Context, projectID string) ([]model.Keyword, error) {
	return f.keywords, nil
}

func (f *fakeStore) ListActiveProjects(ctx context.Context) ([]model.Project, error) {
	return f.activeProjects, nil
}

// EnqueueJob and InsertVisibilityScore run concurrently once the daily
// tracker and score recompute ticks fan out across projects, so both guard
// their shared slices with mu.
func (f *fakeStore) EnqueueJob(ctx context.Context, j *model.TrackingJob) (*model.TrackingJob, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existingJobKeys[jobKey(j)] {
		return j, false, nil
	}
	f.enqueued = append(f.enqueued, j)
	return j, true, nil
}

func (f *fakeStore) InsertVisibilityScore(ctx context.Context, s *model.VisibilityScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertedScores = append(f.insertedScores, s)
	return nil
}

func (f *fakeStore) ReapStaleProcessingJobs(ctx context.Context, olderThan time.Time) (int, error) {
	f.reapedCutoff = olderThan
	return 3, nil
}

func (f *fakeStore) DeleteCitationsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	f.citationsCutoff = cutoff
	return 1, nil
}

func (f *fakeStore) DeleteAlertsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	f.alertsCutoff = cutoff
	return 2, nil
}

func (f *fakeStore) DeleteJobsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	f.jobsCutoff = cutoff
	return 4, nil
}

func noProviders() []model.Provider { return nil }

func TestScheduleJobs_ExpandsActiveKeywordsAcrossPlatforms(t *testing.T) {
	fs := &fakeStore{
		keywords:        []model.Keyword{{ID: "k1"}, {ID: "k2"}},
		existingJobKeys: map[string]bool{},
	}
	p := New(fs, noProviders, "")

	created, duplicates, err := p.ScheduleJobs(context.Background(), ScheduleRequest{
		ProjectID: "p1",
		Platforms: []model.Provider{model.ProviderChatGPT, model.ProviderClaude},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, created)
	assert.Equal(t, 0, duplicates)
	assert.Len(t, fs.enqueued, 4)
}

func TestScheduleJobs_DeduplicatesExistingNonTerminalJobs(t *testing.T) {
	fs := &fakeStore{
		keywords: []model.Keyword{{ID: "k1"}},
		existingJobKeys: map[string]bool{
			"p1|k1|chatgpt": true,
		},
	}
	p := New(fs, noProviders, "")

	created, duplicates, err := p.ScheduleJobs(context.Background(), ScheduleRequest{
		ProjectID: "p1",
		Platforms: []model.Provider{model.ProviderChatGPT},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 1, duplicates)
}

func TestScheduleJobs_FallsBackToEnabledPlatformsWhenNoneRequested(t *testing.T) {
	fs := &fakeStore{keywords: []model.Keyword{{ID: "k1"}}, existingJobKeys: map[string]bool{}}
	p := New(fs, func() []model.Provider { return []model.Provider{model.ProviderGemini, model.ProviderGrok} }, "")

	created, _, err := p.ScheduleJobs(context.Background(), ScheduleRequest{ProjectID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 2, created)
}

func TestTrackProjectAsync_ReturnsHandleWithCounts(t *testing.T) {
	fs := &fakeStore{
		keywords:        []model.Keyword{{ID: "k1"}},
		existingJobKeys: map[string]bool{},
	}
	p := New(fs, func() []model.Provider { return []model.Provider{model.ProviderChatGPT} }, "")

	handle, err := p.TrackProjectAsync(context.Background(), "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, "p1", handle.ProjectID)
	assert.Equal(t, 1, handle.JobsEnqueued)
	assert.NotEmpty(t, handle.BatchID)
}

func TestDailyCronSpec_ParsesHHMM(t *testing.T) {
	spec, err := dailyCronSpec("14:30")
	require.NoError(t, err)
	assert.Equal(t, "30 14 * * *", spec)
}

func TestDailyCronSpec_RejectsMalformed(t *testing.T) {
	_, err := dailyCronSpec("not-a-time")
	assert.Error(t, err)
}

func TestReapStaleJobs_PassesCutoffDerivedFromOlderThan(t *testing.T) {
	fs := &fakeStore{}
	p := New(fs, noProviders, "")

	before := time.Now().Add(-time.Hour)
	n, err := p.ReapStaleJobs(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, fs.reapedCutoff.Before(time.Now()))
	assert.True(t, fs.reapedCutoff.After(before))
}

// fakeScoringOps satisfies scoringOps and records calls under a mutex
// since runDailyTick/runScoreRecomputeTick now fan out across projects.
type fakeScoringOps struct {
	mu           sync.Mutex
	metricsCalls []string
	scoreCalls   []string
	score        *model.VisibilityScore
	scoreErr     error
}

func (f *fakeScoringOps) GenerateDailyMetrics(ctx context.Context, projectID string, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metricsCalls = append(f.metricsCalls, projectID)
	return nil
}

func (f *fakeScoringOps) ComputeVisibilityScore(ctx context.Context, projectID string, asOf time.Time) (*model.VisibilityScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scoreCalls = append(f.scoreCalls, projectID)
	if f.scoreErr != nil {
		return nil, f.scoreErr
	}
	if f.score != nil {
		return f.score, nil
	}
	return &model.VisibilityScore{ProjectID: projectID}, nil
}

func TestRunDailyTick_GeneratesMetricsThenSchedulesEachProject(t *testing.T) {
	fs := &fakeStore{
		activeProjects:  []model.Project{{ID: "p1"}, {ID: "p2"}},
		keywords:        []model.Keyword{{ID: "k1"}},
		existingJobKeys: map[string]bool{},
	}
	gen := &fakeScoringOps{}
	p := New(fs, func() []model.Provider { return []model.Provider{model.ProviderChatGPT} }, "")
	p.SetScoringService(gen)

	p.runDailyTick(context.Background())

	assert.ElementsMatch(t, []string{"p1", "p2"}, gen.metricsCalls)
	assert.Len(t, fs.enqueued, 2)
}

func TestRunDailyTick_SkipsMetricsWhenGeneratorUnset(t *testing.T) {
	fs := &fakeStore{
		activeProjects:  []model.Project{{ID: "p1"}},
		keywords:        []model.Keyword{{ID: "k1"}},
		existingJobKeys: map[string]bool{},
	}
	p := New(fs, func() []model.Provider { return []model.Provider{model.ProviderChatGPT} }, "")

	p.runDailyTick(context.Background())

	assert.Len(t, fs.enqueued, 1)
}

func TestRunScoreRecomputeTick_ComputesAndPersistsForEachActiveProject(t *testing.T) {
	fs := &fakeStore{
		activeProjects: []model.Project{{ID: "p1"}, {ID: "p2"}},
	}
	scoring := &fakeScoringOps{}
	p := New(fs, noProviders, "")
	p.SetScoringService(scoring)

	p.runScoreRecomputeTick(context.Background())

	assert.ElementsMatch(t, []string{"p1", "p2"}, scoring.scoreCalls)
	assert.Len(t, fs.insertedScores, 2)
}

func TestRunScoreRecomputeTick_NoopsWhenScoringUnset(t *testing.T) {
	fs := &fakeStore{
		activeProjects: []model.Project{{ID: "p1"}},
	}
	p := New(fs, noProviders, "")

	p.runScoreRecomputeTick(context.Background())

	assert.Empty(t, fs.insertedScores)
}

func TestRunRetentionTick_SweepsAndReapsUsingConfiguredWindows(t *testing.T) {
	fs := &fakeStore{}
	p := New(fs, noProviders, "")
	p.SetRetentionConfig(RetentionConfig{CitationsDays: 90, AlertsDays: 60, JobsDays: 30, StaleAfter: time.Hour})

	before := time.Now().Add(-2 * time.Hour)
	p.runRetentionTick(context.Background())

	assert.False(t, fs.citationsCutoff.IsZero())
	assert.False(t, fs.alertsCutoff.IsZero())
	assert.False(t, fs.jobsCutoff.IsZero())
	assert.True(t, fs.reapedCutoff.After(before))
}

func TestRunRetentionSweep_DeletesAcrossAllThreeTables(t *testing.T) {
	fs := &fakeStore{}
	p := New(fs, noProviders, "")

	err := p.RunRetentionSweep(context.Background(), 90, 60, 30)
	require.NoError(t, err)
	assert.False(t, fs.citationsCutoff.IsZero())
	assert.False(t, fs.alertsCutoff.IsZero())
	assert.False(t, fs.jobsCutoff.IsZero())
}
