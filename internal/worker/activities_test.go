package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/resilience"
	"github.com/citewatch/tracker/internal/store"
	"github.com/citewatch/tracker/internal/tracking"
)

type fakeStore struct {
	store.Store
	job           *model.TrackingJob
	keyword       *model.Keyword
	project       *model.Project
	claimResult   bool
	claimErr      error
	updated       []*model.TrackingJob
	getJobErr     error
	priorCitation *model.Citation
	dlqEntries    []*resilience.DLQEntry
}

func (f *fakeStore) GetJob(ctx context.Context, id string) (*model.TrackingJob, error) {
	if f.getJobErr != nil {
		return nil, f.getJobErr
	}
	return f.job, nil
}
func (f *fakeStore) ClaimJob(ctx context.Context, jobID string, startedAt time.Time) (bool, error) {
	return f.claimResult, f.claimErr
}
func (f *fakeStore) GetKeyword(ctx context.Context, id string) (*model.Keyword, error) {
	return f.keyword, nil
}
func (f *fakeStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return f.project, nil
}
func (f *fakeStore) UpdateJob(ctx context.Context, j *model.TrackingJob) error {
	f.updated = append(f.updated, j)
	f.job = j
	return nil
}
func (f *fakeStore) LatestCitation(ctx context.Context, keywordID string, platform model.Provider, before time.Time) (*model.Citation, error) {
	return f.priorCitation, nil
}
func (f *fakeStore) CreateCitation(ctx context.Context, c *model.Citation) error {
	return nil
}
func (f *fakeStore) InsertDLQEntry(ctx context.Context, e *resilience.DLQEntry) error {
	f.dlqEntries = append(f.dlqEntries, e)
	return nil
}
func (f *fakeStore) ListDLQEntries(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	return nil, nil
}

type fakeAdapter struct {
	name   model.Provider
	answer *provideradapter.Answer
	err    error
}

func (a *fakeAdapter) Name() model.Provider { return a.name }
func (a *fakeAdapter) Query(ctx context.Context, queryText string, opts provideradapter.Options) (*provideradapter.Answer, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.answer, nil
}
func (a *fakeAdapter) RateLimitStatus() provideradapter.RateLimitStatus { return provideradapter.RateLimitStatus{} }
func (a *fakeAdapter) Healthcheck(ctx context.Context) provideradapter.HealthStatus {
	return provideradapter.HealthStatus{OK: true}
}

func newEngine(fs *fakeStore, adapter provideradapter.Adapter) *tracking.Engine {
	registry := provideradapter.NewRegistry()
	if adapter != nil {
		registry.Register(adapter)
	}
	return tracking.New(registry, fs, nil, nil)
}

func testJob() *model.TrackingJob {
	return &model.TrackingJob{ID: "job-1", ProjectID: "p1", KeywordID: "k1", Platform: model.ProviderChatGPT, Status: model.JobPending}
}

func TestTick_TerminalJobShortCircuits(t *testing.T) {
	fs := &fakeStore{job: &model.TrackingJob{ID: "job-1", Status: model.JobCompleted, CitationFound: true}}
	a := &Activities{Store: fs, Engine: newEngine(fs, nil), MaxAttempts: 3}

	res, err := a.Tick(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, res.Status)
	assert.True(t, res.CitationFound)
	assert.Empty(t, fs.updated)
}

func TestTick_NotClaimedReturnsProcessingWithoutError(t *testing.T) {
	fs := &fakeStore{job: testJob(), claimResult: false}
	a := &Activities{Store: fs, Engine: newEngine(fs, nil), MaxAttempts: 3}

	res, err := a.Tick(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobProcessing, res.Status)
}

func TestTick_SuccessMarksCompleted(t *testing.T) {
	fs := &fakeStore{
		job:         testJob(),
		keyword:     &model.Keyword{ID: "k1", KeywordText: "best widget"},
		project:     &model.Project{ID: "p1", PrimaryDomain: "acme.com"},
		claimResult: true,
	}
	adapter := &fakeAdapter{name: model.ProviderChatGPT, answer: &provideradapter.Answer{
		ResponseText: "Acme.com is great.",
		Citations:    []provideradapter.RawCitation{{URL: "https://acme.com", Rank: 1}},
	}}
	a := &Activities{Store: fs, Engine: newEngine(fs, adapter), MaxAttempts: 3}

	res, err := a.Tick(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, res.Status)
	assert.True(t, res.CitationFound)
	require.Len(t, fs.updated, 1)
	assert.Equal(t, model.JobCompleted, fs.updated[0].Status)
}

func TestTick_FailureWithNoRetryPolicyConfiguredMarksFailed(t *testing.T) {
	fs := &fakeStore{
		job:         testJob(),
		keyword:     &model.Keyword{ID: "k1", KeywordText: "best widget"},
		project:     &model.Project{ID: "p1", PrimaryDomain: "acme.com"},
		claimResult: true,
	}
	adapter := &fakeAdapter{name: model.ProviderChatGPT, err: provideradapter.NewError(provideradapter.ErrTransport, "boom", nil)}
	a := &Activities{Store: fs, Engine: newEngine(fs, adapter), MaxAttempts: 0}

	res, err := a.Tick(context.Background(), "job-1")
	assert.Error(t, err)
	assert.Equal(t, model.JobFailed, res.Status) // MaxAttempts<=0 => finalAttempt() is always true
	require.Len(t, fs.updated, 1)
}

func TestTick_FailureOutsideActivityContextMarksFailed(t *testing.T) {
	fs := &fakeStore{
		job:         testJob(),
		keyword:     &model.Keyword{ID: "k1", KeywordText: "best widget"},
		project:     &model.Project{ID: "p1", PrimaryDomain: "acme.com"},
		claimResult: true,
	}
	adapter := &fakeAdapter{name: model.ProviderChatGPT, err: provideradapter.NewError(provideradapter.ErrTransport, "boom", nil)}
	// MaxAttempts > 0 forces finalAttempt() to call activity.GetInfo, which
	// panics outside a real Temporal activity worker; the recover() there
	// should still leave the job in a terminal, non-lost state.
	a := &Activities{Store: fs, Engine: newEngine(fs, adapter), MaxAttempts: 3}

	res, err := a.Tick(context.Background(), "job-1")
	assert.Error(t, err)
	assert.Equal(t, model.JobFailed, res.Status)
}

func TestTick_KeywordLookupFailureMarksJobFailedWithoutRunningEngine(t *testing.T) {
	fs := &fakeStore{job: testJob(), claimResult: true}
	a := &Activities{Store: &erroringKeywordStore{fakeStore: fs}, Engine: newEngine(fs, nil), MaxAttempts: 3}

	res, err := a.Tick(context.Background(), "job-1")
	assert.Error(t, err)
	assert.Equal(t, model.JobFailed, res.Status)
}

type erroringKeywordStore struct {
	*fakeStore
}

func (e *erroringKeywordStore) GetKeyword(ctx context.Context, id string) (*model.Keyword, error) {
	return nil, errors.New("keyword not found")
}
