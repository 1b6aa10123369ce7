package api

import (
	"context"
	"time"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/resilience"
	"github.com/citewatch/tracker/internal/store"
)

// quickStore is a discard-everything store.Store, letting QuickTest run
// the full C1->C2->C3 tracking pipeline through tracking.Engine without
// persisting a Citation or touching a real project/keyword, per spec
// §6's QuickTest operation ("does not persist a Citation").
type quickStore struct{}

func (quickStore) CreateProject(context.Context, *model.Project) error       { return nil }
func (quickStore) GetProject(context.Context, string) (*model.Project, error) {
	return nil, store.ErrNotFound
}
func (quickStore) UpdateProject(context.Context, *model.Project) error { return nil }
func (quickStore) ArchiveProject(context.Context, string) error        { return nil }
func (quickStore) DeleteProject(context.Context, string) error         { return nil }
func (quickStore) ListActiveProjects(context.Context) ([]model.Project, error) {
	return nil, nil
}

func (quickStore) CreateKeyword(context.Context, *model.Keyword) error { return nil }
func (quickStore) GetKeyword(context.Context, string) (*model.Keyword, error) {
	return nil, store.ErrNotFound
}
func (quickStore) UpdateKeyword(context.Context, *model.Keyword) error { return nil }
func (quickStore) DeleteKeyword(context.Context, string) error         { return nil }
func (quickStore) ListActiveKeywords(context.Context, string) ([]model.Keyword, error) {
	return nil, nil
}
func (quickStore) SetKeywordLastTrackedAt(context.Context, string, time.Time) error { return nil }

func (quickStore) CreateCitation(context.Context, *model.Citation) error { return nil }
func (quickStore) BackfillCitations(context.Context, []model.Citation) (int64, error) {
	return 0, nil
}
func (quickStore) LatestCitation(context.Context, string, model.Provider, time.Time) (*model.Citation, error) {
	return nil, nil
}
func (quickStore) ListCitationsInWindow(context.Context, store.CitationWindow) ([]model.Citation, error) {
	return nil, nil
}
func (quickStore) DeleteCitationsOlderThan(context.Context, time.Time) (int, error) { return 0, nil }

func (quickStore) EnqueueJob(_ context.Context, j *model.TrackingJob) (*model.TrackingJob, bool, error) {
	return j, true, nil
}
func (quickStore) ClaimJob(context.Context, string, time.Time) (bool, error) { return true, nil }
func (quickStore) GetJob(context.Context, string) (*model.TrackingJob, error) {
	return nil, store.ErrNotFound
}
func (quickStore) UpdateJob(context.Context, *model.TrackingJob) error { return nil }
func (quickStore) CountJobsSince(context.Context, string, time.Time) ([]store.JobCount, error) {
	return nil, nil
}
func (quickStore) ReapStaleProcessingJobs(context.Context, time.Time) (int, error) { return 0, nil }
func (quickStore) DeleteJobsOlderThan(context.Context, time.Time) (int, error)     { return 0, nil }

func (quickStore) UpsertDailyMetric(context.Context, *model.DailyMetric) error { return nil }
func (quickStore) ListDailyMetrics(context.Context, string, time.Time, time.Time, model.Provider) ([]model.DailyMetric, error) {
	return nil, nil
}

func (quickStore) InsertVisibilityScore(context.Context, *model.VisibilityScore) error { return nil }
func (quickStore) LatestVisibilityScore(context.Context, string) (*model.VisibilityScore, error) {
	return nil, store.ErrNotFound
}
func (quickStore) ScoreHistory(context.Context, string, time.Time) ([]model.VisibilityScore, error) {
	return nil, nil
}

func (quickStore) CreateAlert(context.Context, *model.Alert) error { return nil }
func (quickStore) ListAlerts(context.Context, store.AlertFilter) ([]model.Alert, error) {
	return nil, nil
}
func (quickStore) UnreadAlertCount(context.Context, string) (int, error) { return 0, nil }
func (quickStore) MarkAlertRead(context.Context, string) error           { return nil }
func (quickStore) MarkAllAlertsRead(context.Context, string) error       { return nil }
func (quickStore) DeleteAlert(context.Context, string) error             { return nil }
func (quickStore) DeleteAlertsOlderThan(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (quickStore) InsertDLQEntry(context.Context, *resilience.DLQEntry) error { return nil }
func (quickStore) ListDLQEntries(context.Context, resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	return nil, nil
}

func (quickStore) UpsertProviderCredential(context.Context, *model.ProviderCredential) error {
	return nil
}
func (quickStore) ListProviderCredentials(context.Context) ([]model.ProviderCredential, error) {
	return nil, nil
}

func (quickStore) Migrate(context.Context) error { return nil }
func (quickStore) Close() error                  { return nil }

// QuickStore is the discard-everything store.Store used to build the
// QuickTest tracking.Engine (Deps.QuickEngine): same registry and
// sentiment wiring as the persisting engine, no alerting, nothing it
// touches outlives the request.
var QuickStore store.Store = quickStore{}
