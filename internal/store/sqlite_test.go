package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citewatch/tracker/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func mustProject(t *testing.T, st *SQLiteStore) *model.Project {
	t.Helper()
	p := &model.Project{OrganizationID: "org-1", PrimaryDomain: "acme.com", IsActive: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateProject(context.Background(), p))
	return p
}

func mustKeyword(t *testing.T, st *SQLiteStore, projectID string) *model.Keyword {
	t.Helper()
	k := &model.Keyword{ProjectID: projectID, KeywordText: "best crm software", PriorityLevel: 3, FunnelStage: model.FunnelConsideration, IsActive: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateKeyword(context.Background(), k))
	return k
}

// --- Projects ---

func TestSQLite_CreateProject_And_GetProject(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := &model.Project{OrganizationID: "org-1", PrimaryDomain: "acme.com", CompetitorDomains: []string{"rival.com"}, IsActive: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateProject(ctx, p))
	assert.NotEmpty(t, p.ID)

	fetched, err := st.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme.com", fetched.PrimaryDomain)
	assert.Equal(t, []string{"rival.com"}, fetched.CompetitorDomains)
}

func TestSQLite_GetProject_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetProject(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ArchiveProject(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)

	require.NoError(t, st.ArchiveProject(ctx, p.ID))

	active, err := st.ListActiveProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSQLite_ListActiveProjects(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	mustProject(t, st)
	mustProject(t, st)

	active, err := st.ListActiveProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

// --- Keywords ---

func TestSQLite_CreateKeyword_And_ListActive(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)
	mustKeyword(t, st, p.ID)

	kws, err := st.ListActiveKeywords(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, kws, 1)
	assert.Equal(t, "best crm software", kws[0].KeywordText)
	assert.Equal(t, model.FunnelConsideration, kws[0].FunnelStage)
}

func TestSQLite_SetKeywordLastTrackedAt(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)
	k := mustKeyword(t, st, p.ID)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.SetKeywordLastTrackedAt(ctx, k.ID, now))

	fetched, err := st.GetKeyword(ctx, k.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.LastTrackedAt)
	assert.WithinDuration(t, now, *fetched.LastTrackedAt, time.Second)
}

func TestSQLite_DeleteKeyword(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)
	k := mustKeyword(t, st, p.ID)

	require.NoError(t, st.DeleteKeyword(ctx, k.ID))
	_, err := st.GetKeyword(ctx, k.ID)
	require.Error(t, err)
}

// --- Citations ---

func TestSQLite_CreateCitation_And_LatestCitation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)
	k := mustKeyword(t, st, p.ID)

	pos := 2
	c := &model.Citation{
		ProjectID: p.ID, KeywordID: k.ID, Platform: model.ProviderChatGPT,
		TrackedAt: time.Now().UTC(), DomainMentioned: true, CitationPosition: &pos,
		FullResponseText: "Acme is a top CRM.", ResponseSummary: "Acme is a top CRM.",
		Sentiment: model.SentimentPositive, ConfidenceScore: 0.8, WordCount: 5,
		TotalSourcesCited: 1,
	}
	require.NoError(t, st.CreateCitation(ctx, c))

	later := time.Now().UTC().Add(time.Minute)
	latest, err := st.LatestCitation(ctx, k.ID, model.ProviderChatGPT, later)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, *latest.CitationPosition)
}

func TestSQLite_LatestCitation_None(t *testing.T) {
	st := newTestSQLiteStore(t)
	got, err := st.LatestCitation(context.Background(), "no-such-keyword", model.ProviderClaude, time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_CreateCitation_RejectsInvalid(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)
	k := mustKeyword(t, st, p.ID)

	pos := 1
	c := &model.Citation{
		ProjectID: p.ID, KeywordID: k.ID, Platform: model.ProviderGemini,
		TrackedAt: time.Now().UTC(), DomainMentioned: false, CitationPosition: &pos,
		FullResponseText: "no mention", ResponseSummary: "no mention",
		Sentiment: model.SentimentNeutral, TotalSourcesCited: 0,
	}
	err := st.CreateCitation(ctx, c)
	require.Error(t, err)
}

func TestSQLite_ListCitationsInWindow(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)
	k := mustKeyword(t, st, p.ID)

	now := time.Now().UTC()
	c1 := &model.Citation{ProjectID: p.ID, KeywordID: k.ID, Platform: model.ProviderChatGPT, TrackedAt: now.Add(-2 * time.Hour),
		DomainMentioned: false, FullResponseText: "x", ResponseSummary: "x", Sentiment: model.SentimentNeutral}
	c2 := &model.Citation{ProjectID: p.ID, KeywordID: k.ID, Platform: model.ProviderChatGPT, TrackedAt: now,
		DomainMentioned: false, FullResponseText: "y", ResponseSummary: "y", Sentiment: model.SentimentNeutral}
	require.NoError(t, st.CreateCitation(ctx, c1))
	require.NoError(t, st.CreateCitation(ctx, c2))

	got, err := st.ListCitationsInWindow(ctx, CitationWindow{ProjectID: p.ID, From: now.Add(-time.Hour), To: now.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "y", got[0].FullResponseText)
}

func TestSQLite_DeleteCitationsOlderThan(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)
	k := mustKeyword(t, st, p.ID)

	old := &model.Citation{ProjectID: p.ID, KeywordID: k.ID, Platform: model.ProviderChatGPT, TrackedAt: time.Now().Add(-400 * 24 * time.Hour),
		DomainMentioned: false, FullResponseText: "old", ResponseSummary: "old", Sentiment: model.SentimentNeutral}
	require.NoError(t, st.CreateCitation(ctx, old))

	n, err := st.DeleteCitationsOlderThan(ctx, time.Now().Add(-365*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// --- Tracking jobs ---

func TestSQLite_EnqueueJob_DedupesNonTerminal(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)
	k := mustKeyword(t, st, p.ID)

	scheduledAt := time.Now().UTC().Truncate(time.Second)
	j1 := &model.TrackingJob{ProjectID: p.ID, KeywordID: k.ID, Platform: model.ProviderChatGPT, ScheduledAt: scheduledAt}
	got1, created1, err := st.EnqueueJob(ctx, j1)
	require.NoError(t, err)
	assert.True(t, created1)

	j2 := &model.TrackingJob{ProjectID: p.ID, KeywordID: k.ID, Platform: model.ProviderChatGPT, ScheduledAt: scheduledAt}
	got2, created2, err := st.EnqueueJob(ctx, j2)
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, got1.ID, got2.ID)
}

func TestSQLite_ClaimJob(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)
	k := mustKeyword(t, st, p.ID)

	j := &model.TrackingJob{ProjectID: p.ID, KeywordID: k.ID, Platform: model.ProviderChatGPT, ScheduledAt: time.Now().UTC()}
	created, _, err := st.EnqueueJob(ctx, j)
	require.NoError(t, err)

	claimed, err := st.ClaimJob(ctx, created.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, claimed)

	claimedAgain, err := st.ClaimJob(ctx, created.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, claimedAgain, "a processing job cannot be claimed twice")
}

func TestSQLite_UpdateJob_And_GetJob(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)
	k := mustKeyword(t, st, p.ID)

	j := &model.TrackingJob{ProjectID: p.ID, KeywordID: k.ID, Platform: model.ProviderChatGPT, ScheduledAt: time.Now().UTC()}
	created, _, err := st.EnqueueJob(ctx, j)
	require.NoError(t, err)

	created.Status = model.JobCompleted
	created.CitationFound = true
	require.NoError(t, st.UpdateJob(ctx, created))

	fetched, err := st.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, fetched.Status)
	assert.True(t, fetched.CitationFound)
}

func TestSQLite_ReapStaleProcessingJobs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)
	k := mustKeyword(t, st, p.ID)

	j := &model.TrackingJob{ProjectID: p.ID, KeywordID: k.ID, Platform: model.ProviderChatGPT, ScheduledAt: time.Now().UTC()}
	created, _, err := st.EnqueueJob(ctx, j)
	require.NoError(t, err)
	staleStart := time.Now().UTC().Add(-time.Hour)
	_, err = st.ClaimJob(ctx, created.ID, staleStart)
	require.NoError(t, err)

	n, err := st.ReapStaleProcessingJobs(ctx, time.Now().UTC().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fetched, err := st.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobRetrying, fetched.Status)
}

func TestSQLite_CountJobsSince(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)
	k := mustKeyword(t, st, p.ID)

	_, _, err := st.EnqueueJob(ctx, &model.TrackingJob{ProjectID: p.ID, KeywordID: k.ID, Platform: model.ProviderChatGPT, ScheduledAt: time.Now().UTC()})
	require.NoError(t, err)

	counts, err := st.CountJobsSince(ctx, p.ID, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, model.JobPending, counts[0].Status)
	assert.Equal(t, 1, counts[0].Count)
}

// --- Daily metrics ---

func TestSQLite_UpsertDailyMetric_IsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)
	date := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m := &model.DailyMetric{ProjectID: p.ID, Date: date, Platform: model.ProviderChatGPT, TotalQueries: 5, Mentions: 3}
	require.NoError(t, st.UpsertDailyMetric(ctx, m))

	m.Mentions = 4
	require.NoError(t, st.UpsertDailyMetric(ctx, m))

	got, err := st.ListDailyMetrics(ctx, p.ID, date.Add(-time.Hour), date.Add(time.Hour), model.ProviderChatGPT)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Mentions)
}

// --- Visibility scores ---

func TestSQLite_InsertVisibilityScore_And_Latest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)

	sc := &model.VisibilityScore{
		ProjectID: p.ID, CalculatedAt: time.Now().UTC(),
		Components: model.ComponentScores{Frequency: 8, Position: 91.75, Diversity: 25, Context: 50, Momentum: 0},
		Overall:    39.225, GradeLetter: model.GradeF,
	}
	require.NoError(t, st.InsertVisibilityScore(ctx, sc))

	latest, err := st.LatestVisibilityScore(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, model.GradeF, latest.GradeLetter)
	assert.InDelta(t, 39.225, latest.Overall, 0.001)
}

func TestSQLite_LatestVisibilityScore_None(t *testing.T) {
	st := newTestSQLiteStore(t)
	got, err := st.LatestVisibilityScore(context.Background(), "no-such-project")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Alerts ---

func TestSQLite_CreateAlert_And_ListAlerts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)

	a := &model.Alert{ProjectID: p.ID, OrganizationID: "org-1", AlertType: model.AlertNewCitation,
		Severity: model.SeverityInfo, Title: "New citation", Description: "desc", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateAlert(ctx, a))

	alerts, err := st.ListAlerts(ctx, AlertFilter{ProjectID: p.ID})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertNewCitation, alerts[0].AlertType)
}

func TestSQLite_MarkAlertRead_And_UnreadCount(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)

	a := &model.Alert{ProjectID: p.ID, OrganizationID: "org-1", AlertType: model.AlertLostCitation,
		Severity: model.SeverityWarning, Title: "Lost citation", Description: "desc", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateAlert(ctx, a))

	n, err := st.UnreadAlertCount(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, st.MarkAlertRead(ctx, a.ID))
	n, err = st.UnreadAlertCount(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLite_MarkAllAlertsRead(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.CreateAlert(ctx, &model.Alert{ProjectID: p.ID, OrganizationID: "org-1",
			AlertType: model.AlertPositionChange, Severity: model.SeverityInfo, Title: "t", Description: "d", CreatedAt: time.Now().UTC()}))
	}

	require.NoError(t, st.MarkAllAlertsRead(ctx, p.ID))
	n, err := st.UnreadAlertCount(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLite_DeleteAlert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := mustProject(t, st)

	a := &model.Alert{ProjectID: p.ID, OrganizationID: "org-1", AlertType: model.AlertVolumeSpike,
		Severity: model.SeverityCritical, Title: "t", Description: "d", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateAlert(ctx, a))

	require.NoError(t, st.DeleteAlert(ctx, a.ID))
	alerts, err := st.ListAlerts(ctx, AlertFilter{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}
