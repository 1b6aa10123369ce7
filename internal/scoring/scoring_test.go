package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/store"
)

type fakeStore struct {
	store.Store
	keywords        []model.Keyword
	citations       []model.Citation
	upsertedMetrics []*model.DailyMetric
}

func (f *fakeStore) ListActiveKeywords(ctx context.Context, projectID string) ([]model.Keyword, error) {
	return f.keywords, nil
}

func (f *fakeStore) ListCitationsInWindow(ctx context.Context, w store.CitationWindow) ([]model.Citation, error) {
	var out []model.Citation
	for _, c := range f.citations {
		if c.ProjectID == w.ProjectID && !c.TrackedAt.Before(w.From) && c.TrackedAt.Before(w.To) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertDailyMetric(ctx context.Context, m *model.DailyMetric) error {
	f.upsertedMetrics = append(f.upsertedMetrics, m)
	return nil
}

func pos(n int) *int { return &n }

func tenKeywords(projectID string) []model.Keyword {
	kws := make([]model.Keyword, 10)
	for i := range kws {
		kws[i] = model.Keyword{ID: string(rune('a' + i)), ProjectID: projectID, IsActive: true}
	}
	return kws
}

// TestComputeVisibilityScore_ScenarioSix pins the literal example from
// spec §8: 4 self-mentions at positions [1,1,2,3] across two platforms, 10
// active keywords, no sentiment signal, no prior-week citations.
func TestComputeVisibilityScore_ScenarioSix(t *testing.T) {
	asOf := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	projectID := "p1"

	// tracked 20 days before asOf: inside the 30-day scoring window but
	// outside both the current and prior ISO week, so momentum sees 0/0.
	trackedAt := asOf.Add(-20 * 24 * time.Hour)
	citations := []model.Citation{
		{ProjectID: projectID, Platform: model.ProviderChatGPT, TrackedAt: trackedAt, DomainMentioned: true, CitationPosition: pos(1), Sentiment: model.SentimentNeutral},
		{ProjectID: projectID, Platform: model.ProviderChatGPT, TrackedAt: trackedAt, DomainMentioned: true, CitationPosition: pos(1), Sentiment: model.SentimentNeutral},
		{ProjectID: projectID, Platform: model.ProviderClaude, TrackedAt: trackedAt, DomainMentioned: true, CitationPosition: pos(2), Sentiment: model.SentimentNeutral},
		{ProjectID: projectID, Platform: model.ProviderClaude, TrackedAt: trackedAt, DomainMentioned: true, CitationPosition: pos(3), Sentiment: model.SentimentNeutral},
	}

	fs := &fakeStore{keywords: tenKeywords(projectID), citations: citations}
	svc := New(fs)

	score, err := svc.ComputeVisibilityScore(context.Background(), projectID, asOf)
	require.NoError(t, err)

	assert.InDelta(t, 8, score.Components.Frequency, 0.001)
	assert.InDelta(t, 91.75, score.Components.Position, 0.001)
	assert.InDelta(t, 25, score.Components.Diversity, 0.001)
	assert.InDelta(t, 50, score.Components.Context, 0.001)
	assert.InDelta(t, 0, score.Components.Momentum, 0.001)
	assert.InDelta(t, 39.475, score.Overall, 0.001)
	assert.Equal(t, model.GradeF, score.GradeLetter)
}

func TestComputeVisibilityScore_NoSelfCitationsAllZero(t *testing.T) {
	asOf := time.Now()
	fs := &fakeStore{keywords: tenKeywords("p1")}
	svc := New(fs)

	score, err := svc.ComputeVisibilityScore(context.Background(), "p1", asOf)
	require.NoError(t, err)
	assert.Zero(t, score.Components.Frequency)
	assert.Zero(t, score.Components.Position)
	assert.Zero(t, score.Components.Diversity)
	assert.InDelta(t, 50, score.Components.Context, 0.001) // no pos/neg -> neutral default
}

func TestComputeVisibilityScore_MomentumFullGrowthFromZero(t *testing.T) {
	asOf := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC) // Thursday
	projectID := "p1"
	thisWeekStart, _, _ := isoWeekBounds(asOf)

	citations := []model.Citation{
		{ProjectID: projectID, Platform: model.ProviderChatGPT, TrackedAt: thisWeekStart.Add(time.Hour), DomainMentioned: true, CitationPosition: pos(1)},
	}
	fs := &fakeStore{keywords: tenKeywords(projectID), citations: citations}
	svc := New(fs)

	score, err := svc.ComputeVisibilityScore(context.Background(), projectID, asOf)
	require.NoError(t, err)
	assert.InDelta(t, 100, score.Components.Momentum, 0.001)
}

func TestCalculateShareOfVoice_SplitsAmongDomains(t *testing.T) {
	now := time.Now()
	projectID := "p1"
	citations := []model.Citation{
		{ProjectID: projectID, TrackedAt: now.Add(-time.Hour), DomainMentioned: true},
		{ProjectID: projectID, TrackedAt: now.Add(-time.Hour), CompetitorCitations: []model.CompetitorCitation{{Domain: "widgets.com"}}},
		{ProjectID: projectID, TrackedAt: now.Add(-time.Hour), CompetitorCitations: []model.CompetitorCitation{{Domain: "widgets.com"}, {Domain: "gizmo.com"}}},
	}
	fs := &fakeStore{citations: citations}
	svc := New(fs)

	sov, err := svc.CalculateShareOfVoice(context.Background(), projectID, "acme.com", []string{"widgets.com", "gizmo.com"})
	require.NoError(t, err)
	require.Len(t, sov, 3)
	assert.Equal(t, "acme.com", sov[0].Domain)
	assert.InDelta(t, 25, sov[0].SharePct, 0.001)
	assert.InDelta(t, 50, sov[1].SharePct, 0.001)
	assert.InDelta(t, 25, sov[2].SharePct, 0.001)
}

func TestCalculateShareOfVoice_ZeroTotalReportsZeroForAll(t *testing.T) {
	fs := &fakeStore{}
	svc := New(fs)
	sov, err := svc.CalculateShareOfVoice(context.Background(), "p1", "acme.com", []string{"widgets.com"})
	require.NoError(t, err)
	for _, s := range sov {
		assert.Zero(t, s.SharePct)
	}
}

func TestTrendingKeywords_RanksByCitationDeltaDescending(t *testing.T) {
	// TrendingKeywords reads the wall clock, so the week bounds come from it too.
	now := time.Now()
	thisWeekStart, lastWeekStart, _ := isoWeekBounds(now)
	projectID := "p1"

	keywords := []model.Keyword{
		{ID: "k1", ProjectID: projectID, IsActive: true},
		{ID: "k2", ProjectID: projectID, IsActive: true},
	}
	citations := []model.Citation{
		// k1: up this week (2 vs 0 last week)
		{ProjectID: projectID, KeywordID: "k1", TrackedAt: thisWeekStart, DomainMentioned: true, CitationPosition: pos(1)},
		{ProjectID: projectID, KeywordID: "k1", TrackedAt: thisWeekStart, DomainMentioned: true, CitationPosition: pos(1)},
		// k2: down this week (0 vs 2 last week)
		{ProjectID: projectID, KeywordID: "k2", TrackedAt: lastWeekStart.Add(time.Hour), DomainMentioned: true, CitationPosition: pos(3)},
		{ProjectID: projectID, KeywordID: "k2", TrackedAt: lastWeekStart.Add(2 * time.Hour), DomainMentioned: true, CitationPosition: pos(3)},
	}
	fs := &fakeStore{keywords: keywords, citations: citations}
	svc := New(fs)

	trends, err := svc.TrendingKeywords(context.Background(), projectID, 10)
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, "k1", trends[0].KeywordID)
	assert.Equal(t, model.TrendUp, trends[0].Direction)
	assert.Equal(t, "k2", trends[1].KeywordID)
	assert.Equal(t, model.TrendDown, trends[1].Direction)
}

func TestTrendingKeywords_RespectsLimit(t *testing.T) {
	keywords := []model.Keyword{{ID: "k1"}, {ID: "k2"}, {ID: "k3"}}
	fs := &fakeStore{keywords: keywords}
	svc := New(fs)
	trends, err := svc.TrendingKeywords(context.Background(), "p1", 1)
	require.NoError(t, err)
	assert.Len(t, trends, 1)
}

func TestGenerateDailyMetrics_AggregatesPerPlatform(t *testing.T) {
	day := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	projectID := "p1"
	citations := []model.Citation{
		{ProjectID: projectID, Platform: model.ProviderChatGPT, TrackedAt: day.Add(time.Hour), DomainMentioned: true, CitationPosition: pos(1), Sentiment: model.SentimentPositive, TotalSourcesCited: 3},
		{ProjectID: projectID, Platform: model.ProviderChatGPT, TrackedAt: day.Add(2 * time.Hour), DomainMentioned: false, Sentiment: model.SentimentNeutral, TotalSourcesCited: 2},
		{ProjectID: projectID, Platform: model.ProviderClaude, TrackedAt: day.Add(3 * time.Hour), DomainMentioned: true, CitationPosition: pos(2), Sentiment: model.SentimentNegative, TotalSourcesCited: 1},
	}
	fs := &fakeStore{citations: citations}
	svc := New(fs)

	err := svc.GenerateDailyMetrics(context.Background(), projectID, day)
	require.NoError(t, err)
	require.Len(t, fs.upsertedMetrics, 2)

	byPlatform := make(map[model.Provider]*model.DailyMetric)
	for _, m := range fs.upsertedMetrics {
		byPlatform[m.Platform] = m
	}
	chatgpt := byPlatform[model.ProviderChatGPT]
	require.NotNil(t, chatgpt)
	assert.Equal(t, 2, chatgpt.TotalQueries)
	assert.Equal(t, 1, chatgpt.Mentions)
	assert.InDelta(t, 1, chatgpt.AvgPosition, 0.001)
	assert.Equal(t, 1, chatgpt.PositiveSentiment)
	assert.Equal(t, 1, chatgpt.NeutralSentiment)

	claude := byPlatform[model.ProviderClaude]
	require.NotNil(t, claude)
	assert.Equal(t, 1, claude.NegativeSentiment)
}
