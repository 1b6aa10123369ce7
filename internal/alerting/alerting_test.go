package alerting

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
	alerts    []*model.Alert
	citations []model.Citation
}

func (f *fakeStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	f.alerts = append(f.alerts, a)
	return nil
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

func testProject() *model.Project {
	return &model.Project{ID: "p1", OrganizationID: "org1", PrimaryDomain: "acme.com", CompetitorDomains: []string{"other.com"}}
}

func testKeyword() *model.Keyword {
	return &model.Keyword{ID: "k1", KeywordText: "best widget"}
}

func pos(n int) *int { return &n }

// TestDiffCitation_NewCitation pins spec §8 scenario 1.
func TestDiffCitation_NewCitation(t *testing.T) {
	fs := &fakeStore{}
	e := New(fs)
	current := &model.Citation{DomainMentioned: true, CitationPosition: pos(2), Sentiment: model.SentimentPositive, TrackedAt: time.Now()}

	e.DiffCitation(context.Background(), testProject(), testKeyword(), model.ProviderGemini, nil, current)

	require.Len(t, fs.alerts, 1)
	assert.Equal(t, model.AlertNewCitation, fs.alerts[0].AlertType)
	assert.Equal(t, model.SeverityInfo, fs.alerts[0].Severity)
}

// TestDiffCitation_LostCitation pins spec §8 scenario 2.
func TestDiffCitation_LostCitation(t *testing.T) {
	fs := &fakeStore{}
	e := New(fs)
	previous := &model.Citation{DomainMentioned: true, CitationPosition: pos(1)}
	current := &model.Citation{DomainMentioned: false, TrackedAt: time.Now()}

	e.DiffCitation(context.Background(), testProject(), testKeyword(), model.ProviderGemini, previous, current)

	require.Len(t, fs.alerts, 1)
	assert.Equal(t, model.AlertLostCitation, fs.alerts[0].AlertType)
	assert.Equal(t, model.SeverityWarning, fs.alerts[0].Severity)
	assert.Equal(t, "1", fs.alerts[0].PreviousValue)
}

// TestDiffCitation_PositionJump pins spec §8 scenario 3: prior 5, new 2,
// change_percent = 60.00.
func TestDiffCitation_PositionJump(t *testing.T) {
	fs := &fakeStore{}
	e := New(fs)
	previous := &model.Citation{DomainMentioned: true, CitationPosition: pos(5)}
	current := &model.Citation{DomainMentioned: true, CitationPosition: pos(2), TrackedAt: time.Now()}

	e.DiffCitation(context.Background(), testProject(), testKeyword(), model.ProviderGemini, previous, current)

	require.Len(t, fs.alerts, 1)
	assert.Equal(t, model.AlertPositionChange, fs.alerts[0].AlertType)
	assert.Equal(t, model.SeverityInfo, fs.alerts[0].Severity)
	require.NotNil(t, fs.alerts[0].ChangePercent)
	assert.InDelta(t, 60.0, *fs.alerts[0].ChangePercent, 0.01)
}

// TestDiffCitation_SubThresholdDriftNoAlert pins spec §8 scenario 4: prior
// 2, new 3, delta 1 < 2 -> no alert (and no sentiment change here either).
func TestDiffCitation_SubThresholdDriftNoAlert(t *testing.T) {
	fs := &fakeStore{}
	e := New(fs)
	previous := &model.Citation{DomainMentioned: true, CitationPosition: pos(2), Sentiment: model.SentimentNeutral}
	current := &model.Citation{DomainMentioned: true, CitationPosition: pos(3), Sentiment: model.SentimentNeutral, TrackedAt: time.Now()}

	e.DiffCitation(context.Background(), testProject(), testKeyword(), model.ProviderGemini, previous, current)

	assert.Empty(t, fs.alerts)
}

func TestDiffCitation_PositionWorsenedIsWarning(t *testing.T) {
	fs := &fakeStore{}
	e := New(fs)
	previous := &model.Citation{DomainMentioned: true, CitationPosition: pos(1), Sentiment: model.SentimentNeutral}
	current := &model.Citation{DomainMentioned: true, CitationPosition: pos(4), Sentiment: model.SentimentNeutral, TrackedAt: time.Now()}

	e.DiffCitation(context.Background(), testProject(), testKeyword(), model.ProviderGemini, previous, current)

	require.Len(t, fs.alerts, 1)
	assert.Equal(t, model.AlertPositionChange, fs.alerts[0].AlertType)
	assert.Equal(t, model.SeverityWarning, fs.alerts[0].Severity)
}

func TestDiffCitation_SentimentShiftToNegativeIsWarning(t *testing.T) {
	fs := &fakeStore{}
	e := New(fs)
	previous := &model.Citation{DomainMentioned: true, CitationPosition: pos(1), Sentiment: model.SentimentPositive}
	current := &model.Citation{DomainMentioned: true, CitationPosition: pos(1), Sentiment: model.SentimentNegative, TrackedAt: time.Now()}

	e.DiffCitation(context.Background(), testProject(), testKeyword(), model.ProviderGemini, previous, current)

	require.Len(t, fs.alerts, 1)
	assert.Equal(t, model.AlertSentimentShift, fs.alerts[0].AlertType)
	assert.Equal(t, model.SeverityWarning, fs.alerts[0].Severity)
}

func TestDiffCitation_SentimentShiftAwayFromNegativeIsInfo(t *testing.T) {
	fs := &fakeStore{}
	e := New(fs)
	previous := &model.Citation{DomainMentioned: true, CitationPosition: pos(1), Sentiment: model.SentimentNegative}
	current := &model.Citation{DomainMentioned: true, CitationPosition: pos(1), Sentiment: model.SentimentNeutral, TrackedAt: time.Now()}

	e.DiffCitation(context.Background(), testProject(), testKeyword(), model.ProviderGemini, previous, current)

	require.Len(t, fs.alerts, 1)
	assert.Equal(t, model.AlertSentimentShift, fs.alerts[0].AlertType)
	assert.Equal(t, model.SeverityInfo, fs.alerts[0].Severity)
}

// TestDiffCitation_PositionAndSentimentBothFire covers a diff that
// satisfies both position_change (|delta|>=2) and sentiment_shift at
// once: both alerts must be emitted, not just the first match.
func TestDiffCitation_PositionAndSentimentBothFire(t *testing.T) {
	fs := &fakeStore{}
	e := New(fs)
	previous := &model.Citation{DomainMentioned: true, CitationPosition: pos(1), Sentiment: model.SentimentPositive}
	current := &model.Citation{DomainMentioned: true, CitationPosition: pos(4), Sentiment: model.SentimentNegative, TrackedAt: time.Now()}

	e.DiffCitation(context.Background(), testProject(), testKeyword(), model.ProviderGemini, previous, current)

	require.Len(t, fs.alerts, 2)
	var types []model.AlertType
	for _, a := range fs.alerts {
		types = append(types, a.AlertType)
	}
	assert.Contains(t, types, model.AlertPositionChange)
	assert.Contains(t, types, model.AlertSentimentShift)
}

func TestDiffCitation_NoPriorAndNotMentionedEmitsNothing(t *testing.T) {
	fs := &fakeStore{}
	e := New(fs)
	current := &model.Citation{DomainMentioned: false, TrackedAt: time.Now()}

	e.DiffCitation(context.Background(), testProject(), testKeyword(), model.ProviderGemini, nil, current)

	assert.Empty(t, fs.alerts)
}

func TestCheckVolumeSpike_FiresAboveThreshold(t *testing.T) {
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	project := testProject()

	var citations []model.Citation
	for i := 0; i < 10; i++ {
		citations = append(citations, model.Citation{ProjectID: project.ID, TrackedAt: dayStart.Add(time.Hour)})
	}
	// trailing week averages 1/day
	for d := 1; d <= 7; d++ {
		citations = append(citations, model.Citation{ProjectID: project.ID, TrackedAt: dayStart.AddDate(0, 0, -d).Add(time.Hour)})
	}

	fs := &fakeStore{citations: citations}
	e := New(fs)
	require.NoError(t, e.checkVolumeSpike(context.Background(), project, now))
	require.Len(t, fs.alerts, 1)
	assert.Equal(t, model.AlertVolumeSpike, fs.alerts[0].AlertType)
}

func TestCheckNewPlatform_FiresOnFirstAppearance(t *testing.T) {
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	project := testProject()

	citations := []model.Citation{
		{ProjectID: project.ID, Platform: model.ProviderGemini, DomainMentioned: true, TrackedAt: dayStart.Add(time.Hour)},
	}
	fs := &fakeStore{citations: citations}
	e := New(fs)
	require.NoError(t, e.checkNewPlatform(context.Background(), project, now))
	require.Len(t, fs.alerts, 1)
	assert.Equal(t, model.AlertNewPlatform, fs.alerts[0].AlertType)
}

func TestCheckNewPlatform_NoAlertWhenSeenInPrior30Days(t *testing.T) {
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	project := testProject()

	citations := []model.Citation{
		{ProjectID: project.ID, Platform: model.ProviderGemini, DomainMentioned: true, TrackedAt: dayStart.AddDate(0, 0, -5)},
		{ProjectID: project.ID, Platform: model.ProviderGemini, DomainMentioned: true, TrackedAt: dayStart.Add(time.Hour)},
	}
	fs := &fakeStore{citations: citations}
	e := New(fs)
	require.NoError(t, e.checkNewPlatform(context.Background(), project, now))
	assert.Empty(t, fs.alerts)
}

func TestCheckCompetitorGain_FiresAboveThreshold(t *testing.T) {
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	project := testProject() // competitor: other.com

	var citations []model.Citation
	// last week: other.com has 0 of 10 total mentions
	for i := 0; i < 10; i++ {
		citations = append(citations, model.Citation{ProjectID: project.ID, TrackedAt: now.AddDate(0, 0, -10), DomainMentioned: true})
	}
	// this week: other.com has 5 of 10 total mentions (50% share, +50pt gain)
	for i := 0; i < 5; i++ {
		citations = append(citations, model.Citation{ProjectID: project.ID, TrackedAt: now.AddDate(0, 0, -3), DomainMentioned: true})
	}
	for i := 0; i < 5; i++ {
		citations = append(citations, model.Citation{ProjectID: project.ID, TrackedAt: now.AddDate(0, 0, -3), CompetitorCitations: []model.CompetitorCitation{{Domain: "other.com"}}})
	}

	fs := &fakeStore{citations: citations}
	e := New(fs)
	require.NoError(t, e.checkCompetitorGain(context.Background(), project, now))
	require.Len(t, fs.alerts, 1)
	assert.Equal(t, model.AlertCompetitorGain, fs.alerts[0].AlertType)
}
