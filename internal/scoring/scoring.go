// Package scoring implements the scoring service (C6): visibility score
// composition, share-of-voice, trending keywords, and daily metric
// aggregation, all computed from a single snapshot read over persisted
// Citations.
package scoring

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/store"
)

const scoringWindow = 30 * 24 * time.Hour

const (
	weightFrequency = 0.40
	weightPosition  = 0.30
	weightDiversity = 0.15
	weightContext   = 0.10
	weightMomentum  = 0.05
)

// Service computes score-derived views over a project's Citation history.
type Service struct {
	store store.Store
}

// New builds a scoring Service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// ComputeVisibilityScore produces a VisibilityScore over the 30-day window
// ending at asOf, per spec §4.6.
func (s *Service) ComputeVisibilityScore(ctx context.Context, projectID string, asOf time.Time) (*model.VisibilityScore, error) {
	keywords, err := s.store.ListActiveKeywords(ctx, projectID)
	if err != nil {
		return nil, err
	}
	activeKeywords := len(keywords)

	citations, err := s.store.ListCitationsInWindow(ctx, store.CitationWindow{
		ProjectID: projectID,
		From:      asOf.Add(-scoringWindow),
		To:        asOf,
	})
	if err != nil {
		return nil, err
	}

	selfCitations := make([]model.Citation, 0, len(citations))
	for _, c := range citations {
		if c.DomainMentioned {
			selfCitations = append(selfCitations, c)
		}
	}

	components := model.ComponentScores{
		Frequency: frequencyScore(len(selfCitations), activeKeywords),
		Position:  positionScore(selfCitations),
		Diversity: diversityScore(selfCitations),
		Context:   contextScore(citations),
		Momentum:  momentumScore(selfCitations, asOf),
	}

	overall := components.Frequency*weightFrequency +
		components.Position*weightPosition +
		components.Diversity*weightDiversity +
		components.Context*weightContext +
		components.Momentum*weightMomentum

	return &model.VisibilityScore{
		ProjectID:    projectID,
		CalculatedAt: asOf,
		Components:   components,
		Overall:      overall,
		GradeLetter:  model.GradeFor(overall),
	}, nil
}

func frequencyScore(selfCount, activeKeywords int) float64 {
	k := activeKeywords
	if k < 1 {
		k = 1
	}
	return math.Min(100, (float64(selfCount)/float64(k))*20)
}

func positionScore(selfCitations []model.Citation) float64 {
	sum, n := 0.0, 0
	for _, c := range selfCitations {
		if c.CitationPosition != nil {
			sum += float64(*c.CitationPosition)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	avgPos := sum / float64(n)
	score := 100 - (avgPos-1)*11
	if score < 0 {
		return 0
	}
	return score
}

func diversityScore(selfCitations []model.Citation) float64 {
	platforms := make(map[model.Provider]bool)
	for _, c := range selfCitations {
		platforms[c.Platform] = true
	}
	total := len(model.RegisteredProviders)
	if total == 0 {
		return 0
	}
	return (float64(len(platforms)) / float64(total)) * 100
}

func contextScore(citations []model.Citation) float64 {
	var positive, negative int
	for _, c := range citations {
		switch c.Sentiment {
		case model.SentimentPositive:
			positive++
		case model.SentimentNegative:
			negative++
		}
	}
	if positive+negative == 0 {
		return 50
	}
	return (float64(positive) / float64(positive+negative)) * 100
}

func momentumScore(selfCitations []model.Citation, asOf time.Time) float64 {
	thisWeekStart, lastWeekStart, lastWeekEnd := isoWeekBounds(asOf)

	var thisWeek, lastWeek int
	for _, c := range selfCitations {
		switch {
		case !c.TrackedAt.Before(thisWeekStart):
			thisWeek++
		case !c.TrackedAt.Before(lastWeekStart) && c.TrackedAt.Before(lastWeekEnd):
			lastWeek++
		}
	}

	if lastWeek == 0 {
		if thisWeek > 0 {
			return 100
		}
		return 0
	}

	growth := (float64(thisWeek) - float64(lastWeek)) / float64(lastWeek) * 100
	if growth > 100 {
		growth = 100
	}
	if growth < -100 {
		growth = -100
	}
	return (growth + 100) / 2
}

// isoWeekBounds returns the start of asOf's ISO week and the [start,end)
// bounds of the preceding week.
func isoWeekBounds(asOf time.Time) (thisWeekStart, lastWeekStart, lastWeekEnd time.Time) {
	weekday := int(asOf.Weekday())
	if weekday == 0 {
		weekday = 7 // ISO weeks start Monday
	}
	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	thisWeekStart = dayStart.AddDate(0, 0, -(weekday - 1))
	lastWeekStart = thisWeekStart.AddDate(0, 0, -7)
	lastWeekEnd = thisWeekStart
	return
}

// CalculateShareOfVoice reports each domain's percentage of total mentions
// (self + competitors) over the 30-day window ending now.
func (s *Service) CalculateShareOfVoice(ctx context.Context, projectID string, primaryDomain string, competitors []string) ([]model.ShareOfVoice, error) {
	now := time.Now()
	citations, err := s.store.ListCitationsInWindow(ctx, store.CitationWindow{
		ProjectID: projectID,
		From:      now.Add(-scoringWindow),
		To:        now,
	})
	if err != nil {
		return nil, err
	}

	mentions := map[string]int{primaryDomain: 0}
	for _, d := range competitors {
		mentions[d] = 0
	}

	total := 0
	for _, c := range citations {
		if c.DomainMentioned {
			mentions[primaryDomain]++
			total++
		}
		for _, cc := range c.CompetitorCitations {
			mentions[cc.Domain]++
			total++
		}
	}

	out := []model.ShareOfVoice{{Domain: primaryDomain, IsSelf: true, Mentions: mentions[primaryDomain]}}
	for _, d := range competitors {
		out = append(out, model.ShareOfVoice{Domain: d, IsSelf: false, Mentions: mentions[d]})
	}
	for i := range out {
		if total > 0 {
			out[i].SharePct = math.Round(float64(out[i].Mentions)/float64(total)*10000) / 100
		}
	}
	return out, nil
}

// TrendingKeywords ranks keywords by week-over-week citation delta,
// returning the top limit.
func (s *Service) TrendingKeywords(ctx context.Context, projectID string, limit int) ([]model.KeywordTrend, error) {
	keywords, err := s.store.ListActiveKeywords(ctx, projectID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	thisWeekStart, lastWeekStart, lastWeekEnd := isoWeekBounds(now)

	citations, err := s.store.ListCitationsInWindow(ctx, store.CitationWindow{
		ProjectID: projectID,
		From:      lastWeekStart,
		To:        now,
	})
	if err != nil {
		return nil, err
	}

	type agg struct {
		thisCount, lastCount   int
		thisPosSum, lastPosSum float64
		thisPosN, lastPosN     int
	}
	byKeyword := make(map[string]*agg)
	for _, c := range citations {
		if !c.DomainMentioned {
			continue
		}
		a, ok := byKeyword[c.KeywordID]
		if !ok {
			a = &agg{}
			byKeyword[c.KeywordID] = a
		}
		switch {
		case !c.TrackedAt.Before(thisWeekStart):
			a.thisCount++
			if c.CitationPosition != nil {
				a.thisPosSum += float64(*c.CitationPosition)
				a.thisPosN++
			}
		case !c.TrackedAt.Before(lastWeekStart) && c.TrackedAt.Before(lastWeekEnd):
			a.lastCount++
			if c.CitationPosition != nil {
				a.lastPosSum += float64(*c.CitationPosition)
				a.lastPosN++
			}
		}
	}

	trends := make([]model.KeywordTrend, 0, len(keywords))
	for _, kw := range keywords {
		a := byKeyword[kw.ID]
		if a == nil {
			a = &agg{}
		}
		citationDelta := a.thisCount - a.lastCount

		// A week with no positioned citation has no average position, so
		// the position delta is only defined when both weeks have one.
		var positionDelta float64
		if a.thisPosN > 0 && a.lastPosN > 0 {
			positionDelta = a.lastPosSum/float64(a.lastPosN) - a.thisPosSum/float64(a.thisPosN)
		}

		direction := model.TrendStable
		if citationDelta > 0 || positionDelta > 0 {
			direction = model.TrendUp
		} else if citationDelta < 0 || positionDelta < 0 {
			direction = model.TrendDown
		}

		trends = append(trends, model.KeywordTrend{
			KeywordID:         kw.ID,
			KeywordText:       kw.KeywordText,
			ThisWeekCitations: a.thisCount,
			LastWeekCitations: a.lastCount,
			CitationDelta:     citationDelta,
			PositionDelta:     positionDelta,
			Direction:         direction,
		})
	}

	sort.SliceStable(trends, func(i, j int) bool {
		return trends[i].CitationDelta > trends[j].CitationDelta
	})
	if limit > 0 && len(trends) > limit {
		trends = trends[:limit]
	}
	return trends, nil
}

// GenerateDailyMetrics aggregates one day's Citations into a DailyMetric
// per platform present that day, upserting idempotently.
func (s *Service) GenerateDailyMetrics(ctx context.Context, projectID string, date time.Time) error {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	citations, err := s.store.ListCitationsInWindow(ctx, store.CitationWindow{
		ProjectID: projectID,
		From:      dayStart,
		To:        dayEnd,
	})
	if err != nil {
		return err
	}

	byPlatform := make(map[model.Provider]*model.DailyMetric)
	for _, c := range citations {
		m, ok := byPlatform[c.Platform]
		if !ok {
			m = &model.DailyMetric{ProjectID: projectID, Date: dayStart, Platform: c.Platform}
			byPlatform[c.Platform] = m
		}
		m.TotalQueries++
		if c.DomainMentioned {
			m.Mentions++
			if c.CitationPosition != nil {
				m.AvgPosition = runningAvg(m.AvgPosition, m.Mentions, float64(*c.CitationPosition))
			}
		}
		switch c.Sentiment {
		case model.SentimentPositive:
			m.PositiveSentiment++
		case model.SentimentNegative:
			m.NegativeSentiment++
		default:
			m.NeutralSentiment++
		}
		m.TotalSourcesCited += c.TotalSourcesCited
	}

	for _, m := range byPlatform {
		if err := s.store.UpsertDailyMetric(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func runningAvg(currentAvg float64, countIncludingNew int, newValue float64) float64 {
	if countIncludingNew <= 1 {
		return newValue
	}
	return currentAvg + (newValue-currentAvg)/float64(countIncludingNew)
}
