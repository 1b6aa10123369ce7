// Package alerting implements the alert engine (C7): a per-citation diff
// that classifies a keyword×provider transition into a change-driven
// notification, plus batch checks over a scoring window for signals that
// span multiple citations.
package alerting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/store"
)

// competitorGainThresholdPct is the minimum week-over-week share-of-voice
// gain, in percentage points, that triggers a competitor_gain alert.
const competitorGainThresholdPct = 10.0

// volumeSpikeMultiplier is how far above the trailing 7-day daily average
// a day's citation count must climb to trigger a volume_spike alert.
const volumeSpikeMultiplier = 2.0

// minTrailingAverage floors the trailing average used by the volume-spike
// check so a project with near-zero history doesn't fire on noise.
const minTrailingAverage = 1.0

// Engine emits Alerts from Citation transitions and periodic batch scans.
// Alert writes are best-effort: persistence failures are logged, never
// propagated, so a broken alert path cannot fail a tracking job.
type Engine struct {
	store store.Store
}

// New builds an alerting Engine.
func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// DiffCitation compares previous (possibly nil) against current for one
// (keyword, platform) pair and persists every applicable Alert per spec
// §4.7 — a single diff can satisfy more than one rule (e.g. position
// worsens by 3 while sentiment also flips negative), and each must
// surface, not just the first match. It never returns an error to the
// caller; failures are logged.
func (e *Engine) DiffCitation(ctx context.Context, project *model.Project, keyword *model.Keyword, platform model.Provider, previous, current *model.Citation) {
	for _, alert := range diffToAlerts(project, keyword, platform, previous, current) {
		if err := e.store.CreateAlert(ctx, alert); err != nil {
			zap.L().Error("persist alert failed",
				zap.String("project_id", project.ID),
				zap.String("keyword_id", keyword.ID),
				zap.String("platform", string(platform)),
				zap.String("alert_type", string(alert.AlertType)),
				zap.Error(err),
			)
		}
	}
}

func diffToAlerts(project *model.Project, keyword *model.Keyword, platform model.Provider, previous, current *model.Citation) []*model.Alert {
	base := model.Alert{
		ProjectID:      project.ID,
		OrganizationID: project.OrganizationID,
		KeywordID:      keyword.ID,
		Platform:       platform,
		CreatedAt:      current.TrackedAt,
	}

	if previous == nil && current.DomainMentioned {
		a := base
		a.AlertType = model.AlertNewCitation
		a.Severity = model.SeverityInfo
		a.Title = "New citation"
		a.Description = fmt.Sprintf("%s is now cited by %s for %q", project.PrimaryDomain, platform, keyword.KeywordText)
		return []*model.Alert{&a}
	}

	if previous != nil && previous.DomainMentioned && !current.DomainMentioned {
		a := base
		a.AlertType = model.AlertLostCitation
		a.Severity = model.SeverityWarning
		a.Title = "Lost citation"
		a.Description = fmt.Sprintf("%s is no longer cited by %s for %q", project.PrimaryDomain, platform, keyword.KeywordText)
		if previous.CitationPosition != nil {
			a.PreviousValue = fmt.Sprintf("%d", *previous.CitationPosition)
		}
		return []*model.Alert{&a}
	}

	// Once domain_mentioned holds on both sides, position_change and
	// sentiment_shift are independent conditions on the same diff — both
	// can and must fire.
	var alerts []*model.Alert

	if previous != nil && previous.DomainMentioned && current.DomainMentioned &&
		previous.CitationPosition != nil && current.CitationPosition != nil {
		prevPos, currPos := *previous.CitationPosition, *current.CitationPosition
		delta := prevPos - currPos
		if abs(delta) >= 2 {
			a := base
			changePercent := (float64(prevPos) - float64(currPos)) / float64(prevPos) * 100
			a.AlertType = model.AlertPositionChange
			if delta > 0 {
				a.Severity = model.SeverityInfo
				a.Title = "Position improved"
			} else {
				a.Severity = model.SeverityWarning
				a.Title = "Position worsened"
			}
			a.Description = fmt.Sprintf("%s moved from position %d to %d for %q on %s", project.PrimaryDomain, prevPos, currPos, keyword.KeywordText, platform)
			a.PreviousValue = fmt.Sprintf("%d", prevPos)
			a.CurrentValue = fmt.Sprintf("%d", currPos)
			a.ChangePercent = &changePercent
			alerts = append(alerts, &a)
		}
	}

	if previous != nil && current.DomainMentioned && previous.Sentiment != current.Sentiment {
		a := base
		a.AlertType = model.AlertSentimentShift
		a.Severity = model.SeverityInfo
		if current.Sentiment == model.SentimentNegative {
			a.Severity = model.SeverityWarning
		}
		a.Title = "Sentiment shift"
		a.Description = fmt.Sprintf("Sentiment for %s on %s shifted from %s to %s for %q", project.PrimaryDomain, platform, previous.Sentiment, current.Sentiment, keyword.KeywordText)
		a.PreviousValue = string(previous.Sentiment)
		a.CurrentValue = string(current.Sentiment)
		alerts = append(alerts, &a)
	}

	return alerts
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// RunBatchChecks scans the last 24h and the trailing 7-day window for
// competitor_gain, new_platform, and volume_spike signals, per the
// thresholds pinned in DESIGN.md.
func (e *Engine) RunBatchChecks(ctx context.Context, project *model.Project, asOf time.Time) error {
	if err := e.checkVolumeSpike(ctx, project, asOf); err != nil {
		return err
	}
	if err := e.checkNewPlatform(ctx, project, asOf); err != nil {
		return err
	}
	if err := e.checkCompetitorGain(ctx, project, asOf); err != nil {
		return err
	}
	return nil
}

func (e *Engine) checkVolumeSpike(ctx context.Context, project *model.Project, asOf time.Time) error {
	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	today, err := e.store.ListCitationsInWindow(ctx, store.CitationWindow{ProjectID: project.ID, From: dayStart, To: dayStart.Add(24 * time.Hour)})
	if err != nil {
		return err
	}

	trailing, err := e.store.ListCitationsInWindow(ctx, store.CitationWindow{ProjectID: project.ID, From: dayStart.AddDate(0, 0, -7), To: dayStart})
	if err != nil {
		return err
	}
	trailingAvg := float64(len(trailing)) / 7
	if trailingAvg < minTrailingAverage {
		trailingAvg = minTrailingAverage
	}

	if float64(len(today)) >= trailingAvg*volumeSpikeMultiplier {
		e.persistBatchAlert(ctx, project, model.AlertVolumeSpike, model.SeverityInfo,
			"Citation volume spike",
			fmt.Sprintf("%d citations today vs a trailing 7-day average of %.1f", len(today), trailingAvg))
	}
	return nil
}

func (e *Engine) checkNewPlatform(ctx context.Context, project *model.Project, asOf time.Time) error {
	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	today, err := e.store.ListCitationsInWindow(ctx, store.CitationWindow{ProjectID: project.ID, From: dayStart, To: dayStart.Add(24 * time.Hour)})
	if err != nil {
		return err
	}
	priorWindow, err := e.store.ListCitationsInWindow(ctx, store.CitationWindow{ProjectID: project.ID, From: dayStart.AddDate(0, 0, -30), To: dayStart})
	if err != nil {
		return err
	}
	seenBefore := make(map[model.Provider]bool)
	for _, c := range priorWindow {
		if c.DomainMentioned {
			seenBefore[c.Platform] = true
		}
	}

	newToday := make(map[model.Provider]bool)
	for _, c := range today {
		if !c.DomainMentioned || seenBefore[c.Platform] || newToday[c.Platform] {
			continue
		}
		newToday[c.Platform] = true
		e.persistBatchAlert(ctx, project, model.AlertNewPlatform, model.SeverityInfo,
			"New platform citation",
			fmt.Sprintf("%s cited %s for the first time in 30 days", c.Platform, project.PrimaryDomain))
	}
	return nil
}

func (e *Engine) checkCompetitorGain(ctx context.Context, project *model.Project, asOf time.Time) error {
	if len(project.CompetitorDomains) == 0 {
		return nil
	}
	thisWindow, err := shareOfVoiceIn(ctx, e.store, project, asOf.AddDate(0, 0, -7), asOf)
	if err != nil {
		return err
	}
	lastWindow, err := shareOfVoiceIn(ctx, e.store, project, asOf.AddDate(0, 0, -14), asOf.AddDate(0, 0, -7))
	if err != nil {
		return err
	}

	for _, domain := range project.CompetitorDomains {
		gain := thisWindow[domain] - lastWindow[domain]
		if gain >= competitorGainThresholdPct {
			e.persistBatchAlert(ctx, project, model.AlertCompetitorGain, model.SeverityWarning,
				"Competitor gaining share of voice",
				fmt.Sprintf("%s's share of voice rose %.1f points week-over-week", domain, gain))
		}
	}
	return nil
}

// shareOfVoiceIn computes each domain's percentage of total self+competitor
// mentions within [from, to), used only for the competitor_gain comparison.
func shareOfVoiceIn(ctx context.Context, st store.Store, project *model.Project, from, to time.Time) (map[string]float64, error) {
	citations, err := st.ListCitationsInWindow(ctx, store.CitationWindow{ProjectID: project.ID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	mentions := map[string]int{project.PrimaryDomain: 0}
	for _, d := range project.CompetitorDomains {
		mentions[d] = 0
	}
	total := 0
	for _, c := range citations {
		if c.DomainMentioned {
			mentions[project.PrimaryDomain]++
			total++
		}
		for _, cc := range c.CompetitorCitations {
			mentions[cc.Domain]++
			total++
		}
	}
	share := make(map[string]float64, len(mentions))
	if total == 0 {
		return share, nil
	}
	for domain, count := range mentions {
		share[domain] = float64(count) / float64(total) * 100
	}
	return share, nil
}

func (e *Engine) persistBatchAlert(ctx context.Context, project *model.Project, alertType model.AlertType, severity model.AlertSeverity, title, description string) {
	alert := &model.Alert{
		ProjectID:      project.ID,
		OrganizationID: project.OrganizationID,
		AlertType:      alertType,
		Severity:       severity,
		Title:          title,
		Description:    description,
		CreatedAt:      time.Now(),
	}
	if err := e.store.CreateAlert(ctx, alert); err != nil {
		zap.L().Error("persist batch alert failed",
			zap.String("project_id", project.ID),
			zap.String("alert_type", string(alertType)),
			zap.Error(err),
		)
	}
}
