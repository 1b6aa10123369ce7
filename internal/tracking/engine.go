// Package tracking implements the tracking engine (C4): it coordinates
// the provider adapter, citation normalizer, and sentiment analyzer for
// one keyword against one or more providers, and persists the result.
package tracking

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/citewatch/tracker/internal/alerting"
	"github.com/citewatch/tracker/internal/citation"
	"github.com/citewatch/tracker/internal/metrics"
	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/resilience"
	"github.com/citewatch/tracker/internal/sentiment"
	"github.com/citewatch/tracker/internal/store"
)

// TrackResult is one provider's outcome from a TrackKeyword call.
type TrackResult struct {
	Platform       model.Provider
	Success        bool
	Error          string
	ResponseTimeMs int64
	CitationFound  bool
}

// ProjectResult tallies a TrackProject call's outcome across all keywords.
type ProjectResult struct {
	Attempts     int
	Successes    int
	Failures     int
	NewCitations int
}

// Options configures one tracking pass.
type Options struct {
	QueryOptions       provideradapter.Options
	MinKeywordInterval time.Duration // default 1s, used by TrackProject
}

// Engine coordinates C1 (adapters) -> C2 (normalizer) -> C3 (sentiment)
// for the tracking core.
type Engine struct {
	registry *provideradapter.Registry
	store    store.Store
	analyzer *sentiment.Analyzer
	alerts   *alerting.Engine
}

// New builds a tracking Engine. alerts may be nil, in which case
// TrackKeyword persists Citations but emits no Alerts (used by
// QuickTest, which never persists at all).
func New(registry *provideradapter.Registry, st store.Store, analyzer *sentiment.Analyzer, alerts *alerting.Engine) *Engine {
	if analyzer == nil {
		analyzer = sentiment.NewAnalyzer(nil, nil)
	}
	return &Engine{registry: registry, store: st, analyzer: analyzer, alerts: alerts}
}

// TrackKeyword queries every requested provider for one keyword, one at a
// time (spec §4.4: "providers for a single keyword are processed
// sequentially within the call... providers differ in rate caps and
// interleaving gives no benefit at the per-keyword scale"), persisting a
// Citation for each successful call, then updates the keyword's
// last_tracked_at once. Parallelism across keywords/jobs belongs to the
// worker (internal/worker), not this engine.
func (e *Engine) TrackKeyword(ctx context.Context, keyword *model.Keyword, project *model.Project, providers []model.Provider, opts Options) ([]TrackResult, error) {
	results := make([]TrackResult, len(providers))

	for i, platform := range providers {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results[i] = e.trackOne(ctx, keyword, project, platform, opts.QueryOptions)
	}

	if err := e.store.SetKeywordLastTrackedAt(ctx, keyword.ID, time.Now()); err != nil {
		return results, err
	}
	return results, nil
}

// TrackSingle runs one (keyword, platform) query and persists its
// Citation, without touching the keyword's last_tracked_at. It is the
// entry point the job worker uses for one TrackingJob row; TrackKeyword
// (which also stamps last_tracked_at once per call) is for the
// synchronous multi-provider API path.
func (e *Engine) TrackSingle(ctx context.Context, keyword *model.Keyword, project *model.Project, platform model.Provider, opts Options) TrackResult {
	return e.trackOne(ctx, keyword, project, platform, opts.QueryOptions)
}

// BatchRecheck submits every keyword to the given platform's adapter in
// one call when it implements provideradapter.BatchAdapter (currently
// only pkg/aiproviders/claude, via Anthropic's Message Batches API), and
// falls back to sequential per-keyword Query when it doesn't. Unlike
// TrackKeyword's provider fan-out, this call is provider-fixed and
// keyword-fanned: it exists for large keyword sets where the cost and
// latency of one request per keyword dominate, not as a substitute for
// TrackKeyword/TrackProject's per-tick tracking path.
func (e *Engine) BatchRecheck(ctx context.Context, project *model.Project, keywords []model.Keyword, platform model.Provider, opts Options) ([]TrackResult, error) {
	adapter, ok := e.registry.Get(platform)
	if !ok {
		return nil, eris.Errorf("tracking: provider not configured: %s", platform)
	}

	batchAdapter, ok := adapter.(provideradapter.BatchAdapter)
	if !ok {
		results := make([]TrackResult, len(keywords))
		for i := range keywords {
			results[i] = e.trackOne(ctx, &keywords[i], project, platform, opts.QueryOptions)
		}
		return results, nil
	}

	cutoff := time.Now()
	previous := make(map[string]*model.Citation, len(keywords))
	items := make([]provideradapter.BatchQueryItem, len(keywords))
	for i, kw := range keywords {
		items[i] = provideradapter.BatchQueryItem{ID: kw.ID, QueryText: kw.KeywordText}
		prev, err := e.store.LatestCitation(ctx, kw.ID, platform, cutoff)
		if err != nil {
			zap.L().Warn("lookup previous citation failed", zap.String("keyword_id", kw.ID), zap.Error(err))
			prev = nil
		}
		previous[kw.ID] = prev
	}

	answers, err := batchAdapter.QueryBatch(ctx, items, opts.QueryOptions)
	if err != nil {
		metrics.ProviderQueriesTotal.WithLabelValues(string(platform), "failure").Add(float64(len(keywords)))
		return nil, eris.Wrapf(err, "tracking: batch recheck %s", platform)
	}
	metrics.ProviderQueriesTotal.WithLabelValues(string(platform), "success").Add(float64(len(answers)))

	byKeyword := make(map[string]*model.Keyword, len(keywords))
	for i := range keywords {
		byKeyword[keywords[i].ID] = &keywords[i]
	}

	results := make([]TrackResult, 0, len(keywords))
	for _, kw := range keywords {
		answer, ok := answers[kw.ID]
		if !ok {
			results = append(results, TrackResult{Platform: platform, Success: false, Error: "no batch result returned"})
			continue
		}
		results = append(results, e.recordAnswer(ctx, byKeyword[kw.ID], project, platform, previous[kw.ID], answer))
	}
	return results, nil
}

func (e *Engine) trackOne(ctx context.Context, keyword *model.Keyword, project *model.Project, platform model.Provider, queryOpts provideradapter.Options) TrackResult {
	adapter, ok := e.registry.Get(platform)
	if !ok {
		return TrackResult{Platform: platform, Success: false, Error: "provider not configured"}
	}

	// tracked_at ordering is the ground truth for previous-vs-current in
	// C7, so the cutoff must be captured before the query runs.
	cutoff := time.Now()
	previous, err := e.store.LatestCitation(ctx, keyword.ID, platform, cutoff)
	if err != nil {
		zap.L().Warn("lookup previous citation failed",
			zap.String("platform", string(platform)),
			zap.String("keyword_id", keyword.ID),
			zap.Error(err),
		)
		previous = nil
	}

	answer, err := adapter.Query(ctx, keyword.KeywordText, queryOpts)
	if err != nil {
		metrics.ProviderQueriesTotal.WithLabelValues(string(platform), "failure").Inc()
		zap.L().Warn("provider query failed",
			zap.String("platform", string(platform)),
			zap.String("keyword_id", keyword.ID),
			zap.Error(err),
		)
		return TrackResult{Platform: platform, Success: false, Error: err.Error()}
	}
	metrics.ProviderQueriesTotal.WithLabelValues(string(platform), "success").Inc()
	metrics.ProviderQueryDuration.WithLabelValues(string(platform)).Observe(float64(answer.ResponseTimeMs) / 1000)

	return e.recordAnswer(ctx, keyword, project, platform, previous, answer)
}

// recordAnswer normalizes a provider Answer into a Citation, persists it,
// diffs it against the prior Citation for alerting, and reports the
// outcome as a TrackResult. Shared by trackOne's synchronous per-provider
// path and BatchRecheck's Claude Batches API path, so both routes
// apply identical normalization, sentiment, and alerting semantics
// regardless of how the Answer was obtained.
func (e *Engine) recordAnswer(ctx context.Context, keyword *model.Keyword, project *model.Project, platform model.Provider, previous *model.Citation, answer *provideradapter.Answer) TrackResult {
	norm := citation.Normalize(answer.Citations, project.PrimaryDomain, project.CompetitorDomains)
	sent := model.SentimentNeutral
	if norm.DomainMentioned {
		sent = e.analyzer.Analyze(answer.ResponseText, project.PrimaryDomain)
	}

	c := &model.Citation{
		ProjectID:           project.ID,
		KeywordID:           keyword.ID,
		Platform:            platform,
		TrackedAt:           time.Now(),
		DomainMentioned:     norm.DomainMentioned,
		CitationPosition:    norm.CitationPosition,
		CitationContext:     norm.CitationContext,
		FullResponseText:    answer.ResponseText,
		ResponseSummary:     sentiment.Summarize(answer.ResponseText),
		Sentiment:           sent,
		ConfidenceScore:     sentiment.Confidence(len(answer.Citations), time.Duration(answer.ResponseTimeMs)*time.Millisecond, len(answer.ResponseText)),
		WordCount:           sentiment.WordCount(answer.ResponseText),
		CompetitorCitations: norm.CompetitorCitations,
		TotalSourcesCited:   norm.TotalSourcesCited,
	}

	// CreateCitation runs through resilience.Do so a transient store blip
	// (connection reset, dial timeout) doesn't drop a citation the
	// provider was already paid to fetch.
	writeErr := resilience.Do(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		return e.store.CreateCitation(ctx, c)
	})
	if writeErr != nil {
		zap.L().Error("persist citation failed",
			zap.String("platform", string(platform)),
			zap.String("keyword_id", keyword.ID),
			zap.Error(writeErr),
		)
		return TrackResult{Platform: platform, Success: false, Error: writeErr.Error(), ResponseTimeMs: answer.ResponseTimeMs}
	}

	if e.alerts != nil {
		e.alerts.DiffCitation(ctx, project, keyword, platform, previous, c)
	}

	if norm.DomainMentioned {
		metrics.CitationsFoundTotal.WithLabelValues(string(platform)).Inc()
	}

	return TrackResult{
		Platform:       platform,
		Success:        true,
		ResponseTimeMs: answer.ResponseTimeMs,
		CitationFound:  norm.DomainMentioned,
	}
}

// TrackProject iterates a project's active keywords, calling TrackKeyword
// for each in turn and spacing keyword starts by opts.MinKeywordInterval
// (default 1s) to smooth upstream load, exactly per spec §4.4. Fanning
// keyword (or job) processing out concurrently is the worker's job
// (internal/worker, driven by Temporal's per-worker concurrency cap), not
// this operation's.
func (e *Engine) TrackProject(ctx context.Context, projectID string, providers []model.Provider, opts Options) (*ProjectResult, error) {
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	keywords, err := e.store.ListActiveKeywords(ctx, projectID)
	if err != nil {
		return nil, err
	}

	interval := opts.MinKeywordInterval
	if interval <= 0 {
		interval = time.Second
	}

	result := &ProjectResult{}

	for i, kw := range keywords {
		if i > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(interval):
			}
		}

		trackResults, err := e.TrackKeyword(ctx, &kw, project, providers, opts)
		if err != nil {
			zap.L().Error("track keyword failed", zap.String("keyword_id", kw.ID), zap.Error(err))
		}

		for _, r := range trackResults {
			result.Attempts++
			if r.Success {
				result.Successes++
				if r.CitationFound {
					result.NewCitations++
				}
			} else {
				result.Failures++
			}
		}
	}

	return result, nil
}
