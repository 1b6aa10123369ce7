// Package claude adapts pkg/anthropic's SDK wrapper to
// provideradapter.Adapter. Claude has no structured citation field, so
// citations are extracted from response text with the shared
// unstructured-text rules in openaitext.
package claude

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/citewatch/tracker/internal/config"
	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/ratelimit"
	"github.com/citewatch/tracker/pkg/aiproviders/openaitext"
	"github.com/citewatch/tracker/pkg/anthropic"
)

const (
	defaultModel      = "claude-3-5-sonnet-20241022"
	defaultRatePerMin = 50
	defaultMaxTokens  = 1024
	systemPrompt      = "Answer the user's question directly and cite your sources with URLs."
)

// Adapter wraps an anthropic.Client with rate limiting and citation
// extraction.
type Adapter struct {
	client    anthropic.Client
	model     string
	limiter   *ratelimit.Window
	maxTokens int
}

// New builds a Claude adapter from a loaded provider config.
func New(cfg config.ProviderConfig) provideradapter.Adapter {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}
	ratePerMin := cfg.RatePerMin
	if ratePerMin <= 0 {
		ratePerMin = defaultRatePerMin
	}

	return &Adapter{
		client:    anthropic.NewClient(cfg.APIKey),
		model:     modelName,
		limiter:   ratelimit.NewWindow(ratePerMin, time.Minute).WithRedis(ratelimit.SharedClient, "claude"),
		maxTokens: defaultMaxTokens,
	}
}

func (a *Adapter) Name() model.Provider { return model.ProviderClaude }

func (a *Adapter) Query(ctx context.Context, queryText string, opts provideradapter.Options) (*provideradapter.Answer, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, provideradapter.NewError(provideradapter.ErrTimeout, "rate limit wait interrupted", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = int64(a.maxTokens)
	}

	req := anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		System:    []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: queryText}},
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}

	start := time.Now()
	resp, err := a.client.CreateMessage(qctx, req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, classifyError(err)
	}
	resp.Usage.LogCost(a.model, "tracking_query")

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	responseText := text.String()

	return &provideradapter.Answer{
		Provider:       model.ProviderClaude,
		Query:          queryText,
		ResponseText:   responseText,
		Citations:      openaitext.ExtractCitations(responseText),
		ResponseTimeMs: elapsed.Milliseconds(),
	}, nil
}

// QueryBatch reruns many keywords against Claude through Anthropic's
// Message Batches API instead of one request per keyword. It primes the
// prompt cache with a single sequential request carrying the shared
// system prompt, submits the rest as a batch sharing that cached system
// block, then polls to completion and drains the results. Used by the
// `tracker batch-recheck` command for large keyword sets, where hundreds
// of keywords share the same system prompt and per-request latency
// matters less than throughput and cost.
func (a *Adapter) QueryBatch(ctx context.Context, items []provideradapter.BatchQueryItem, opts provideradapter.Options) (map[string]*provideradapter.Answer, error) {
	if len(items) == 0 {
		return map[string]*provideradapter.Answer{}, nil
	}

	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = int64(a.maxTokens)
	}
	cachedSystem := anthropic.BuildCachedSystemBlocks(systemPrompt)

	if _, err := anthropic.PrimerRequest(ctx, a.client, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		System:    cachedSystem,
		Messages:  []anthropic.Message{{Role: "user", Content: items[0].QueryText}},
	}); err != nil {
		return nil, eris.Wrap(err, "claude: prime batch cache")
	}

	reqs := make([]anthropic.BatchRequestItem, len(items))
	for i, item := range items {
		reqs[i] = anthropic.BatchRequestItem{
			CustomID: item.ID,
			Params: anthropic.MessageRequest{
				Model:     a.model,
				MaxTokens: maxTokens,
				System:    cachedSystem,
				Messages:  []anthropic.Message{{Role: "user", Content: item.QueryText}},
			},
		}
	}

	batch, err := a.client.CreateBatch(ctx, anthropic.BatchRequest{Requests: reqs})
	if err != nil {
		return nil, eris.Wrap(err, "claude: create batch")
	}

	if _, err := anthropic.PollBatch(ctx, a.client, batch.ID); err != nil {
		return nil, eris.Wrapf(err, "claude: poll batch %s", batch.ID)
	}

	iter, err := a.client.GetBatchResults(ctx, batch.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "claude: fetch batch results %s", batch.ID)
	}
	collected, err := anthropic.CollectBatchResultsDetailed(iter)
	if err != nil {
		return nil, eris.Wrapf(err, "claude: collect batch results %s", batch.ID)
	}

	queries := make(map[string]string, len(items))
	for _, item := range items {
		queries[item.ID] = item.QueryText
	}

	out := make(map[string]*provideradapter.Answer, len(collected.Succeeded))
	for customID, resp := range collected.Succeeded {
		resp.Usage.LogCost(a.model, "tracking_batch_recheck")
		var text strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		responseText := text.String()
		out[customID] = &provideradapter.Answer{
			Provider:     model.ProviderClaude,
			Query:        queries[customID],
			ResponseText: responseText,
			Citations:    openaitext.ExtractCitations(responseText),
		}
	}
	return out, nil
}

func (a *Adapter) RateLimitStatus() provideradapter.RateLimitStatus {
	st := a.limiter.Status()
	return provideradapter.RateLimitStatus{Limit: st.Limit, Used: st.Used, ResetAt: st.ResetAt}
}

func (a *Adapter) Healthcheck(ctx context.Context) provideradapter.HealthStatus {
	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := a.client.CreateMessage(hctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: 1,
		Messages:  []anthropic.Message{{Role: "user", Content: "ping"}},
	})
	if err != nil {
		provErr := classifyError(err)
		return provideradapter.HealthStatus{OK: false, Kind: provErr.Kind, Message: provErr.Message}
	}
	return provideradapter.HealthStatus{OK: true}
}

// classifyError maps the SDK's wrapped error into a typed
// provideradapter.Error by inspecting the message the eris wrap in
// pkg/anthropic surfaces, since the SDK does not export a status-code type
// across this boundary.
func classifyError(err error) *provideradapter.Error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "authentication"):
		return provideradapter.NewError(provideradapter.ErrAuth, "authentication rejected", err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return provideradapter.NewError(provideradapter.ErrRateLimited, "provider rate limit exceeded", err)
	case strings.Contains(msg, "402") || strings.Contains(msg, "quota") || strings.Contains(msg, "credit balance"):
		return provideradapter.NewError(provideradapter.ErrQuotaExceeded, "quota exceeded", err)
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return provideradapter.NewError(provideradapter.ErrTimeout, "request timed out", err)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "overloaded"):
		return provideradapter.NewError(provideradapter.ErrUpstreamError, "provider returned a server error", err)
	default:
		return provideradapter.NewError(provideradapter.ErrTransport, "request failed", eris.Wrap(err, "claude"))
	}
}
