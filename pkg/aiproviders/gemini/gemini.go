// Package gemini adapts Google's Gemini generateContent API to
// provideradapter.Adapter, combining grounding-metadata citations with
// inline "[n]" reference order per the Gemini-style extraction rule.
package gemini

import (
	"context"
	"net/http"
	"time"

	"github.com/citewatch/tracker/internal/config"
	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/ratelimit"
)

const (
	defaultModel      = "gemini-1.5-pro"
	defaultRatePerMin = 60
	defaultMaxTokens  = 1024
)

// Adapter wraps a gemini Client with rate limiting and grounded-citation
// extraction.
type Adapter struct {
	client  Client
	model   string
	limiter *ratelimit.Window
}

// New builds a Gemini adapter from a loaded provider config.
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
		client:  NewClient(cfg.APIKey, cfg.BaseURL),
		model:   modelName,
		limiter: ratelimit.NewWindow(ratePerMin, time.Minute).WithRedis(ratelimit.SharedClient, "gemini"),
	}
}

func (a *Adapter) Name() model.Provider { return model.ProviderGemini }

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

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	req := GenerateContentRequest{
		Model:    a.model,
		Contents: []Content{{Role: "user", Parts: []Part{{Text: queryText}}}},
		Generation: GenerationConfig{
			MaxOutputTokens: maxTokens,
		},
	}
	if opts.Temperature > 0 {
		req.Generation.Temperature = &opts.Temperature
	}
	if opts.GroundingEnabled {
		req.Tools = []map[string]any{{"google_search": map[string]any{}}}
	}

	start := time.Now()
	resp, err := a.client.GenerateContent(qctx, req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Candidates) == 0 {
		return nil, provideradapter.NewError(provideradapter.ErrMalformedResponse, "no candidates returned", nil)
	}

	candidate := resp.Candidates[0]
	var text string
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}

	return &provideradapter.Answer{
		Provider:       model.ProviderGemini,
		Query:          queryText,
		ResponseText:   text,
		Citations:      extractCitations(text, candidate.GroundingMetadata),
		ResponseTimeMs: elapsed.Milliseconds(),
	}, nil
}

func (a *Adapter) RateLimitStatus() provideradapter.RateLimitStatus {
	st := a.limiter.Status()
	return provideradapter.RateLimitStatus{Limit: st.Limit, Used: st.Used, ResetAt: st.ResetAt}
}

func (a *Adapter) Healthcheck(ctx context.Context) provideradapter.HealthStatus {
	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := a.client.GenerateContent(hctx, GenerateContentRequest{
		Model:      a.model,
		Contents:   []Content{{Role: "user", Parts: []Part{{Text: "ping"}}}},
		Generation: GenerationConfig{MaxOutputTokens: 1},
	})
	if err != nil {
		provErr := classifyError(err)
		return provideradapter.HealthStatus{OK: false, Kind: provErr.Kind, Message: provErr.Message}
	}
	return provideradapter.HealthStatus{OK: true}
}

func classifyError(err error) *provideradapter.Error {
	if se, ok := err.(*StatusError); ok {
		switch se.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return provideradapter.NewError(provideradapter.ErrAuth, "authentication rejected", err)
		case http.StatusTooManyRequests:
			return provideradapter.NewError(provideradapter.ErrRateLimited, "provider rate limit exceeded", err)
		case http.StatusPaymentRequired:
			return provideradapter.NewError(provideradapter.ErrQuotaExceeded, "quota exceeded", err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return provideradapter.NewError(provideradapter.ErrTimeout, "request timed out", err)
		default:
			if se.Code >= 500 {
				return provideradapter.NewError(provideradapter.ErrUpstreamError, "provider returned a server error", err)
			}
			return provideradapter.NewError(provideradapter.ErrMalformedResponse, "provider returned an unexpected response", err)
		}
	}
	return provideradapter.NewError(provideradapter.ErrTransport, "request failed", err)
}
