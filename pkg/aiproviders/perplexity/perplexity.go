// Package perplexity adapts pkg/perplexity's raw HTTP client to
// provideradapter.Adapter, applying the Perplexity-style citation rule:
// citations are a flat URI array with empty title/snippet, rank = index+1.
package perplexity

import (
	"context"
	"net/http"
	"time"

	"github.com/citewatch/tracker/internal/config"
	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/ratelimit"
	perplexitysdk "github.com/citewatch/tracker/pkg/perplexity"
)

const (
	defaultRatePerMin = 50
	defaultMaxTokens  = 1024
)

// Adapter wraps a perplexitysdk.Client with rate limiting and citation
// extraction.
type Adapter struct {
	client  perplexitysdk.Client
	limiter *ratelimit.Window
}

// New builds a Perplexity adapter from a loaded provider config.
func New(cfg config.ProviderConfig) provideradapter.Adapter {
	var opts []perplexitysdk.Option
	if cfg.BaseURL != "" {
		opts = append(opts, perplexitysdk.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, perplexitysdk.WithModel(cfg.Model))
	}

	ratePerMin := cfg.RatePerMin
	if ratePerMin <= 0 {
		ratePerMin = defaultRatePerMin
	}

	return &Adapter{
		client:  perplexitysdk.NewClient(cfg.APIKey, opts...),
		limiter: ratelimit.NewWindow(ratePerMin, time.Minute).WithRedis(ratelimit.SharedClient, "perplexity"),
	}
}

func (a *Adapter) Name() model.Provider { return model.ProviderPerplexity }

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

	req := perplexitysdk.ChatCompletionRequest{
		Messages:  []perplexitysdk.Message{{Role: "user", Content: queryText}},
		MaxTokens: &maxTokens,
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}

	start := time.Now()
	resp, err := a.client.ChatCompletion(qctx, req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, provideradapter.NewError(provideradapter.ErrMalformedResponse, "no completion choices returned", nil)
	}

	citations := make([]provideradapter.RawCitation, 0, len(resp.Citations))
	for i, uri := range resp.Citations {
		citations = append(citations, provideradapter.RawCitation{URL: uri, Rank: i + 1})
	}

	return &provideradapter.Answer{
		Provider:       model.ProviderPerplexity,
		Query:          queryText,
		ResponseText:   resp.Choices[0].Message.Content,
		Citations:      citations,
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

	maxTokens := 1
	_, err := a.client.ChatCompletion(hctx, perplexitysdk.ChatCompletionRequest{
		Messages:  []perplexitysdk.Message{{Role: "user", Content: "ping"}},
		MaxTokens: &maxTokens,
	})
	if err != nil {
		provErr := classifyError(err)
		return provideradapter.HealthStatus{OK: false, Kind: provErr.Kind, Message: provErr.Message}
	}
	return provideradapter.HealthStatus{OK: true}
}

func classifyError(err error) *provideradapter.Error {
	if se, ok := err.(*perplexitysdk.StatusError); ok {
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
