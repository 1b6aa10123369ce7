package openaitext

import (
	"context"
	"net/http"
	"time"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/ratelimit"
)

// AdapterConfig parameterizes the shared unstructured-text adapter for one
// OpenAI-compatible provider.
type AdapterConfig struct {
	Provider         model.Provider
	Client           Client
	Limiter          *ratelimit.Window
	SystemPrompt     string
	DefaultMaxTokens int
}

// Adapter implements provideradapter.Adapter for any provider that answers
// with unstructured prose and no dedicated citations field: ChatGPT,
// Copilot, Grok, and Deepseek all share this implementation, differing only
// in their Client's base URL, model, and API key.
type Adapter struct {
	cfg AdapterConfig
}

// NewAdapter wraps an OpenAI-compatible Client as a provideradapter.Adapter.
func NewAdapter(cfg AdapterConfig) *Adapter {
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Name() model.Provider { return a.cfg.Provider }

func (a *Adapter) Query(ctx context.Context, queryText string, opts provideradapter.Options) (*provideradapter.Answer, error) {
	if err := a.cfg.Limiter.Wait(ctx); err != nil {
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
		maxTokens = a.cfg.DefaultMaxTokens
	}

	messages := []Message{{Role: "user", Content: queryText}}
	if a.cfg.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: a.cfg.SystemPrompt}}, messages...)
	}

	start := time.Now()
	req := ChatCompletionRequest{
		Messages:  messages,
		MaxTokens: &maxTokens,
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}

	resp, err := a.cfg.Client.ChatCompletion(qctx, req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, provideradapter.NewError(provideradapter.ErrMalformedResponse, "no completion choices returned", nil)
	}

	text := resp.Choices[0].Message.Content
	return &provideradapter.Answer{
		Provider:       a.cfg.Provider,
		Query:          queryText,
		ResponseText:   text,
		Citations:      ExtractCitations(text),
		ResponseTimeMs: elapsed.Milliseconds(),
	}, nil
}

func (a *Adapter) RateLimitStatus() provideradapter.RateLimitStatus {
	st := a.cfg.Limiter.Status()
	return provideradapter.RateLimitStatus{Limit: st.Limit, Used: st.Used, ResetAt: st.ResetAt}
}

func (a *Adapter) Healthcheck(ctx context.Context) provideradapter.HealthStatus {
	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := a.cfg.Client.ChatCompletion(hctx, ChatCompletionRequest{
		Messages:  []Message{{Role: "user", Content: "ping"}},
		MaxTokens: intPtr(1),
	})
	if err != nil {
		provErr := classifyError(err)
		return provideradapter.HealthStatus{OK: false, Kind: provErr.Kind, Message: provErr.Message}
	}
	return provideradapter.HealthStatus{OK: true}
}

func intPtr(n int) *int { return &n }

// classifyError maps a transport or HTTP-status error into a typed
// provideradapter.Error, so callers never need to sniff error strings.
func classifyError(err error) *provideradapter.Error {
	if se, ok := err.(*statusError); ok {
		switch se.code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return provideradapter.NewError(provideradapter.ErrAuth, "authentication rejected", err)
		case http.StatusTooManyRequests:
			return provideradapter.NewError(provideradapter.ErrRateLimited, "provider rate limit exceeded", err)
		case http.StatusPaymentRequired:
			return provideradapter.NewError(provideradapter.ErrQuotaExceeded, "quota exceeded", err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return provideradapter.NewError(provideradapter.ErrTimeout, "request timed out", err)
		default:
			if se.code >= 500 {
				return provideradapter.NewError(provideradapter.ErrUpstreamError, "provider returned a server error", err)
			}
			return provideradapter.NewError(provideradapter.ErrMalformedResponse, "provider returned an unexpected response", err)
		}
	}
	if ue, ok := err.(interface{ Unwrap() error }); ok {
		if ne, ok := ue.Unwrap().(interface{ Timeout() bool }); ok && ne.Timeout() {
			return provideradapter.NewError(provideradapter.ErrTimeout, "request timed out", err)
		}
	}
	return provideradapter.NewError(provideradapter.ErrTransport, "request failed", err)
}
