// Package grok adapts xAI Grok's chat completions API to
// provideradapter.Adapter, extracting citations with the shared
// unstructured-text rules in openaitext.
package grok

import (
	"time"

	"github.com/citewatch/tracker/internal/config"
	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/ratelimit"
	"github.com/citewatch/tracker/pkg/aiproviders/openaitext"
)

const (
	defaultBaseURL    = "https://api.x.ai/v1"
	defaultModel      = "grok-2-latest"
	defaultRatePerMin = 60
	defaultMaxTokens  = 1024
	systemPrompt      = "Answer the user's question directly and cite your sources with URLs."
)

// New builds a Grok adapter from a loaded provider config.
func New(cfg config.ProviderConfig) provideradapter.Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}
	ratePerMin := cfg.RatePerMin
	if ratePerMin <= 0 {
		ratePerMin = defaultRatePerMin
	}

	client := openaitext.NewClient(openaitext.Config{
		APIKey:  cfg.APIKey,
		BaseURL: baseURL,
		Model:   modelName,
	})

	return openaitext.NewAdapter(openaitext.AdapterConfig{
		Provider:         model.ProviderGrok,
		Client:           client,
		Limiter:          ratelimit.NewWindow(ratePerMin, time.Minute).WithRedis(ratelimit.SharedClient, "grok"),
		SystemPrompt:     systemPrompt,
		DefaultMaxTokens: defaultMaxTokens,
	})
}
