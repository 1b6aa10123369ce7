// Package deepseek adapts Deepseek's chat completions API to
// provideradapter.Adapter, extracting citations with the shared
// unstructured-text rules in openaitext.
package deepseek

import (
	"time"

	"github.com/citewatch/tracker/internal/config"
	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/ratelimit"
	"github.com/citewatch/tracker/pkg/aiproviders/openaitext"
)

const (
	defaultBaseURL    = "https://api.deepseek.com/v1"
	defaultModel      = "deepseek-chat"
	defaultRatePerMin = 60
	defaultMaxTokens  = 1024
	systemPrompt      = "Answer the user's question directly and cite your sources with URLs."
)

// New builds a Deepseek adapter from a loaded provider config.
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
		Provider:         model.ProviderDeepseek,
		Client:           client,
		Limiter:          ratelimit.NewWindow(ratePerMin, time.Minute).WithRedis(ratelimit.SharedClient, "deepseek"),
		SystemPrompt:     systemPrompt,
		DefaultMaxTokens: defaultMaxTokens,
	})
}
