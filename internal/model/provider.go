package model

// Provider identifies a generative-AI answering engine. The set below is
// closed at this release but the type is a plain string so a future
// adapter can register a new value without a schema migration.
type Provider string

const (
	ProviderGoogleAIOverview Provider = "google_ai_overview"
	ProviderGemini           Provider = "gemini"
	ProviderChatGPT          Provider = "chatgpt"
	ProviderPerplexity       Provider = "perplexity"
	ProviderCopilot          Provider = "copilot"
	ProviderClaude           Provider = "claude"
	ProviderGrok             Provider = "grok"
	ProviderDeepseek         Provider = "deepseek"
)

// RegisteredProviders is the set known at this release. New peers are
// added here (and to an adapter registration call) without touching the
// schema, which stores providers as plain text.
var RegisteredProviders = []Provider{
	ProviderGoogleAIOverview,
	ProviderGemini,
	ProviderChatGPT,
	ProviderPerplexity,
	ProviderCopilot,
	ProviderClaude,
	ProviderGrok,
	ProviderDeepseek,
}

// IsRegistered reports whether p is one of the providers known at this release.
func IsRegistered(p Provider) bool {
	for _, r := range RegisteredProviders {
		if r == p {
			return true
		}
	}
	return false
}
