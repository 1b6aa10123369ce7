// Package providers wires internal/config's provider settings into a
// live provideradapter.Registry, one adapter package per model.Provider.
package providers

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/citewatch/tracker/internal/config"
	"github.com/citewatch/tracker/internal/crypto"
	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/resilience"
	"github.com/citewatch/tracker/internal/store"
	"github.com/citewatch/tracker/pkg/aiproviders/chatgpt"
	"github.com/citewatch/tracker/pkg/aiproviders/claude"
	"github.com/citewatch/tracker/pkg/aiproviders/copilot"
	"github.com/citewatch/tracker/pkg/aiproviders/deepseek"
	"github.com/citewatch/tracker/pkg/aiproviders/gemini"
	"github.com/citewatch/tracker/pkg/aiproviders/googleaio"
	"github.com/citewatch/tracker/pkg/aiproviders/grok"
	"github.com/citewatch/tracker/pkg/aiproviders/perplexity"
)

// constructors maps every provider this release knows about to its
// adapter package's New. A provider absent from cfg.Providers (no API
// key configured) is simply never registered.
var constructors = map[model.Provider]func(config.ProviderConfig) provideradapter.Adapter{
	model.ProviderGoogleAIOverview: googleaio.New,
	model.ProviderGemini:           gemini.New,
	model.ProviderChatGPT:          chatgpt.New,
	model.ProviderPerplexity:       perplexity.New,
	model.ProviderCopilot:          copilot.New,
	model.ProviderClaude:           claude.New,
	model.ProviderGrok:             grok.New,
	model.ProviderDeepseek:         deepseek.New,
}

// BuildRegistry constructs one adapter per configured provider and
// registers it. Providers named in model.RegisteredProviders but missing
// from cfg.Providers (no credential) are left unregistered; callers
// treat that identically to any other "not configured" outcome.
func BuildRegistry(cfg map[string]config.ProviderConfig) *provideradapter.Registry {
	registry := provideradapter.NewRegistry()
	breakers := resilience.NewServiceBreakers(provideradapter.DefaultBreakerConfig())
	for _, provider := range model.RegisteredProviders {
		providerCfg, ok := cfg[string(provider)]
		if !ok {
			continue
		}
		newAdapter, ok := constructors[provider]
		if !ok {
			continue
		}
		registry.RegisterWithBreaker(newAdapter(providerCfg), breakers)
	}
	return registry
}

// SealCredentials re-seats every configured provider's API key behind
// AES-GCM encryption at rest (spec §1/§5) instead of leaving env-loaded
// plaintext as the only representation of a secret this process holds.
// Each configured key is sealed and upserted into the store, then every
// persisted ProviderCredential is read back and opened, so the config map
// BuildRegistry ultimately receives is reconstructed from the encrypted
// row, not just passed through from the environment. When sealer is nil
// (no TRACKER_CREDENTIAL_ENCRYPTION_KEY configured), cfg is returned
// unchanged — a documented fallback for local/dev use, not silent
// plaintext-by-default in a deployment that opted into encryption.
func SealCredentials(ctx context.Context, st store.Store, sealer *crypto.Sealer, cfg map[string]config.ProviderConfig) (map[string]config.ProviderConfig, error) {
	if sealer == nil {
		return cfg, nil
	}

	for name, providerCfg := range cfg {
		if providerCfg.APIKey == "" {
			continue
		}
		cred, err := sealer.Seal(model.Provider(name), providerCfg.APIKey, providerCfg.RatePerMin)
		if err != nil {
			return nil, eris.Wrapf(err, "providers: seal credential for %s", name)
		}
		if err := st.UpsertProviderCredential(ctx, cred); err != nil {
			return nil, eris.Wrapf(err, "providers: persist sealed credential for %s", name)
		}
	}

	creds, err := st.ListProviderCredentials(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "providers: load sealed credentials")
	}

	out := make(map[string]config.ProviderConfig, len(cfg))
	for _, cred := range creds {
		plaintext, err := sealer.Open(&cred)
		if err != nil {
			return nil, eris.Wrapf(err, "providers: open sealed credential for %s", cred.Provider)
		}
		providerCfg := cfg[string(cred.Provider)]
		providerCfg.APIKey = plaintext
		providerCfg.RatePerMin = cred.RatePerMinute
		out[string(cred.Provider)] = providerCfg
	}
	return out, nil
}
