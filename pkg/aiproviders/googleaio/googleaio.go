// Package googleaio adapts a Google Search results page to
// provideradapter.Adapter by scraping the AI Overview block, if present.
// Absence of the block is not an error: the adapter returns the plain
// search snippet with an empty citation list.
package googleaio

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/citewatch/tracker/internal/config"
	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/ratelimit"
)

const (
	defaultBaseURL    = "https://www.google.com/search"
	defaultRatePerMin = 20
	userAgent         = "citewatch-tracker/1.0"

	// Selectors target the AI Overview block Google renders above organic
	// results. Google ships no stable public markup for this; these are
	// the attribute hooks observed on rendered SERPs and are expected to
	// need occasional adjustment.
	overviewBlockSelector = `div[data-attrid="wa:/description"], div.LT6XE`
	overviewLinkSelector  = "a[href]"
)

// Adapter scrapes Google's AI Overview SERP block.
type Adapter struct {
	http    *http.Client
	baseURL string
	limiter *ratelimit.Window
}

// New builds a Google AI Overview adapter from a loaded provider config.
func New(cfg config.ProviderConfig) provideradapter.Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	ratePerMin := cfg.RatePerMin
	if ratePerMin <= 0 {
		ratePerMin = defaultRatePerMin
	}

	return &Adapter{
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: baseURL,
		limiter: ratelimit.NewWindow(ratePerMin, time.Minute).WithRedis(ratelimit.SharedClient, "google_ai_overview"),
	}
}

func (a *Adapter) Name() model.Provider { return model.ProviderGoogleAIOverview }

func (a *Adapter) Query(ctx context.Context, queryText string, opts provideradapter.Options) (*provideradapter.Answer, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, provideradapter.NewError(provideradapter.ErrTimeout, "rate limit wait interrupted", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	doc, err := a.fetch(qctx, queryText, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	text, citations := extractOverview(doc)

	return &provideradapter.Answer{
		Provider:       model.ProviderGoogleAIOverview,
		Query:          queryText,
		ResponseText:   text,
		Citations:      citations,
		ResponseTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (a *Adapter) fetch(ctx context.Context, queryText string, opts provideradapter.Options) (*goquery.Document, error) {
	values := url.Values{"q": {queryText}}
	if opts.Locale.Country != "" {
		values.Set("gl", opts.Locale.Country)
	}
	if opts.Locale.Language != "" {
		values.Set("hl", opts.Locale.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, provideradapter.NewError(provideradapter.ErrTransport, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, provideradapter.NewError(provideradapter.ErrTransport, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, provideradapter.NewError(provideradapter.ErrRateLimited, "search rate limited", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provideradapter.NewError(provideradapter.ErrUpstreamError, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, provideradapter.NewError(provideradapter.ErrMalformedResponse, "parse html", eris.Wrap(err, "googleaio"))
	}
	return doc, nil
}

// extractOverview pulls the text_block and references[] from the AI
// Overview block. A missing block yields an empty snippet and no
// citations — the caller treats this as a successful, uneventful query.
func extractOverview(doc *goquery.Document) (string, []provideradapter.RawCitation) {
	block := doc.Find(overviewBlockSelector).First()
	if block.Length() == 0 {
		return "", nil
	}

	text := strings.TrimSpace(block.Text())

	seen := make(map[string]bool)
	var citations []provideradapter.RawCitation
	block.Find(overviewLinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" || seen[href] {
			return
		}
		seen[href] = true
		citations = append(citations, provideradapter.RawCitation{
			URL:   href,
			Title: strings.TrimSpace(s.Text()),
			Rank:  len(citations) + 1,
		})
	})

	return text, citations
}

func (a *Adapter) RateLimitStatus() provideradapter.RateLimitStatus {
	st := a.limiter.Status()
	return provideradapter.RateLimitStatus{Limit: st.Limit, Used: st.Used, ResetAt: st.ResetAt}
}

func (a *Adapter) Healthcheck(ctx context.Context) provideradapter.HealthStatus {
	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := a.fetch(hctx, "ping", provideradapter.Options{})
	if err != nil {
		if provErr, ok := err.(*provideradapter.Error); ok {
			return provideradapter.HealthStatus{OK: false, Kind: provErr.Kind, Message: provErr.Message}
		}
		return provideradapter.HealthStatus{OK: false, Kind: provideradapter.ErrTransport, Message: err.Error()}
	}
	return provideradapter.HealthStatus{OK: true}
}
