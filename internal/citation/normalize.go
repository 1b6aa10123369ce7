// Package citation implements the citation normalizer (C2): it resolves a
// provider's raw citation list against a project's primary and competitor
// domains, producing the fields persisted on a model.Citation.
package citation

import (
	"net/url"
	"strings"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/provideradapter"
)

// Result is the normalizer's output, ready to be copied onto a
// model.Citation alongside the sentiment/word-count fields C3 computes.
type Result struct {
	DomainMentioned     bool
	CitationPosition    *int
	CitationContext     *string
	CompetitorCitations []model.CompetitorCitation
	TotalSourcesCited   int
}

// normalizedCitation is a RawCitation with its host resolved, kept only
// long enough to dedup and classify.
type normalizedCitation struct {
	raw  provideradapter.RawCitation
	host string // "" means domain unknown
}

// Normalize applies spec §4.2 steps 1-6 to a provider answer's raw
// citations against primaryDomain and competitorDomains.
func Normalize(rawCitations []provideradapter.RawCitation, primaryDomain string, competitorDomains []string) Result {
	primaryDomain = model.NormalizeDomain(primaryDomain)
	normalizedCompetitors := make([]string, len(competitorDomains))
	for i, d := range competitorDomains {
		normalizedCompetitors[i] = model.NormalizeDomain(d)
	}

	deduped := dedupeByCanonicalURL(rawCitations)

	result := Result{}
	targetFound := false
	for _, nc := range deduped {
		if nc.host == "" {
			continue
		}
		if !targetFound && model.DomainMatches(nc.host, primaryDomain) {
			targetFound = true
			result.DomainMentioned = true
			pos := nc.raw.Rank
			result.CitationPosition = &pos
			if ctx := citationContext(nc.raw); ctx != "" {
				result.CitationContext = &ctx
			}
			continue
		}
		if model.DomainMatches(nc.host, primaryDomain) {
			// additional target-domain entry beyond the first: still part
			// of the citation list, but does not change citation_position.
			continue
		}

		domain := nc.host
		if matchesAny(nc.host, normalizedCompetitors) {
			domain = matchingDomain(nc.host, normalizedCompetitors)
		}
		result.CompetitorCitations = append(result.CompetitorCitations, model.CompetitorCitation{
			Domain:   domain,
			URL:      nc.raw.URL,
			Position: nc.raw.Rank,
			Context:  citationContext(nc.raw),
		})
	}

	selfCount := 0
	if result.DomainMentioned {
		selfCount = 1
	}
	result.TotalSourcesCited = selfCount + len(result.CompetitorCitations)

	return result
}

// dedupeByCanonicalURL resolves each citation's host and drops repeats of
// the same canonical URL, keeping the first (earliest-ranked) occurrence.
// Entries whose host can't be determined are dropped entirely per step 1.
func dedupeByCanonicalURL(raw []provideradapter.RawCitation) []normalizedCitation {
	seen := make(map[string]bool)
	out := make([]normalizedCitation, 0, len(raw))
	for _, c := range raw {
		canonical, host := canonicalize(c.URL)
		if host == "" {
			continue
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, normalizedCitation{raw: c, host: host})
	}
	return out
}

// canonicalize lowercases the host, strips a leading "www." label, and
// strips query/fragment for the purpose of domain extraction and dedup
// only; the full URL is preserved on the record separately.
func canonicalize(rawURL string) (canonical, host string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || u.Opaque != "" {
		return "", ""
	}

	h := strings.ToLower(u.Hostname())
	h = strings.TrimPrefix(h, "www.")
	if h == "" {
		return "", ""
	}

	canon := strings.ToLower(u.Scheme) + "://" + h + u.EscapedPath()
	return canon, h
}

func citationContext(c provideradapter.RawCitation) string {
	if c.Title != "" {
		return c.Title
	}
	return c.Snippet
}

func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		if model.DomainMatches(host, d) {
			return true
		}
	}
	return false
}

func matchingDomain(host string, domains []string) string {
	for _, d := range domains {
		if model.DomainMatches(host, d) {
			return d
		}
	}
	return host
}
