// Package openaitext implements the shared citation-extraction rules for
// providers that return unstructured prose with no dedicated citation
// field: ChatGPT, Copilot, Grok, and Deepseek all follow this contract.
package openaitext

import (
	"regexp"

	"github.com/citewatch/tracker/internal/provideradapter"
)

// markdownLinkRE matches Markdown-style [title](url) links.
var markdownLinkRE = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)

// bareURLRE matches a bare http(s) URL not already consumed by another rule.
var bareURLRE = regexp.MustCompile(`https?://[^\s\]\)]+`)

// numberedCitationRE matches "[n] ... url" style numbered citation lines.
var numberedCitationRE = regexp.MustCompile(`\[(\d+)\]\s*([^\n]*?)\s*(https?://\S+)`)

// ExtractCitations scans response text for citations in precedence order —
// Markdown links, then bare URLs, then numbered citations — deduplicating
// by URL and assigning dense 1-based ranks on a first-seen basis. A later
// rule that finds an already-seen URL still fills in its empty snippet.
func ExtractCitations(text string) []provideradapter.RawCitation {
	seen := make(map[string]int)
	var out []provideradapter.RawCitation

	addIfNew := func(url, title, snippet string) {
		if url == "" {
			return
		}
		if i, ok := seen[url]; ok {
			if out[i].Snippet == "" {
				out[i].Snippet = snippet
			}
			return
		}
		seen[url] = len(out)
		out = append(out, provideradapter.RawCitation{
			URL:     url,
			Title:   title,
			Snippet: snippet,
			Rank:    len(out) + 1,
		})
	}

	for _, m := range markdownLinkRE.FindAllStringSubmatch(text, -1) {
		addIfNew(m[2], m[1], "")
	}
	for _, url := range bareURLRE.FindAllString(text, -1) {
		addIfNew(url, "", "")
	}
	for _, m := range numberedCitationRE.FindAllStringSubmatch(text, -1) {
		addIfNew(m[3], "", m[2])
	}

	return out
}
