package gemini

import (
	"regexp"
	"strconv"

	"github.com/citewatch/tracker/internal/provideradapter"
)

// inlineRefRE matches Gemini's inline "[n]" style reference markers. These
// carry no URL of their own; they only establish where in the text a
// grounding chunk was cited, which is why extraction still walks
// groundingChunks for the actual URIs and only uses inline markers to order
// chunks that would otherwise tie on their original index.
var inlineRefRE = regexp.MustCompile(`\[(\d+)\]`)

// extractCitations builds the citation list from a candidate's grounding
// chunks, ordered by the position their inline "[n]" marker first appears
// in the response text, falling back to declaration order for chunks never
// referenced inline. Ranks are normalized to 1-based dense, first-seen.
func extractCitations(text string, meta GroundingMetadata) []provideradapter.RawCitation {
	firstSeen := make(map[int]int) // 1-based chunk index -> position in text
	for i, m := range inlineRefRE.FindAllStringSubmatchIndex(text, -1) {
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		if _, ok := firstSeen[n]; !ok {
			firstSeen[n] = i
		}
	}

	type indexed struct {
		chunk GroundingChunk
		order int
	}
	ordered := make([]indexed, 0, len(meta.GroundingChunks))
	for i, c := range meta.GroundingChunks {
		order, ok := firstSeen[i+1]
		if !ok {
			order = len(text) + i // unreferenced chunks sort after referenced ones, in declaration order
		}
		ordered = append(ordered, indexed{chunk: c, order: order})
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].order < ordered[j-1].order; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	seen := make(map[string]bool)
	var out []provideradapter.RawCitation
	for _, e := range ordered {
		uri := e.chunk.Web.URI
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		out = append(out, provideradapter.RawCitation{
			URL:   uri,
			Title: e.chunk.Web.Title,
			Rank:  len(out) + 1,
		})
	}
	return out
}
