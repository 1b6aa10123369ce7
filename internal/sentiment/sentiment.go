// Package sentiment implements the deterministic, lexicon-based sentiment
// and confidence heuristic (C3) applied to sentences of a provider
// response that mention the target domain.
package sentiment

import (
	"regexp"
	"strings"
	"time"

	prose "github.com/jdkato/prose/v2"

	"github.com/citewatch/tracker/internal/model"
)

// DefaultPositiveLexicon and DefaultNegativeLexicon are the baseline word
// sets spec-pinned tests target. Config can override both at init time.
var (
	DefaultPositiveLexicon = []string{"best", "excellent", "top", "recommended", "leading", "outstanding", "superior"}
	DefaultNegativeLexicon = []string{"worst", "poor", "avoid", "bad", "terrible", "disappointing"}
)

var sentenceSplitRE = regexp.MustCompile(`[.!?]+`)

// sentenceEndRE matches a run of [.!?]+ that ends the text or is followed
// by whitespace, so the dot inside a host such as "acme.com" is not a
// sentence break.
var sentenceEndRE = regexp.MustCompile(`[.!?]+(\s+|$)`)

// Analyzer scores response text against a configurable lexicon pair.
type Analyzer struct {
	positive map[string]bool
	negative map[string]bool
}

// NewAnalyzer builds an Analyzer from the given lexicons, or the defaults
// if either is nil.
func NewAnalyzer(positiveLexicon, negativeLexicon []string) *Analyzer {
	if positiveLexicon == nil {
		positiveLexicon = DefaultPositiveLexicon
	}
	if negativeLexicon == nil {
		negativeLexicon = DefaultNegativeLexicon
	}
	return &Analyzer{
		positive: toSet(positiveLexicon),
		negative: toSet(negativeLexicon),
	}
}

func toSet(words []string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[strings.ToLower(w)] = true
	}
	return out
}

// Analyze splits responseText into sentences, keeps those mentioning
// primaryDomain, and classifies the selected set per spec §4.3 step 4.
func (a *Analyzer) Analyze(responseText, primaryDomain string) model.Sentiment {
	primaryDomain = strings.ToLower(primaryDomain)
	if primaryDomain == "" {
		return model.SentimentNeutral
	}

	var positiveCount, negativeCount int
	found := false
	for _, sentence := range splitSentences(responseText) {
		lower := strings.ToLower(sentence)
		if !strings.Contains(lower, primaryDomain) {
			continue
		}
		found = true
		words := strings.Fields(lower)
		for _, w := range words {
			w = strings.Trim(w, ".,!?;:'\"()")
			if a.positive[w] {
				positiveCount++
			}
			if a.negative[w] {
				negativeCount++
			}
		}
	}

	if !found {
		return model.SentimentNeutral
	}
	switch {
	case positiveCount > negativeCount:
		return model.SentimentPositive
	case negativeCount > positiveCount:
		return model.SentimentNegative
	default:
		return model.SentimentNeutral
	}
}

// splitSentences breaks text on runs of [.!?]+ that end the text or are
// followed by whitespace, dropping empty results.
func splitSentences(text string) []string {
	parts := sentenceEndRE.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Confidence computes the [0,1] heuristic from citation count, response
// time, and response text length per spec §4.3.
func Confidence(citationCount int, responseTime time.Duration, responseTextLen int) float64 {
	score := 0.5
	switch {
	case citationCount >= 5:
		score += 0.2
	case citationCount >= 3:
		score += 0.1
	}
	if responseTime < 3*time.Second {
		score += 0.1
	}
	if responseTextLen > 500 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// WordCount tokenizes text with prose's sentence/word tokenizer, giving a
// linguistically meaningful count rather than a naive whitespace split.
func WordCount(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	doc, err := prose.NewDocument(text, prose.WithExtraction(false), prose.WithTagging(false))
	if err != nil {
		return len(strings.Fields(text))
	}
	count := 0
	for _, tok := range doc.Tokens() {
		if strings.TrimSpace(tok.Text) == "" {
			continue
		}
		count++
	}
	return count
}

const summaryMaxLen = 500
const summaryMinBoundaryRatio = 0.7

// Summarize truncates responseText to at most 500 characters at the last
// sentence boundary whose end index is >= 70% of the max length. If there
// is no such boundary it hard-truncates at 500 characters and appends
// "...", giving at most 503 characters.
func Summarize(responseText string) string {
	if len(responseText) <= summaryMaxLen {
		return responseText
	}

	truncated := responseText[:summaryMaxLen]
	minBoundary := int(float64(summaryMaxLen) * summaryMinBoundaryRatio)

	best := -1
	for _, loc := range sentenceSplitRE.FindAllStringIndex(truncated, -1) {
		end := loc[1]
		if end >= minBoundary {
			best = end
		}
	}
	if best > 0 {
		return strings.TrimSpace(responseText[:best])
	}

	return strings.TrimSpace(truncated) + "..."
}
