package openaitext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCitations_MarkdownLinks(t *testing.T) {
	text := "See [Acme Docs](https://acme.com/docs) for details, also [Blog](https://acme.com/blog)."
	got := ExtractCitations(text)
	require.Len(t, got, 2)
	assert.Equal(t, "https://acme.com/docs", got[0].URL)
	assert.Equal(t, "Acme Docs", got[0].Title)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "https://acme.com/blog", got[1].URL)
	assert.Equal(t, 2, got[1].Rank)
}

func TestExtractCitations_BareURLs(t *testing.T) {
	text := "Check https://example.com/a and https://example.com/b for more."
	got := ExtractCitations(text)
	require.Len(t, got, 2)
	assert.Equal(t, "https://example.com/a", got[0].URL)
	assert.Equal(t, "https://example.com/b", got[1].URL)
}

func TestExtractCitations_NumberedCitations(t *testing.T) {
	text := "This is well known [1] Acme Corp https://acme.com/source"
	got := ExtractCitations(text)
	require.Len(t, got, 1)
	assert.Equal(t, "https://acme.com/source", got[0].URL)
	assert.Equal(t, "Acme Corp", got[0].Snippet)
}

func TestExtractCitations_PrecedenceOrder(t *testing.T) {
	// Markdown wins first, then bare URLs, then numbered citations, all
	// deduplicated by URL regardless of which pattern spotted them first.
	text := "[Docs](https://acme.com/docs) plain https://acme.com/plain [1] note https://acme.com/numbered"
	got := ExtractCitations(text)
	require.Len(t, got, 3)
	assert.Equal(t, "https://acme.com/docs", got[0].URL)
	assert.Equal(t, "https://acme.com/plain", got[1].URL)
	assert.Equal(t, "https://acme.com/numbered", got[2].URL)
}

func TestExtractCitations_DedupesByURL(t *testing.T) {
	text := "[Docs](https://acme.com/docs) also see https://acme.com/docs again [1] repeat https://acme.com/docs"
	got := ExtractCitations(text)
	require.Len(t, got, 1)
	assert.Equal(t, "https://acme.com/docs", got[0].URL)
	assert.Equal(t, "Docs", got[0].Title)
}

func TestExtractCitations_NoCitations(t *testing.T) {
	got := ExtractCitations("Plain prose with no links or references at all.")
	assert.Empty(t, got)
}

func TestExtractCitations_RanksAreDenseAndFirstSeen(t *testing.T) {
	text := "[A](https://a.com) [B](https://b.com) [C](https://c.com)"
	got := ExtractCitations(text)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i+1, c.Rank)
	}
}
