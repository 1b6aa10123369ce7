package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citewatch/tracker/internal/provideradapter"
)

func TestNormalize_TargetDomainFound(t *testing.T) {
	raw := []provideradapter.RawCitation{
		{URL: "https://competitor.com/page", Rank: 1, Title: "Competitor"},
		{URL: "https://acme.com/docs", Rank: 2, Title: "Acme Docs"},
	}
	result := Normalize(raw, "acme.com", []string{"competitor.com"})

	require.True(t, result.DomainMentioned)
	require.NotNil(t, result.CitationPosition)
	assert.Equal(t, 2, *result.CitationPosition)
	require.NotNil(t, result.CitationContext)
	assert.Equal(t, "Acme Docs", *result.CitationContext)
	require.Len(t, result.CompetitorCitations, 1)
	assert.Equal(t, "competitor.com", result.CompetitorCitations[0].Domain)
	assert.Equal(t, 2, result.TotalSourcesCited)
}

func TestNormalize_SubdomainMatchesTarget(t *testing.T) {
	raw := []provideradapter.RawCitation{
		{URL: "https://blog.acme.com/post", Rank: 1},
	}
	result := Normalize(raw, "acme.com", nil)
	assert.True(t, result.DomainMentioned)
	assert.Equal(t, 1, *result.CitationPosition)
}

func TestNormalize_WWWPrefixStripped(t *testing.T) {
	raw := []provideradapter.RawCitation{
		{URL: "https://www.acme.com/page", Rank: 1},
	}
	result := Normalize(raw, "acme.com", nil)
	assert.True(t, result.DomainMentioned)
}

func TestNormalize_NoTargetMatch(t *testing.T) {
	raw := []provideradapter.RawCitation{
		{URL: "https://other.com/page", Rank: 1},
	}
	result := Normalize(raw, "acme.com", nil)
	assert.False(t, result.DomainMentioned)
	assert.Nil(t, result.CitationPosition)
	assert.Nil(t, result.CitationContext)
	assert.Equal(t, 1, result.TotalSourcesCited)
}

func TestNormalize_DuplicateURLCollapsesToOne(t *testing.T) {
	raw := []provideradapter.RawCitation{
		{URL: "https://acme.com/page", Rank: 1},
		{URL: "https://acme.com/page", Rank: 3},
	}
	result := Normalize(raw, "acme.com", nil)
	assert.True(t, result.DomainMentioned)
	assert.Equal(t, 1, *result.CitationPosition)
	assert.Equal(t, 1, result.TotalSourcesCited)
}

func TestNormalize_SecondTargetURLDoesNotChangePosition(t *testing.T) {
	raw := []provideradapter.RawCitation{
		{URL: "https://acme.com/first", Rank: 1},
		{URL: "https://acme.com/second", Rank: 2},
	}
	result := Normalize(raw, "acme.com", nil)
	assert.Equal(t, 1, *result.CitationPosition)
	assert.Equal(t, 1, result.TotalSourcesCited)
}

func TestNormalize_BlankHostDropped(t *testing.T) {
	raw := []provideradapter.RawCitation{
		{URL: "not a url", Rank: 1},
		{URL: "https://acme.com/page", Rank: 2},
	}
	result := Normalize(raw, "acme.com", nil)
	assert.True(t, result.DomainMentioned)
	assert.Equal(t, 2, *result.CitationPosition)
	assert.Equal(t, 1, result.TotalSourcesCited)
}

func TestNormalize_EmptyCitationList(t *testing.T) {
	result := Normalize(nil, "acme.com", nil)
	assert.False(t, result.DomainMentioned)
	assert.Equal(t, 0, result.TotalSourcesCited)
	assert.Empty(t, result.CompetitorCitations)
}
