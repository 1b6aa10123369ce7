package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_AddCompetitor_RejectsPrimaryDomain(t *testing.T) {
	p := &Project{PrimaryDomain: "acme.com"}
	err := p.AddCompetitor("acme.com")
	assert.Error(t, err)
	assert.Empty(t, p.CompetitorDomains)
}

func TestProject_AddCompetitor_NormalizesWWW(t *testing.T) {
	p := &Project{PrimaryDomain: "acme.com"}
	require.NoError(t, p.AddCompetitor("www.other.com"))
	assert.Equal(t, []string{"other.com"}, p.CompetitorDomains)
}

func TestProject_AddCompetitor_EnforcesCap(t *testing.T) {
	p := &Project{PrimaryDomain: "acme.com"}
	for i := 0; i < MaxCompetitorDomains; i++ {
		require.NoError(t, p.AddCompetitor(string(rune('a'+i))+".com"))
	}
	err := p.AddCompetitor("overflow.com")
	assert.Error(t, err)
	assert.Len(t, p.CompetitorDomains, MaxCompetitorDomains)
}

func TestProject_AddCompetitor_Idempotent(t *testing.T) {
	p := &Project{PrimaryDomain: "acme.com"}
	require.NoError(t, p.AddCompetitor("other.com"))
	require.NoError(t, p.AddCompetitor("other.com"))
	assert.Len(t, p.CompetitorDomains, 1)
}

func TestProject_RemoveCompetitor(t *testing.T) {
	p := &Project{PrimaryDomain: "acme.com", CompetitorDomains: []string{"other.com", "rival.com"}}
	p.RemoveCompetitor("other.com")
	assert.Equal(t, []string{"rival.com"}, p.CompetitorDomains)
}

func TestDomainMatches(t *testing.T) {
	assert.True(t, DomainMatches("example.com", "example.com"))
	assert.True(t, DomainMatches("foo.example.com", "example.com"))
	assert.False(t, DomainMatches("notexample.com", "example.com"))
	assert.False(t, DomainMatches("", "example.com"))
}
