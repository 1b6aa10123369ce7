package model

import "time"

// Organization is the tenant container that owns a Project. Tenancy
// enforcement itself happens at the API boundary; this record exists so
// ownership tags (e.g. on Alert) have somewhere to point.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxCompetitorDomains is the hard cap on a project's competitor list.
const MaxCompetitorDomains = 10

// Project is a tracked brand: a primary domain plus the competitor set it
// is benchmarked against.
type Project struct {
	ID                string    `json:"id"`
	OrganizationID    string    `json:"organization_id"`
	PrimaryDomain     string    `json:"primary_domain"`
	CompetitorDomains []string  `json:"competitor_domains"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AddCompetitor appends a competitor domain, enforcing the cap and the
// invariant that the primary domain never appears in the competitor set.
func (p *Project) AddCompetitor(domain string) error {
	domain = NormalizeDomain(domain)
	if domain == p.PrimaryDomain {
		return errInvalidCompetitor("competitor domain equals primary domain")
	}
	if len(p.CompetitorDomains) >= MaxCompetitorDomains {
		return errInvalidCompetitor("competitor domain limit reached")
	}
	for _, d := range p.CompetitorDomains {
		if d == domain {
			return nil // already present, idempotent
		}
	}
	p.CompetitorDomains = append(p.CompetitorDomains, domain)
	return nil
}

// RemoveCompetitor removes a competitor domain if present.
func (p *Project) RemoveCompetitor(domain string) {
	domain = NormalizeDomain(domain)
	out := p.CompetitorDomains[:0]
	for _, d := range p.CompetitorDomains {
		if d != domain {
			out = append(out, d)
		}
	}
	p.CompetitorDomains = out
}

type invalidCompetitorError string

func (e invalidCompetitorError) Error() string { return string(e) }

func errInvalidCompetitor(msg string) error { return invalidCompetitorError(msg) }
