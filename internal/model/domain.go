package model

import "strings"

// NormalizeDomain lowercases a domain and strips a leading "www." label.
// It does not validate the result is a well-formed domain; callers that
// need that guarantee use the competitor-domain regex at the API boundary.
func NormalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "www.")
	return domain
}

// DomainMatches reports whether host matches target exactly or as a
// subdomain of target, per spec §4.2 step 2. Both arguments are expected
// to already be lowercased; callers normalize before calling.
func DomainMatches(host, target string) bool {
	if host == "" || target == "" {
		return false
	}
	return host == target || strings.HasSuffix(host, "."+target)
}
