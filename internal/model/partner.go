package model

import "strings"

// Partner is a counterparty entity used as a matching signal source.
// A partner with an empty UserID is global and visible to every user.
type Partner struct {
	ID           string
	UserID       string
	Name         string
	VATID        string
	Website      string
	Aliases      []string
	IBANs        []string
	EmailDomains []string
}

// MatchesIBAN reports whether the given IBAN belongs to this partner.
// Comparison ignores case and embedded spaces.
func (p *Partner) MatchesIBAN(iban string) bool {
	needle := normalizeIBAN(iban)
	if needle == "" {
		return false
	}
	for _, candidate := range p.IBANs {
		if normalizeIBAN(candidate) == needle {
			return true
		}
	}
	return false
}

// MatchesDomain reports whether the given sender domain is one of the
// partner's known email domains.
func (p *Partner) MatchesDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	for _, d := range p.EmailDomains {
		if strings.ToLower(strings.TrimSpace(d)) == domain {
			return true
		}
	}
	return false
}

// AllNames returns the partner's name and aliases, lowercased.
func (p *Partner) AllNames() []string {
	names := make([]string, 0, len(p.Aliases)+1)
	if n := strings.TrimSpace(p.Name); n != "" {
		names = append(names, strings.ToLower(n))
	}
	for _, a := range p.Aliases {
		if a = strings.TrimSpace(a); a != "" {
			names = append(names, strings.ToLower(a))
		}
	}
	return names
}

func normalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
}
