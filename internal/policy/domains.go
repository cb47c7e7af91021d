package policy

import (
	"regexp"
	"strings"
)

// DomainSet is a normalized, ordered list of registrable domains. A host
// matches when it equals an entry or is a strict subdomain of it.
type DomainSet struct {
	domains []string
	index   map[string]struct{}
}

// NewDomainSet trims, lowercases and deduplicates the given domains while
// preserving first-seen order.
func NewDomainSet(domains ...string) DomainSet {
	set := DomainSet{index: make(map[string]struct{}, len(domains))}
	for _, raw := range domains {
		set.add(raw)
	}
	return set
}

func (s *DomainSet) add(raw string) {
	value := strings.Trim(strings.TrimSpace(strings.ToLower(raw)), ".")
	if value == "" {
		return
	}
	if _, ok := s.index[value]; ok {
		return
	}
	s.index[value] = struct{}{}
	s.domains = append(s.domains, value)
}

// Domains returns a copy of the normalized entries.
func (s DomainSet) Domains() []string {
	return append([]string(nil), s.domains...)
}

// Len returns the number of entries.
func (s DomainSet) Len() int {
	return len(s.domains)
}

// Union returns a new set holding the entries of s followed by those of other.
func (s DomainSet) Union(other DomainSet) DomainSet {
	out := NewDomainSet(s.domains...)
	for _, d := range other.domains {
		out.add(d)
	}
	return out
}

// Matches reports whether host equals an entry or is a subdomain of one.
func (s DomainSet) Matches(host string) bool {
	return s.Match(host) != ""
}

// Match returns the entry host belongs to, or "" when there is none.
// An exact entry wins over a shorter parent domain.
func (s DomainSet) Match(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return ""
	}
	if _, exact := s.index[host]; exact {
		return host
	}
	best := ""
	for _, domain := range s.domains {
		if strings.HasSuffix(host, "."+domain) && len(domain) > len(best) {
			best = domain
		}
	}
	return best
}

// IsAllowlisted reports whether the hostname of rawURL is covered by allow.
// Malformed URLs are never allowlisted.
func IsAllowlisted(rawURL string, allow DomainSet) bool {
	return allow.Matches(Hostname(rawURL))
}

var unsafeDomainChars = regexp.MustCompile(`[^a-z0-9.-]`)

// SanitizeDomain lowercases host and replaces every character outside
// [a-z0-9.-] with '-', yielding a stable registry key.
func SanitizeDomain(host string) string {
	return unsafeDomainChars.ReplaceAllString(strings.ToLower(host), "-")
}
