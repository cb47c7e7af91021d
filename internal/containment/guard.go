// Package containment decides which in-page sub-requests a visited page may
// make and records the hosts it reached outside its own domain.
package containment

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/media-discovery-crawler/internal/policy"
)

// Mode selects what happens to a cross-domain request.
type Mode string

const (
	// ModeObserve records cross-domain requests and lets them through.
	ModeObserve Mode = "observe"
	// ModeEnforce records cross-domain requests and aborts them.
	ModeEnforce Mode = "enforce"
)

// ParseMode validates a configured policy name.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeObserve:
		return ModeObserve, nil
	case ModeEnforce:
		return ModeEnforce, nil
	default:
		return "", fmt.Errorf("unknown resource domain policy %q", raw)
	}
}

// Decision is the verdict for a single request.
type Decision struct {
	Allow bool
	// CrossDomain is set when the target host is outside the permitted set.
	CrossDomain bool
	Host        string
}

// Guard inspects the requests of one visit. It is safe for concurrent use.
type Guard struct {
	mode      Mode
	permitted policy.DomainSet

	mu    sync.Mutex
	hosts map[string]struct{}
}

// NewGuard builds a guard for one visit. Requests to any allowlisted domain
// or resource domain, subdomains included, are permitted.
func NewGuard(mode Mode, allow, resources policy.DomainSet) *Guard {
	return &Guard{
		mode:      mode,
		permitted: allow.Union(resources),
		hosts:     make(map[string]struct{}),
	}
}

// Inspect classifies a request URL. URLs without a usable host are allowed.
func (g *Guard) Inspect(rawURL string) Decision {
	host := policy.Hostname(rawURL)
	if host == "" || g.permitted.Matches(host) {
		return Decision{Allow: true, Host: host}
	}
	g.mu.Lock()
	g.hosts[host] = struct{}{}
	g.mu.Unlock()
	return Decision{Allow: g.mode != ModeEnforce, CrossDomain: true, Host: host}
}

// Allow adapts Inspect to browser.RequestFilter.
func (g *Guard) Allow(rawURL string) bool {
	return g.Inspect(rawURL).Allow
}

// CrossDomainHosts returns the recorded hosts in sorted order.
func (g *Guard) CrossDomainHosts() []string {
	g.mu.Lock()
	hosts := make([]string, 0, len(g.hosts))
	for host := range g.hosts {
		hosts = append(hosts, host)
	}
	g.mu.Unlock()
	sort.Strings(hosts)
	return hosts
}

// Mode returns the guard's mode.
func (g *Guard) Mode() Mode {
	return g.mode
}
