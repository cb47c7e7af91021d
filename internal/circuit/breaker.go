// Package circuit tracks per-domain failures and stops visiting domains that
// exhausted their error budget.
package circuit

import (
	"strings"
	"sync"
)

// Ledger counts failures per host. Counts only grow during a run.
type Ledger struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{counts: make(map[string]int)}
}

// Failures returns the current count for host.
func (l *Ledger) Failures(host string) int {
	key := normalize(host)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[key]
}

// Record adds one failure for host and returns the new count.
func (l *Ledger) Record(host string) int {
	key := normalize(host)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key]++
	return l.counts[key]
}

// Snapshot copies the ledger.
func (l *Ledger) Snapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.counts))
	for host, n := range l.counts {
		out[host] = n
	}
	return out
}

// Breaker opens for a host once its failures reach budget. It never closes
// again within a run.
type Breaker struct {
	ledger *Ledger
	budget int
}

// NewBreaker builds a breaker over ledger. A budget below one is treated as one.
func NewBreaker(ledger *Ledger, budget int) *Breaker {
	if ledger == nil {
		ledger = NewLedger()
	}
	if budget < 1 {
		budget = 1
	}
	return &Breaker{ledger: ledger, budget: budget}
}

// Check reports whether host is open and its current failure count.
func (b *Breaker) Check(host string) (bool, int) {
	failures := b.ledger.Failures(host)
	return failures >= b.budget, failures
}

// RecordFailure counts a failure for host regardless of its cause.
func (b *Breaker) RecordFailure(host string) int {
	return b.ledger.Record(host)
}

// Budget returns the configured error budget.
func (b *Breaker) Budget() int {
	return b.budget
}

// Ledger exposes the underlying ledger.
func (b *Breaker) Ledger() *Ledger {
	return b.ledger
}

func normalize(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}
