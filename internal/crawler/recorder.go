package crawler

import (
	"sync"
)

// Report is the audit summary of a run.
type Report struct {
	RunID          string         `json:"run_id"`
	Discoveries    []Discovery    `json:"-"`
	Events         []Event        `json:"crawl_events"`
	DomainFailures map[string]int `json:"domain_failures"`
}

// Recorder holds the append-only discovery list and event log shared by
// concurrent visits.
type Recorder struct {
	mu          sync.Mutex
	discoveries []Discovery
	events      []Event
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Append adds an event to the log.
func (r *Recorder) Append(evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Accept appends the discovery and its accepted event as one step.
func (r *Recorder) Accept(d Discovery, evt Event) {
	r.mu.Lock()
	r.discoveries = append(r.discoveries, d)
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Discoveries returns a copy of the accepted discoveries in acceptance order.
func (r *Recorder) Discoveries() []Discovery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Discovery, len(r.discoveries))
	copy(out, r.discoveries)
	return out
}

// Events returns a copy of the event log in decision order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Report snapshots the recorder together with the domain failure counts.
func (r *Recorder) Report(runID string, failures map[string]int) Report {
	if failures == nil {
		failures = map[string]int{}
	}
	return Report{
		RunID:          runID,
		Discoveries:    r.Discoveries(),
		Events:         r.Events(),
		DomainFailures: failures,
	}
}
