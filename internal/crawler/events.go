package crawler

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the terminal outcome recorded for a URL.
type Status string

// Event statuses.
const (
	StatusAccepted Status = "accepted"
	StatusDropped  Status = "dropped"
	StatusSkipped  Status = "skipped"
	StatusError    Status = "error"
)

// Reason codes. Keyword drops use the policy reason instead
// (blocked_keyword:<term> or blacklist_keyword:<term>).
const (
	ReasonOK                      = "ok"
	ReasonInvalidURL              = "invalid_or_non_http_url"
	ReasonOutsideAllowlist        = "outside_allowlist"
	ReasonRobotsDisallowed        = "robots_disallowed"
	ReasonDomainCircuitOpen       = "domain_circuit_open"
	ReasonOutsideAllowlistRuntime = "outside_allowlist_runtime"
	ReasonCrawlFailed             = "crawl_failed"
	ReasonHDNotConfirmed          = "hd_not_confirmed"
	ReasonRequestFailed           = "request_failed"
)

// Detail is the status-specific part of an Event. It is one of
// AcceptedDetail, DroppedDetail, SkippedDetail or ErrorDetail.
type Detail interface {
	status() Status
}

// AcceptedDetail describes an admitted discovery.
type AcceptedDetail struct {
	Title         string `json:"title"`
	DurationSec   int    `json:"duration_sec"`
	HDConfirmed   bool   `json:"hd_confirmed"`
	RandomDelayMS int    `json:"random_delay_ms"`
	// CrossDomainCalls lists the foreign hosts the page contacted.
	CrossDomainCalls []string `json:"cross_domain_calls"`
	// EvidenceHash is null when evidence hashing is off.
	EvidenceHash *string `json:"evidence_hash"`
}

// DroppedDetail carries the value that failed content or HD policy.
type DroppedDetail struct {
	Title  *string `json:"title,omitempty"`
	Height *int    `json:"height,omitempty"`
}

// SkippedDetail is set for circuit-open skips; other skips carry nothing.
type SkippedDetail struct {
	Domain   string `json:"domain,omitempty"`
	Failures int    `json:"failures,omitempty"`
}

// ErrorDetail records a failed visit.
type ErrorDetail struct {
	Error  string `json:"error"`
	Domain string `json:"domain,omitempty"`
}

func (AcceptedDetail) status() Status { return StatusAccepted }
func (DroppedDetail) status() Status  { return StatusDropped }
func (SkippedDetail) status() Status  { return StatusSkipped }
func (ErrorDetail) status() Status    { return StatusError }

// Event is one audit record. Its status follows from the Detail type.
type Event struct {
	TS     time.Time
	URL    string
	Reason string
	Detail Detail
}

// Status returns the outcome encoded by the detail.
func (e Event) Status() Status {
	if e.Detail == nil {
		return ""
	}
	return e.Detail.status()
}

type eventHeader struct {
	TS     string `json:"ts"`
	URL    string `json:"url"`
	Status Status `json:"status"`
	Reason string `json:"reason"`
}

// MarshalJSON flattens the detail fields next to ts, url, status and reason.
func (e Event) MarshalJSON() ([]byte, error) {
	header := eventHeader{
		TS:     e.TS.UTC().Format(time.RFC3339Nano),
		URL:    e.URL,
		Status: e.Status(),
		Reason: e.Reason,
	}
	var v any
	switch d := e.Detail.(type) {
	case AcceptedDetail:
		if d.CrossDomainCalls == nil {
			d.CrossDomainCalls = []string{}
		}
		v = struct {
			eventHeader
			AcceptedDetail
		}{header, d}
	case DroppedDetail:
		v = struct {
			eventHeader
			DroppedDetail
		}{header, d}
	case SkippedDetail:
		v = struct {
			eventHeader
			SkippedDetail
		}{header, d}
	case ErrorDetail:
		v = struct {
			eventHeader
			ErrorDetail
		}{header, d}
	case nil:
		v = header
	default:
		return nil, fmt.Errorf("unknown event detail %T", e.Detail)
	}
	return json.Marshal(v)
}
