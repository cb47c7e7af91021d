// Package crawler implements the crawl orchestrator: seed admission, the
// per-visit policy state machine, the audit event log and the discovery feed.
//
// An Engine owns one run. It filters seeds through the URL and allowlist
// policies, hands the admitted URLs to the scheduler and handles every loaded
// page by checking the domain circuit, re-checking the allowlist after
// redirects, pacing, installing sub-request containment and driving the
// resolved site adapter. Every decision is appended to the event log.
package crawler
