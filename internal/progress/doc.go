// Package progress provides the event primitives, non-blocking hub and emitter
// interfaces used to surface crawl progress while a run is in flight. Events
// are batched on a background goroutine and fanned out to pluggable sinks
// such as structured logs or Prometheus collectors. The authoritative audit
// log lives in the crawler; progress is best effort.
package progress
