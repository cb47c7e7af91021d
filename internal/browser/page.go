// Package browser implements the page-automation contract consumed by the
// crawler: loading a URL in an isolated tab, evaluating script inside it and
// intercepting the sub-requests it issues.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned by WaitFor when the condition never became true.
var ErrWaitTimeout = errors.New("wait condition timed out")

// Page is the handle adapters drive. Implementations must honor ctx.
type Page interface {
	// URL returns the URL the page ended up on after redirects.
	URL() string
	// WaitFor polls expression until it evaluates truthy or timeout elapses.
	WaitFor(ctx context.Context, expression string, timeout time.Duration) error
	// Evaluate runs expression (awaiting promises) and decodes the JSON result into out.
	Evaluate(ctx context.Context, expression string, out any) error
	// HTML returns a snapshot of the current document.
	HTML(ctx context.Context) (string, error)
}

// RequestFilter decides whether an in-page request to rawURL may proceed.
type RequestFilter func(rawURL string) bool

// Session is a loaded page owned by a single visit.
type Session interface {
	Page
	// Contain routes every subsequent in-page request through allow until the
	// session closes.
	Contain(ctx context.Context, allow RequestFilter) error
	// Close releases the tab and everything attached to it.
	Close()
}
