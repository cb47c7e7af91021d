// Package browsertest provides an in-memory browser.Session for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/media-discovery-crawler/internal/browser"
)

// Session is a scripted browser.Session. Zero values behave like an empty page.
type Session struct {
	FinalURL string
	Document string
	WaitErr  error
	HTMLErr  error
	// EvaluateFunc answers Evaluate; its result is round-tripped through JSON
	// into the caller's destination like a real browser would.
	EvaluateFunc func(expression string) (any, error)
	// ContainErr is returned by Contain when set.
	ContainErr error

	mu          sync.Mutex
	filter      browser.RequestFilter
	expressions []string
	closed      int
}

var _ browser.Session = (*Session)(nil)

// URL implements browser.Page.
func (s *Session) URL() string {
	return s.FinalURL
}

// WaitFor implements browser.Page.
func (s *Session) WaitFor(ctx context.Context, expression string, _ time.Duration) error {
	s.record(expression)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("wait canceled: %w", err)
	}
	return s.WaitErr
}

// Evaluate implements browser.Page.
func (s *Session) Evaluate(ctx context.Context, expression string, out any) error {
	s.record(expression)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("evaluate canceled: %w", err)
	}
	if s.EvaluateFunc == nil {
		return fmt.Errorf("no evaluation scripted for %q", expression)
	}
	value, err := s.EvaluateFunc(expression)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode scripted value: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode scripted value: %w", err)
	}
	return nil
}

// HTML implements browser.Page.
func (s *Session) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("html canceled: %w", err)
	}
	if s.HTMLErr != nil {
		return "", s.HTMLErr
	}
	return s.Document, nil
}

// Contain implements browser.Session by remembering allow.
func (s *Session) Contain(_ context.Context, allow browser.RequestFilter) error {
	if s.ContainErr != nil {
		return s.ContainErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter != nil {
		return browser.ErrContainmentInstalled
	}
	s.filter = allow
	return nil
}

// Request simulates an in-page request and reports whether it went through.
func (s *Session) Request(rawURL string) bool {
	s.mu.Lock()
	filter := s.filter
	s.mu.Unlock()
	if filter == nil {
		return true
	}
	return filter(rawURL)
}

// Contained reports whether Contain was called.
func (s *Session) Contained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter != nil
}

// Close implements browser.Session.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
}

// Closed returns how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Expressions returns every expression passed to WaitFor or Evaluate.
func (s *Session) Expressions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.expressions...)
}

func (s *Session) record(expression string) {
	s.mu.Lock()
	s.expressions = append(s.expressions, expression)
	s.mu.Unlock()
}
