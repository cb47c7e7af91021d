// Package scheduler runs a deduplicated set of page visits on a bounded pool
// of workers, retrying failed navigations once before reporting them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-discovery-crawler/internal/browser"
)

// ErrStarted is returned by Add once Run has begun.
var ErrStarted = errors.New("scheduler already started")

// Request is one page to visit.
type Request struct {
	URL       string
	UniqueKey string
	// Attempt is zero for the first navigation and counts retries after that.
	Attempt int
}

// Navigator opens a page in the browser.
type Navigator interface {
	Open(ctx context.Context, rawURL string) (browser.Session, error)
}

// Handler receives the outcome of each request. The scheduler closes the
// session once HandleVisit returns.
type Handler interface {
	HandleVisit(ctx context.Context, req Request, session browser.Session)
	HandleFailed(ctx context.Context, req Request, err error)
}

// Limiter throttles navigations per domain.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) (time.Duration, error)
}

// Config controls the worker pool.
type Config struct {
	MaxConcurrency int
	// MaxRetries is the number of extra navigation attempts after a failure.
	MaxRetries int
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithRetryPolicy replaces the default exponential policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Scheduler) {
		if p != nil {
			s.retry = p
		}
	}
}

// WithLimiter throttles navigations per domain.
func WithLimiter(l Limiter) Option {
	return func(s *Scheduler) {
		s.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scheduler is single-use: Add requests, then Run once.
type Scheduler struct {
	cfg     Config
	nav     Navigator
	handler Handler
	retry   RetryPolicy
	limiter Limiter
	logger  *zap.Logger

	tracker visitTracker
	mu      sync.Mutex
	pending []Request
	started bool
}

// New builds a scheduler.
func New(cfg Config, nav Navigator, handler Handler, opts ...Option) (*Scheduler, error) {
	if nav == nil {
		return nil, errors.New("navigator is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("max concurrency must be >= 1, got %d", cfg.MaxConcurrency)
	}
	s := &Scheduler{
		cfg:     cfg,
		nav:     nav,
		handler: handler,
		retry:   NewExponentialRetryPolicy(cfg.MaxRetries),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Add queues req unless a request with the same UniqueKey (or URL when the key
// is empty) was already added. It reports whether req was queued.
func (s *Scheduler) Add(req Request) (bool, error) {
	if req.UniqueKey == "" {
		req.UniqueKey = req.URL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false, ErrStarted
	}
	if !s.tracker.markIfNew(req.UniqueKey) {
		return false, nil
	}
	s.pending = append(s.pending, req)
	return true, nil
}

// Len returns the number of queued requests.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Run processes every queued request and returns when the queue is drained or
// ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrStarted
	}
	s.started = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	q := newQueue(len(pending))
	for _, req := range pending {
		if err := q.enqueue(ctx, req); err != nil {
			return err
		}
	}
	q.close()

	workers := s.cfg.MaxConcurrency
	if workers > len(pending) {
		workers = len(pending)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.work(ctx, id, q)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scheduler interrupted: %w", err)
	}
	return nil
}

func (s *Scheduler) work(ctx context.Context, id int, q *queue) {
	logger := s.logger.With(zap.Int("worker", id))
	for {
		req, err := q.dequeue(ctx)
		if err != nil {
			if !errors.Is(err, errQueueClosed) {
				logger.Debug("worker stopping", zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.process(ctx, logger, req)
	}
}

func (s *Scheduler) process(ctx context.Context, logger *zap.Logger, req Request) {
	for attempt := 0; ; attempt++ {
		req.Attempt = attempt
		session, err := s.open(ctx, req)
		if err == nil {
			s.visit(ctx, req, session)
			return
		}
		if ctx.Err() != nil {
			logger.Debug("navigation abandoned", zap.String("url", req.URL), zap.Error(err))
			return
		}
		if s.retry.ShouldRetry(err, attempt) {
			backoff := s.retry.Backoff(attempt)
			logger.Info("navigation failed; retrying",
				zap.String("url", req.URL),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			pause(ctx, backoff)
			continue
		}
		s.handler.HandleFailed(ctx, req, err)
		return
	}
}

func (s *Scheduler) open(ctx context.Context, req Request) (browser.Session, error) {
	if s.limiter != nil {
		if _, err := s.limiter.Wait(ctx, req.URL); err != nil {
			return nil, fmt.Errorf("throttle %s: %w", req.URL, err)
		}
	}
	session, err := s.nav.Open(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", req.URL, err)
	}
	return session, nil
}

func (s *Scheduler) visit(ctx context.Context, req Request, session browser.Session) {
	defer session.Close()
	s.handler.HandleVisit(ctx, req, session)
}
