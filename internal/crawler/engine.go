package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-discovery-crawler/internal/circuit"
	"github.com/JakeFAU/media-discovery-crawler/internal/clock/system"
	"github.com/JakeFAU/media-discovery-crawler/internal/config"
	"github.com/JakeFAU/media-discovery-crawler/internal/containment"
	"github.com/JakeFAU/media-discovery-crawler/internal/hash/sha256"
	iduuid "github.com/JakeFAU/media-discovery-crawler/internal/id/uuid"
	"github.com/JakeFAU/media-discovery-crawler/internal/policy"
	"github.com/JakeFAU/media-discovery-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/media-discovery-crawler/internal/progress"
	"github.com/JakeFAU/media-discovery-crawler/internal/scheduler"
)

// ErrAlreadyRan is returned when Run is called a second time.
var ErrAlreadyRan = errors.New("engine already ran")

// Options wires the collaborators of an Engine. Navigator and Adapters are
// required; everything else has a default.
type Options struct {
	Navigator scheduler.Navigator
	Adapters  AdapterResolver

	Clock  Clock
	Hasher Hasher
	Pacer  Pacer
	Robots RobotsPolicy

	// Emitter receives progress events for logs and metrics.
	Emitter progress.Emitter
	// Publisher, when set, receives every accepted discovery on Topic.
	Publisher Publisher
	Topic     string

	// Limiter overrides the per-domain limiter built from scheduler.domain_qps.
	Limiter     scheduler.Limiter
	RetryPolicy scheduler.RetryPolicy

	RunID  uuid.UUID
	Logger *zap.Logger
}

// Engine runs one crawl.
type Engine struct {
	cfg       config.RunConfig
	allow     policy.DomainSet
	resources policy.DomainSet
	mode      containment.Mode

	nav       scheduler.Navigator
	adapters  AdapterResolver
	clock     Clock
	hasher    Hasher
	pacer     Pacer
	robots    RobotsPolicy
	emitter   progress.Emitter
	publisher Publisher
	topic     string
	limiter   scheduler.Limiter
	retry     scheduler.RetryPolicy
	logger    *zap.Logger

	runID    uuid.UUID
	breaker  *circuit.Breaker
	recorder *Recorder
	ran      atomic.Bool
}

// NewEngine validates cfg and applies defaults to the unset options.
func NewEngine(cfg config.RunConfig, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Navigator == nil {
		return nil, errors.New("navigator is required")
	}
	if opts.Adapters == nil {
		return nil, errors.New("adapter resolver is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := opts.RunID
	if runID == uuid.Nil {
		id, err := iduuid.New().NewRawID()
		if err != nil {
			return nil, fmt.Errorf("run id: %w", err)
		}
		runID = id
	}

	e := &Engine{
		cfg:       cfg,
		allow:     policy.NewDomainSet(cfg.AllowlistDomains...),
		resources: policy.NewDomainSet(cfg.AllowedResourceDomains...),
		mode:      cfg.ContainmentMode(),
		nav:       opts.Navigator,
		adapters:  opts.Adapters,
		clock:     opts.Clock,
		hasher:    opts.Hasher,
		pacer:     opts.Pacer,
		robots:    opts.Robots,
		emitter:   opts.Emitter,
		publisher: opts.Publisher,
		topic:     opts.Topic,
		limiter:   opts.Limiter,
		retry:     opts.RetryPolicy,
		logger:    logger.With(zap.String("run_id", runID.String())),
		runID:     runID,
		breaker:   circuit.NewBreaker(circuit.NewLedger(), cfg.DomainErrorBudget),
		recorder:  NewRecorder(),
	}
	if e.clock == nil {
		e.clock = system.New()
	}
	if e.hasher == nil {
		e.hasher = sha256.New()
	}
	if e.pacer == nil {
		e.pacer = NewRandomPacer(cfg.RandomDelayMSMin, cfg.RandomDelayMSMax)
	}
	if e.robots == nil {
		e.robots = NewRobotsPolicy(cfg.RespectRobots, cfg.UserAgent, nil, e.logger)
	}
	if e.emitter == nil {
		e.emitter = progress.NopEmitter{}
	}
	if e.limiter == nil && cfg.Scheduler.DomainQPS > 0 {
		e.limiter = ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Scheduler.DomainQPS, DefaultBurst: 1})
	}
	return e, nil
}

// RunID returns the identifier stamped on the report and progress events.
func (e *Engine) RunID() uuid.UUID {
	return e.runID
}

// Run seeds the scheduler and blocks until every admitted URL reached a
// terminal state or ctx ends. The report is returned in both cases; an
// interrupted run also returns the interruption error.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	if !e.ran.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRan
	}
	opts := []scheduler.Option{scheduler.WithLogger(e.logger)}
	if e.retry != nil {
		opts = append(opts, scheduler.WithRetryPolicy(e.retry))
	}
	if e.limiter != nil {
		opts = append(opts, scheduler.WithLimiter(e.limiter))
	}
	sched, err := scheduler.New(scheduler.Config{
		MaxConcurrency: e.cfg.MaxConcurrency,
		MaxRetries:     e.cfg.Scheduler.MaxRetries,
	}, e.nav, e, opts...)
	if err != nil {
		return Report{}, fmt.Errorf("build scheduler: %w", err)
	}

	started := e.clock.Now()
	e.emitRun(progress.StageRunStart, started, 0)
	if err := e.seed(ctx, sched); err != nil {
		e.emitRun(progress.StageRunDone, e.clock.Now(), e.clock.Now().Sub(started))
		return e.report(), err
	}
	e.logger.Info("crawl starting", zap.Int("queued", sched.Len()))

	runErr := sched.Run(ctx)

	finished := e.clock.Now()
	e.emitRun(progress.StageRunDone, finished, finished.Sub(started))
	report := e.report()
	e.logger.Info("crawl finished",
		zap.Int("discoveries", len(report.Discoveries)),
		zap.Int("events", len(report.Events)),
		zap.Duration("elapsed", finished.Sub(started)),
	)
	if runErr != nil {
		return report, fmt.Errorf("crawl interrupted: %w", runErr)
	}
	return report, nil
}

// seed admits seed URLs then discovery roots. Canonical duplicates collapse
// silently; every other rejection is logged as a skip.
func (e *Engine) seed(ctx context.Context, sched *scheduler.Scheduler) error {
	seen := make(map[string]struct{})
	for _, raw := range e.cfg.Candidates() {
		if !policy.IsHTTPURL(raw) {
			e.skip(raw, ReasonInvalidURL)
			continue
		}
		canonical, err := policy.Canonicalize(raw)
		if err != nil {
			e.skip(raw, ReasonInvalidURL)
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}

		if !policy.IsAllowlisted(canonical, e.allow) {
			e.skip(canonical, ReasonOutsideAllowlist)
			continue
		}
		if !e.robots.Allowed(ctx, canonical) {
			e.skip(canonical, ReasonRobotsDisallowed)
			continue
		}
		if _, err := sched.Add(scheduler.Request{URL: canonical, UniqueKey: canonical}); err != nil {
			return fmt.Errorf("enqueue %s: %w", canonical, err)
		}
	}
	return nil
}

func (e *Engine) report() Report {
	return e.recorder.Report(e.runID.String(), e.breaker.Ledger().Snapshot())
}

// visitStats carries the progress-only fields of a visit event.
type visitStats struct {
	domain      string
	started     time.Time
	delay       time.Duration
	crossDomain int
	failures    int
}

func (e *Engine) skip(url, reason string) {
	e.record(url, reason, SkippedDetail{}, visitStats{domain: policy.Hostname(url)})
}

func (e *Engine) record(url, reason string, detail Detail, stats visitStats) {
	evt := Event{TS: e.clock.Now(), URL: url, Reason: reason, Detail: detail}
	e.recorder.Append(evt)
	e.emitVisit(evt, stats)
}

func (e *Engine) emitVisit(evt Event, stats visitStats) {
	var dur time.Duration
	if !stats.started.IsZero() {
		dur = max(evt.TS.Sub(stats.started), 0)
	}
	var note string
	if d, ok := evt.Detail.(ErrorDetail); ok {
		note = d.Error
	}
	e.emitter.Emit(progress.Event{
		RunID:            progress.UUIDToBytes(e.runID),
		TS:               evt.TS,
		Stage:            progress.StageVisit,
		Domain:           stats.domain,
		URL:              evt.URL,
		Status:           string(evt.Status()),
		Reason:           evt.Reason,
		Delay:            stats.delay,
		CrossDomainCalls: stats.crossDomain,
		Failures:         stats.failures,
		Dur:              dur,
		Note:             note,
	})
}

func (e *Engine) emitRun(stage progress.Stage, ts time.Time, dur time.Duration) {
	e.emitter.Emit(progress.Event{
		RunID: progress.UUIDToBytes(e.runID),
		TS:    ts,
		Stage: stage,
		Dur:   max(dur, 0),
	})
}
