package progress

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Config tunes a Hub. Zero values select the defaults.
type Config struct {
	// BufferSize is the number of events held between Emit and the sinks.
	BufferSize int
	// MaxBatchEvents flushes a batch once it holds this many events.
	MaxBatchEvents int
	// MaxBatchWait bounds how long the oldest event of a batch waits.
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Consume call.
	SinkTimeout time.Duration
	Logger      *zap.Logger
}

// Stats counts what happened to emitted events.
type Stats struct {
	// Queued events were accepted into the buffer.
	Queued int64
	// Dropped visit events found the buffer full.
	Dropped int64
	// Batches were delivered to the sinks.
	Batches int64
}

// Hub batches crawl events on a background goroutine and fans them out to
// sinks.
//
// Visit events never block the crawler: when the buffer is full they are
// dropped and counted. Run milestones wait for room instead, so a run that
// was reported as started is also reported as done.
type Hub struct {
	cfg    Config
	sinks  []Sink
	logger *zap.Logger

	in       chan Event
	stop     chan struct{}
	done     chan struct{}
	closing  atomic.Bool
	stopOnce sync.Once
	// closeCtx is written before stop is closed and read after.
	closeCtx context.Context

	queued       atomic.Int64
	dropped      atomic.Int64
	batches      atomic.Int64
	pendingDrops atomic.Int64
	dropLog      rate.Sometimes
}

// NewHub starts a Hub delivering to sinks. Nil sinks are ignored.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		logger:  logger,
		in:      make(chan Event, cfg.BufferSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
	for _, sink := range sinks {
		if sink != nil {
			h.sinks = append(h.sinks, sink)
		}
	}
	go h.run()
	return h
}

// Emit queues evt. Invalid events and events emitted after Close are
// discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closing.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	if evt.Stage == StageVisit {
		select {
		case h.in <- evt:
			h.queued.Add(1)
		default:
			h.drop()
		}
		return
	}
	select {
	case h.in <- evt:
		h.queued.Add(1)
	case <-h.stop:
	}
}

func (h *Hub) drop() {
	h.dropped.Add(1)
	h.pendingDrops.Add(1)
	h.dropLog.Do(func() {
		h.logger.Warn("progress events dropped due to backpressure",
			zap.Int64("dropped", h.pendingDrops.Swap(0)))
	})
}

// Close delivers the queued events, closes the sinks and waits for the
// background goroutine. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.stopOnce.Do(func() {
		h.closing.Store(true)
		h.closeCtx = ctx
		close(h.stop)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

// Stats returns the hub counters.
func (h *Hub) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	return Stats{
		Queued:  h.queued.Load(),
		Dropped: h.dropped.Load(),
		Batches: h.batches.Load(),
	}
}

func (h *Hub) run() {
	defer close(h.done)

	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	var (
		timer    *time.Timer
		deadline <-chan time.Time
	)
	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, deadline = nil, nil
		}
		h.deliver(batch)
		batch = batch[:0]
	}
	add := func(evt Event) {
		batch = append(batch, evt)
		switch {
		case len(batch) >= h.cfg.MaxBatchEvents:
			flush()
		case len(batch) == 1:
			timer = time.NewTimer(h.cfg.MaxBatchWait)
			deadline = timer.C
		}
	}

	for {
		select {
		case evt := <-h.in:
			add(evt)
		case <-deadline:
			flush()
		case <-h.stop:
			for {
				select {
				case evt := <-h.in:
					add(evt)
				default:
					flush()
					h.closeSinks()
					return
				}
			}
		}
	}
}

func (h *Hub) deliver(batch []Event) {
	if len(batch) == 0 {
		return
	}
	out := slices.Clone(batch)
	h.batches.Add(1)
	for i, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		err := sink.Consume(ctx, out)
		cancel()
		if err != nil {
			h.logger.Warn("progress sink consume failed",
				zap.Int("sink", i),
				zap.String("sink_type", fmt.Sprintf("%T", sink)),
				zap.Int("events", len(out)),
				zap.Error(err),
			)
		}
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for i, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed",
				zap.Int("sink", i),
				zap.String("sink_type", fmt.Sprintf("%T", sink)),
				zap.Error(err),
			)
		}
	}
}
