package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	evt := sampleEvent(StageVisit)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubVisitEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		in:     make(chan Event),
		stop:   make(chan struct{}),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageVisit))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, Stats{Dropped: 1}, hub.Stats())
}

func TestHubRunMilestonesWaitForRoom(t *testing.T) {
	t.Parallel()

	sink := newGateSink()
	hub := NewHub(Config{BufferSize: 1, MaxBatchEvents: 1}, sink)

	hub.Emit(sampleEvent(StageVisit))
	<-sink.entered

	hub.Emit(sampleEvent(StageVisit)) // fills the buffer
	hub.Emit(sampleEvent(StageVisit)) // dropped

	emitted := make(chan struct{})
	go func() {
		hub.Emit(sampleEvent(StageRunDone))
		close(emitted)
	}()
	select {
	case <-emitted:
		t.Fatal("run milestone was not held back by the full buffer")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.gate)
	<-emitted
	require.NoError(t, hub.Close(context.Background()))

	require.Equal(t, []Stage{StageVisit, StageVisit, StageRunDone}, sink.Stages())
	stats := hub.Stats()
	require.Equal(t, int64(3), stats.Queued)
	require.Equal(t, int64(1), stats.Dropped)
	require.Equal(t, int64(3), stats.Batches)
}

func TestHubBatchAgeBoundsSteadyTrickle(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     64,
		MaxBatchEvents: 100,
		MaxBatchWait:   40 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	for i := 0; i < 20; i++ {
		hub.Emit(sampleEvent(StageVisit))
		time.Sleep(10 * time.Millisecond)
	}
	require.NotEmpty(t, sink.Batches(), "a steady stream must not postpone delivery forever")
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1}, sink)

	invalid := sampleEvent(StageVisit)
	invalid.Reason = ""
	hub.Emit(invalid)
	hub.Emit(Event{Stage: StageRunStart})

	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
	require.Zero(t, hub.Stats().Queued)
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageRunDone))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)

	hub.Emit(sampleEvent(StageRunDone))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1, "events after close are ignored")
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	evt := sampleEvent(StageVisit)
	require.NoError(t, evt.Validate())

	bad := evt
	bad.Stage = "BOGUS"
	require.Error(t, bad.Validate())

	bad = evt
	bad.Delay = -time.Second
	require.Error(t, bad.Validate())

	bad = evt
	bad.Status = ""
	require.Error(t, bad.Validate())

	id := uuid.New()
	require.Equal(t, id, Event{RunID: UUIDToBytes(id)}.RunUUID())
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

// gateSink blocks in Consume until gate is closed.
type gateSink struct {
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once

	mu     sync.Mutex
	stages []Stage
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{}), entered: make(chan struct{})}
}

func (s *gateSink) Consume(ctx context.Context, batch []Event) error {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.stages = append(s.stages, evt.Stage)
	}
	return nil
}

func (s *gateSink) Close(context.Context) error {
	return nil
}

func (s *gateSink) Stages() []Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Stage(nil), s.stages...)
}

func sampleEvent(stage Stage) Event {
	evt := Event{
		RunID: UUIDToBytes(uuid.New()),
		TS:    time.Now(),
		Stage: stage,
	}
	if stage == StageVisit {
		evt.Domain = "example.com"
		evt.URL = "https://example.com/watch"
		evt.Status = "accepted"
		evt.Reason = "ok"
	}
	return evt
}
