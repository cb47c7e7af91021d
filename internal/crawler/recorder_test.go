package crawler

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecorderConcurrentAppends(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("https://example.com/v/%d", i)
			if i%2 == 0 {
				rec.Accept(Discovery{SourceURL: url}, Event{TS: time.Now(), URL: url, Reason: ReasonOK, Detail: AcceptedDetail{}})
				return
			}
			rec.Append(Event{TS: time.Now(), URL: url, Reason: ReasonCrawlFailed, Detail: ErrorDetail{Error: "boom"}})
		}(i)
	}
	wg.Wait()

	require.Len(t, rec.Discoveries(), 25)
	require.Len(t, rec.Events(), 50)
}

func TestRecorderAcceptKeepsPairsAdjacent(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	rec.Append(Event{URL: "a", Detail: SkippedDetail{}})
	rec.Accept(Discovery{SourceURL: "b"}, Event{URL: "b", Detail: AcceptedDetail{}})
	rec.Append(Event{URL: "c", Detail: ErrorDetail{}})

	events := rec.Events()
	require.Equal(t, []string{"a", "b", "c"}, []string{events[0].URL, events[1].URL, events[2].URL})
	require.Equal(t, []Discovery{{SourceURL: "b"}}, rec.Discoveries())
}

func TestRecorderReturnsCopies(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	rec.Accept(Discovery{SourceURL: "a"}, Event{URL: "a", Detail: AcceptedDetail{}})
	events := rec.Events()
	events[0].URL = "mutated"
	discoveries := rec.Discoveries()
	discoveries[0].SourceURL = "mutated"

	require.Equal(t, "a", rec.Events()[0].URL)
	require.Equal(t, "a", rec.Discoveries()[0].SourceURL)
}

func TestRecorderReportDefaults(t *testing.T) {
	t.Parallel()

	report := NewRecorder().Report("run-1", nil)
	require.Equal(t, "run-1", report.RunID)
	require.NotNil(t, report.Events)
	require.NotNil(t, report.Discoveries)
	require.NotNil(t, report.DomainFailures)
}
