package circuit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAtBudget(t *testing.T) {
	t.Parallel()

	b := NewBreaker(NewLedger(), 2)
	open, failures := b.Check("a.com")
	require.False(t, open)
	require.Zero(t, failures)

	require.Equal(t, 1, b.RecordFailure("a.com"))
	open, failures = b.Check("a.com")
	require.False(t, open)
	require.Equal(t, 1, failures)

	require.Equal(t, 2, b.RecordFailure("A.com"))
	open, failures = b.Check("a.com")
	require.True(t, open)
	require.Equal(t, 2, failures)

	open, _ = b.Check("b.com")
	require.False(t, open)
}

func TestBreakerBudgetFloor(t *testing.T) {
	t.Parallel()

	b := NewBreaker(nil, 0)
	require.Equal(t, 1, b.Budget())
	b.RecordFailure("x.org")
	open, _ := b.Check("x.org")
	require.True(t, open)
}

func TestLedgerSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	l.Record("a.com")
	snap := l.Snapshot()
	snap["a.com"] = 99
	require.Equal(t, 1, l.Failures("a.com"))
	require.Equal(t, map[string]int{"a.com": 1}, l.Snapshot())
}

func TestLedgerConcurrentRecordsAreMonotonic(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	const workers, perWorker = 8, 250

	var wg sync.WaitGroup
	var mu sync.Mutex
	last := 0
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				n := l.Record("busy.com")
				mu.Lock()
				if n > last {
					last = n
				}
				mu.Unlock()
				assert.GreaterOrEqual(t, l.Failures("busy.com"), n)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, workers*perWorker, l.Failures("busy.com"))
	require.Equal(t, workers*perWorker, last)
}
