package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRandomPacerBounds(t *testing.T) {
	t.Parallel()

	pacer := NewRandomPacer(100, 140)
	seen := make(map[time.Duration]struct{})
	for i := 0; i < 2000; i++ {
		d := pacer.Delay()
		require.GreaterOrEqual(t, d, 100*time.Millisecond)
		require.LessOrEqual(t, d, 140*time.Millisecond)
		require.Zero(t, d%time.Millisecond)
		seen[d] = struct{}{}
	}
	require.Contains(t, seen, 100*time.Millisecond, "lower bound is inclusive")
	require.Contains(t, seen, 140*time.Millisecond, "upper bound is inclusive")
}

func TestRandomPacerFixed(t *testing.T) {
	t.Parallel()

	require.Equal(t, 250*time.Millisecond, NewRandomPacer(250, 250).Delay())
	require.Zero(t, NewRandomPacer(0, 0).Delay())
	require.Zero(t, NewRandomPacer(-5, -1).Delay())
}
