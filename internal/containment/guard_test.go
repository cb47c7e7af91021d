package containment

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/media-discovery-crawler/internal/policy"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	mode, err := ParseMode("observe")
	require.NoError(t, err)
	require.Equal(t, ModeObserve, mode)

	mode, err = ParseMode(" ENFORCE ")
	require.NoError(t, err)
	require.Equal(t, ModeEnforce, mode)

	_, err = ParseMode("block")
	require.Error(t, err)
}

func TestGuardObserve(t *testing.T) {
	t.Parallel()

	g := NewGuard(ModeObserve, policy.NewDomainSet("example.com"), policy.NewDomainSet("cdn.net"))

	require.Equal(t, Decision{Allow: true, Host: "example.com"}, g.Inspect("https://example.com/a.js"))
	require.True(t, g.Inspect("https://img.example.com/a.png").Allow)
	require.True(t, g.Inspect("https://edge.cdn.net/seg.ts").Allow)

	d := g.Inspect("https://tracker.io/pixel")
	require.True(t, d.Allow)
	require.True(t, d.CrossDomain)
	require.Equal(t, "tracker.io", d.Host)

	require.Equal(t, []string{"tracker.io"}, g.CrossDomainHosts())
}

func TestGuardEnforce(t *testing.T) {
	t.Parallel()

	g := NewGuard(ModeEnforce, policy.NewDomainSet("example.com"), policy.NewDomainSet())
	require.True(t, g.Allow("https://example.com/"))
	require.False(t, g.Allow("https://z.tracker.io/pixel"))
	require.False(t, g.Allow("https://a.ads.net/x"))
	require.False(t, g.Allow("https://evil-example.com/x"))
	require.Equal(t, []string{"a.ads.net", "evil-example.com", "z.tracker.io"}, g.CrossDomainHosts())
}

func TestGuardPermitsEveryAllowlistEntry(t *testing.T) {
	t.Parallel()

	allow := policy.NewDomainSet("example.com", "media.example.com", "partner.org")
	g := NewGuard(ModeEnforce, allow, policy.NewDomainSet())

	require.True(t, g.Allow("https://media.example.com/watch/1"))
	require.True(t, g.Allow("https://example.com/api"))
	require.True(t, g.Allow("https://cdn.example.com/v.mp4"))
	require.True(t, g.Allow("https://static.partner.org/player.js"))
	require.False(t, g.Allow("https://tracker.io/pixel"))
	require.Equal(t, []string{"tracker.io"}, g.CrossDomainHosts())
}

func TestGuardFailsOpenOnUnparsable(t *testing.T) {
	t.Parallel()

	g := NewGuard(ModeEnforce, policy.NewDomainSet("example.com"), policy.NewDomainSet())
	for _, raw := range []string{"data:image/png;base64,AAAA", "blob:", "http://%zz", ""} {
		d := g.Inspect(raw)
		require.True(t, d.Allow, "input %q", raw)
		require.False(t, d.CrossDomain, "input %q", raw)
	}
	require.Empty(t, g.CrossDomainHosts())
}

func TestGuardDeduplicatesHosts(t *testing.T) {
	t.Parallel()

	g := NewGuard(ModeObserve, policy.NewDomainSet("example.com"), policy.NewDomainSet())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g.Inspect(fmt.Sprintf("https://t%d.tracker.io/p?i=%d", i%3, i))
		}(i)
	}
	wg.Wait()
	require.Equal(t, []string{"t0.tracker.io", "t1.tracker.io", "t2.tracker.io"}, g.CrossDomainHosts())
}
