package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBrowserNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	b := &Browser{}
	require.Equal(t, 45*time.Second, b.navTimeout())
	b.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, b.navTimeout())
}

func TestResponseMetaCapturesDocumentOnly(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta("MAIN")
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		FrameID:  "MAIN",
		Response: &network.Response{Status: 404, URL: "https://cdn.example.com/app.js"},
	})
	status, url := meta.snapshot()
	require.Zero(t, status)
	require.Empty(t, url)

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		FrameID:  "MAIN",
		Response: &network.Response{Status: 200, URL: "https://example.com/watch"},
	})
	status, url = meta.snapshot()
	require.Equal(t, 200, status)
	require.Equal(t, "https://example.com/watch", url)

	meta.captureEvent("not an event")
	status, _ = meta.snapshot()
	require.Equal(t, 200, status)
}

func TestResponseMetaIgnoresIframeDocuments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mainFrame cdp.FrameID
	}{
		{name: "known main frame", mainFrame: "MAIN"},
		{name: "unknown main frame keeps first document", mainFrame: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			meta := newResponseMeta(tt.mainFrame)
			meta.captureEvent(&network.EventResponseReceived{
				Type:     network.ResourceTypeDocument,
				FrameID:  "MAIN",
				Response: &network.Response{Status: 200, URL: "https://example.com/watch"},
			})
			meta.captureEvent(&network.EventResponseReceived{
				Type:     network.ResourceTypeDocument,
				FrameID:  "AD-FRAME",
				Response: &network.Response{Status: 503, URL: "https://ads.tracker.net/frame"},
			})

			status, url := meta.snapshot()
			require.Equal(t, 200, status)
			require.Equal(t, "https://example.com/watch", url)
		})
	}
}

func TestResponseMetaFollowsMainFrameNavigation(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta("MAIN")
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		FrameID:  "AD-FRAME",
		Response: &network.Response{Status: 200, URL: "https://ads.tracker.net/frame"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		FrameID:  "MAIN",
		Response: &network.Response{Status: 502, URL: "https://example.com/watch"},
	})

	status, url := meta.snapshot()
	require.Equal(t, 502, status)
	require.Equal(t, "https://example.com/watch", url)
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child context was not canceled with parent")
	}
}

func TestForwardCancelStopDetaches(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	stop()
	stop()
	cancelParent()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, child.Err())
}

func TestBrowserSessionEndToEnd(t *testing.T) {
	var cdnHits atomic.Int32
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cdnHits.Add(1)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		fmt.Fprint(w, "ok")
	}))
	defer cdn.Close()

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<!doctype html><html><head><title>Clip</title></head><body>
<h1>Clip heading</h1>
<script>
setTimeout(function(){ var d = document.createElement('div'); d.id = 'late'; document.body.appendChild(d); }, 50);
window.fetchCDN = function(){ return fetch(%q).then(function(){ return {ok:true}; }, function(){ return {ok:false}; }); };
</script></body></html>`, cdn.URL+"/pixel")
	}))
	defer site.Close()

	b, err := New(Config{NavigationTimeout: 10 * time.Second}, zap.NewNop())
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	session, err := b.Open(ctx, site.URL)
	if err != nil {
		t.Skipf("navigation failed: %v", err)
	}
	defer session.Close()

	require.True(t, strings.HasPrefix(session.URL(), site.URL))
	require.NoError(t, session.WaitFor(ctx, `!!document.getElementById('late')`, 5*time.Second))
	require.ErrorIs(t, session.WaitFor(ctx, `!!document.getElementById('never')`, 200*time.Millisecond), ErrWaitTimeout)

	html, err := session.HTML(ctx)
	require.NoError(t, err)
	require.Contains(t, html, "Clip heading")

	require.NoError(t, session.Contain(ctx, func(rawURL string) bool {
		return !strings.HasPrefix(rawURL, cdn.URL)
	}))
	require.ErrorIs(t, session.Contain(ctx, nil), ErrContainmentInstalled)

	var result struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, session.Evaluate(ctx, `window.fetchCDN()`, &result))
	require.False(t, result.OK)
	require.Zero(t, cdnHits.Load())
}
