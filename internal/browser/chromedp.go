package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const defaultNavigationTimeout = 45 * time.Second

// ErrContainmentInstalled is returned when Contain is called twice on one session.
var ErrContainmentInstalled = errors.New("request containment already installed")

// Config controls the headless browser.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// ExecPath optionally points at a specific Chrome binary.
	ExecPath string
}

// Browser owns one headless Chrome instance and opens a fresh tab per visit.
type Browser struct {
	cfg           Config
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger
}

// New starts headless Chrome via chromedp.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &Browser{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (b *Browser) Close() {
	if b == nil {
		return
	}
	b.browserCancel()
	b.allocCancel()
}

// Open navigates a new tab to rawURL. Navigation is bounded by the configured
// timeout; a failed navigation or a 5xx document response is returned as an
// error and the tab is released.
func (b *Browser) Open(ctx context.Context, rawURL string) (Session, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	stopForward := forwardCancel(ctx, cancelTab)
	release := func() {
		stopForward()
		cancelTab()
	}

	if err := chromedp.Run(tabCtx); err != nil {
		release()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	meta := newResponseMeta(mainFrameID(tabCtx))
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	navCtx, cancelNav := context.WithTimeout(tabCtx, b.navTimeout())
	defer cancelNav()

	var finalURL string
	if err := chromedp.Run(navCtx, b.navigateAction(rawURL, &finalURL)...); err != nil {
		release()
		return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	status, documentURL := meta.snapshot()
	if status >= http.StatusInternalServerError {
		release()
		return nil, fmt.Errorf("navigate %s: document status %d", rawURL, status)
	}
	if finalURL == "" {
		finalURL = documentURL
	}
	if finalURL == "" {
		finalURL = rawURL
	}

	return &tab{
		ctx:     tabCtx,
		release: release,
		url:     finalURL,
		logger:  b.logger,
	}, nil
}

func (b *Browser) navigateAction(rawURL string, finalURL *string) []chromedp.Action {
	return []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := network.Enable().Do(ctx); err != nil {
				return fmt.Errorf("enable network domain: %w", err)
			}
			if b.cfg.UserAgent != "" {
				if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
					return fmt.Errorf("set user-agent: %w", err)
				}
			}
			return nil
		}),
		chromedp.Navigate(rawURL),
		chromedp.Location(finalURL),
	}
}

func (b *Browser) navTimeout() time.Duration {
	if b.cfg.NavigationTimeout > 0 {
		return b.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// tab is a Session bound to one chromedp target.
type tab struct {
	ctx       context.Context
	release   func()
	url       string
	logger    *zap.Logger
	contained sync.Once
	closeOnce sync.Once
}

func (t *tab) URL() string {
	return t.url
}

func (t *tab) WaitFor(ctx context.Context, expression string, timeout time.Duration) error {
	runCtx, done := t.bind(ctx)
	defer done()

	var ready bool
	err := chromedp.Run(runCtx, chromedp.Poll(expression, &ready, chromedp.WithPollingTimeout(timeout)))
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		return fmt.Errorf("%w after %s", ErrWaitTimeout, timeout)
	}
	if err != nil {
		return fmt.Errorf("poll %q: %w", expression, err)
	}
	return nil
}

func (t *tab) Evaluate(ctx context.Context, expression string, out any) error {
	runCtx, done := t.bind(ctx)
	defer done()

	awaitPromise := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}
	if err := chromedp.Run(runCtx, chromedp.Evaluate(expression, out, awaitPromise)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (t *tab) HTML(ctx context.Context) (string, error) {
	runCtx, done := t.bind(ctx)
	defer done()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

// Contain enables the Fetch domain on this tab and pauses every request
// until allow decides it. Rejected requests fail with BlockedByClient.
func (t *tab) Contain(ctx context.Context, allow RequestFilter) error {
	installed := false
	t.contained.Do(func() { installed = true })
	if !installed {
		return ErrContainmentInstalled
	}

	chromedp.ListenTarget(t.ctx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go t.resolvePaused(paused, allow)
	})

	runCtx, done := t.bind(ctx)
	defer done()
	patterns := []*fetch.RequestPattern{{URLPattern: "*"}}
	if err := chromedp.Run(runCtx, fetch.Enable().WithPatterns(patterns)); err != nil {
		return fmt.Errorf("enable fetch interception: %w", err)
	}
	return nil
}

func (t *tab) resolvePaused(ev *fetch.EventRequestPaused, allow RequestFilter) {
	c := chromedp.FromContext(t.ctx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(t.ctx, c.Target)

	var err error
	if allow == nil || allow(ev.Request.URL) {
		err = fetch.ContinueRequest(ev.RequestID).Do(execCtx)
	} else {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	}
	if err != nil && t.ctx.Err() == nil {
		t.logger.Debug("resolve paused request failed", zap.String("request_url", ev.Request.URL), zap.Error(err))
	}
}

func (t *tab) Close() {
	t.closeOnce.Do(t.release)
}

// bind derives a context from the tab that is also canceled with parent.
func (t *tab) bind(parent context.Context) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(t.ctx)
	stop := forwardCancel(parent, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// responseMeta records the top-level document response of a tab. Documents
// loaded by iframes are ignored.
type responseMeta struct {
	mainFrame cdp.FrameID

	mu     sync.RWMutex
	seen   bool
	status int
	url    string
}

// newResponseMeta tracks documents of mainFrame. When the frame is unknown
// only the first document response counts, since the top-level document
// always arrives before any of its iframes.
func newResponseMeta(mainFrame cdp.FrameID) *responseMeta {
	return &responseMeta{mainFrame: mainFrame}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mainFrame != "" {
		if resp.FrameID != m.mainFrame {
			return
		}
	} else if m.seen {
		return
	}
	m.seen = true
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
}

// mainFrameID returns the tab's root frame, which Chrome identifies by the
// page target id.
func mainFrameID(tabCtx context.Context) cdp.FrameID {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		return ""
	}
	return cdp.FrameID(c.Target.TargetID)
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.url
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
