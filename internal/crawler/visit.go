package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-discovery-crawler/internal/adapter"
	"github.com/JakeFAU/media-discovery-crawler/internal/browser"
	"github.com/JakeFAU/media-discovery-crawler/internal/containment"
	"github.com/JakeFAU/media-discovery-crawler/internal/policy"
	"github.com/JakeFAU/media-discovery-crawler/internal/scheduler"
)

var _ scheduler.Handler = (*Engine)(nil)

// HandleVisit runs the policy state machine for a loaded page. The URL is
// canonicalized once, after redirects, and reused for every check.
func (e *Engine) HandleVisit(ctx context.Context, req scheduler.Request, session browser.Session) {
	stats := visitStats{started: e.clock.Now()}
	url := canonicalOr(loadedURL(req, session))
	host := policy.Hostname(url)
	stats.domain = host

	if open, failures := e.breaker.Check(host); open {
		stats.failures = failures
		e.record(url, ReasonDomainCircuitOpen, SkippedDetail{Domain: host, Failures: failures}, stats)
		return
	}
	if !policy.IsAllowlisted(url, e.allow) {
		e.record(url, ReasonOutsideAllowlistRuntime, SkippedDetail{}, stats)
		return
	}

	stats.delay = e.pacer.Delay()
	if err := e.clock.Sleep(ctx, stats.delay); err != nil {
		e.logger.Debug("visit abandoned during pacing", zap.String("url", url), zap.Error(err))
		return
	}

	guard := containment.NewGuard(e.mode, e.allow, e.resources)
	if err := session.Contain(ctx, guard.Allow); err != nil {
		e.fail(ctx, url, fmt.Errorf("install containment: %w", err), stats)
		return
	}

	play, md, err := e.drive(ctx, host, session)
	stats.crossDomain = len(guard.CrossDomainHosts())
	if err != nil {
		e.fail(ctx, url, err, stats)
		return
	}

	text := md.Title + " " + strings.Join(md.ThemeTags, " ")
	if verdict := policy.CheckKeywords(text, e.cfg.BlacklistKeywords, e.cfg.BlockedKeywords); verdict.Blocked {
		title := md.Title
		e.record(url, verdict.Reason, DroppedDetail{Title: &title}, stats)
		return
	}

	height := md.Height()
	hdConfirmed := height >= e.cfg.MinHDHeight && play.OK
	if e.cfg.RequireHDPlaybackConfirmation && !hdConfirmed {
		e.record(url, ReasonHDNotConfirmed, DroppedDetail{Height: &height}, stats)
		return
	}

	delayMS := int(stats.delay / time.Millisecond)
	var evidenceHash string
	if e.cfg.EmitEvidenceHash {
		evidenceHash, err = e.hasher.HashJSON(evidence{
			URL:           url,
			Extracted:     md,
			PlayResult:    play,
			RandomDelayMS: delayMS,
		})
		if err != nil {
			e.fail(ctx, url, fmt.Errorf("evidence hash: %w", err), stats)
			return
		}
	}

	hosts := guard.CrossDomainHosts()
	stats.crossDomain = len(hosts)
	detail := AcceptedDetail{
		Title:            md.Title,
		DurationSec:      md.Duration(),
		HDConfirmed:      hdConfirmed,
		RandomDelayMS:    delayMS,
		CrossDomainCalls: hosts,
	}
	if evidenceHash != "" {
		detail.EvidenceHash = &evidenceHash
	}
	discovery := newDiscovery(url, md, hdConfirmed, evidenceHash)
	evt := Event{TS: e.clock.Now(), URL: url, Reason: ReasonOK, Detail: detail}
	e.recorder.Accept(discovery, evt)
	e.emitVisit(evt, stats)
	e.logger.Info("accepted discovery", zap.String("url", url), zap.Bool("hd_confirmed", hdConfirmed))

	e.publish(ctx, discovery)
}

// HandleFailed records a navigation that exhausted its retries.
func (e *Engine) HandleFailed(_ context.Context, req scheduler.Request, err error) {
	url := canonicalOr(req.URL)
	host := policy.Hostname(url)
	failures := e.breaker.RecordFailure(host)
	e.record(url, ReasonRequestFailed, ErrorDetail{Error: err.Error(), Domain: host}, visitStats{
		domain:   host,
		failures: failures,
	})
}

// drive resolves the site adapter and runs wait, play, settle and extract.
func (e *Engine) drive(ctx context.Context, host string, page browser.Page) (adapter.PlayResult, adapter.Metadata, error) {
	a, err := e.adapters.Resolve(host, e.cfg.AdapterOverrides)
	if err != nil {
		return adapter.PlayResult{}, adapter.Metadata{}, fmt.Errorf("resolve adapter: %w", err)
	}
	if err := a.WaitForPlayer(ctx, page, e.cfg.NavigationTimeout()); err != nil {
		return adapter.PlayResult{}, adapter.Metadata{}, fmt.Errorf("%s: wait for player: %w", a.Name(), err)
	}
	play, err := a.TriggerPlay(ctx, page)
	if err != nil {
		return adapter.PlayResult{}, adapter.Metadata{}, fmt.Errorf("%s: trigger play: %w", a.Name(), err)
	}
	if err := e.clock.Sleep(ctx, e.cfg.PlaybackWait()); err != nil {
		return adapter.PlayResult{}, adapter.Metadata{}, fmt.Errorf("playback settle: %w", err)
	}
	md, err := a.Extract(ctx, page)
	if err != nil {
		return adapter.PlayResult{}, adapter.Metadata{}, fmt.Errorf("%s: extract: %w", a.Name(), err)
	}
	return play, md, nil
}

// fail records crawl_failed and counts the failure against the domain. A
// visit cut short by cancellation is dropped from the log instead.
func (e *Engine) fail(ctx context.Context, url string, err error, stats visitStats) {
	if ctx.Err() != nil {
		e.logger.Debug("visit abandoned", zap.String("url", url), zap.Error(err))
		return
	}
	stats.failures = e.breaker.RecordFailure(stats.domain)
	e.record(url, ReasonCrawlFailed, ErrorDetail{Error: err.Error(), Domain: stats.domain}, stats)
	e.logger.Warn("visit failed", zap.String("url", url), zap.Int("domain_failures", stats.failures), zap.Error(err))
}

func (e *Engine) publish(ctx context.Context, d Discovery) {
	if e.publisher == nil {
		return
	}
	id, err := e.publisher.Publish(ctx, e.topic, d)
	if err != nil {
		e.logger.Warn("publish discovery failed", zap.String("url", d.SourceURL), zap.Error(err))
		return
	}
	e.logger.Debug("published discovery", zap.String("url", d.SourceURL), zap.String("message_id", id))
}

func loadedURL(req scheduler.Request, session browser.Session) string {
	if loaded := session.URL(); loaded != "" {
		return loaded
	}
	return req.URL
}

// canonicalOr canonicalizes raw, falling back to raw itself so that a
// malformed redirect target still fails the allowlist check.
func canonicalOr(raw string) string {
	canonical, err := policy.Canonicalize(raw)
	if err != nil {
		return raw
	}
	return canonical
}
