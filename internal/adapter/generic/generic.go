// Package generic provides the default adapter: it works against any page
// exposing a plain HTML5 <video> element.
package generic

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/media-discovery-crawler/internal/adapter"
	"github.com/JakeFAU/media-discovery-crawler/internal/browser"
)

// Height thresholds used for quality signals.
const (
	hdHeight     = 720
	fullHDHeight = 1080
)

const waitExpression = `!!document.querySelector('video')`

const playExpression = `(async () => {
  const video = document.querySelector('video');
  if (!video) return { ok: false, reason: 'no_video_element' };
  try {
    if (video.paused) {
      await video.play();
    }
    return { ok: true };
  } catch (error) {
    const button =
      document.querySelector('[aria-label*="play" i]') ||
      document.querySelector('.play') ||
      document.querySelector('button');
    if (button) {
      button.click();
      return { ok: true, reason: 'fallback_click' };
    }
    return { ok: false, reason: 'play_failed', detail: String(error) };
  }
})()`

// videoExpression never yields null so Evaluate always has an object to decode.
const videoExpression = `(() => {
  const video = document.querySelector('video');
  if (!video) return { found: false, duration: -1, width: 0, height: 0 };
  return {
    found: true,
    duration: Number.isFinite(video.duration) ? Math.round(video.duration) : -1,
    width: video.videoWidth || 0,
    height: video.videoHeight || 0
  };
})()`

type videoStats struct {
	Found    bool `json:"found"`
	Duration int  `json:"duration"`
	Width    int  `json:"width"`
	Height   int  `json:"height"`
}

// Adapter is the default adapter.
type Adapter struct{}

// New returns the default adapter.
func New() *Adapter {
	return &Adapter{}
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string {
	return adapter.DefaultID
}

// WaitForPlayer waits for a <video> element to appear.
func (a *Adapter) WaitForPlayer(ctx context.Context, page browser.Page, timeout time.Duration) error {
	if err := page.WaitFor(ctx, waitExpression, timeout); err != nil {
		return fmt.Errorf("wait for video element: %w", err)
	}
	return nil
}

// TriggerPlay starts the first video, clicking a play control when the
// browser refuses programmatic playback.
func (a *Adapter) TriggerPlay(ctx context.Context, page browser.Page) (adapter.PlayResult, error) {
	var result adapter.PlayResult
	if err := page.Evaluate(ctx, playExpression, &result); err != nil {
		return adapter.PlayResult{}, fmt.Errorf("trigger play: %w", err)
	}
	return result, nil
}

// Extract reads title, duration and resolution from the page.
func (a *Adapter) Extract(ctx context.Context, page browser.Page) (adapter.Metadata, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return adapter.Metadata{}, fmt.Errorf("snapshot document: %w", err)
	}
	title, err := ExtractTitle(html)
	if err != nil {
		return adapter.Metadata{}, err
	}

	var stats videoStats
	if err := page.Evaluate(ctx, videoExpression, &stats); err != nil {
		return adapter.Metadata{}, fmt.Errorf("read video stats: %w", err)
	}
	return buildMetadata(title, stats), nil
}

// ExtractTitle picks og:title, then the first h1, then <title>. The first
// non-empty candidate is trimmed and returned.
func ExtractTitle(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}
	og, _ := doc.Find(`meta[property="og:title"]`).First().Attr("content")
	for _, candidate := range []string{
		og,
		doc.Find("h1").First().Text(),
		doc.Find("title").First().Text(),
	} {
		if candidate != "" {
			return strings.TrimSpace(candidate), nil
		}
	}
	return "", nil
}

func buildMetadata(title string, stats videoStats) adapter.Metadata {
	meta := adapter.Metadata{
		Title:          title,
		QualitySignals: QualitySignals(stats.Width, stats.Height),
		ThemeTags:      []string{},
		VisualFeatures: []string{},
	}
	if stats.Found && stats.Duration >= 0 {
		d := stats.Duration
		meta.DurationSec = &d
	}
	if stats.Width > 0 && stats.Height > 0 {
		meta.Resolution = &adapter.Resolution{Width: stats.Width, Height: stats.Height}
	}
	return meta
}

// QualitySignals derives coarse quality tags from the intrinsic size.
func QualitySignals(width, height int) []string {
	signals := []string{}
	if width > 0 && height > 0 {
		signals = append(signals, strconv.Itoa(width)+"x"+strconv.Itoa(height))
	}
	if height >= hdHeight {
		signals = append(signals, "hd")
	}
	if height >= fullHDHeight {
		signals = append(signals, "1080p")
	}
	return signals
}
