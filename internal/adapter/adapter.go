// Package adapter defines site adapters and resolves which one handles a host.
package adapter

import (
	"context"
	"time"

	"github.com/JakeFAU/media-discovery-crawler/internal/browser"
)

// Play outcome reasons shared by adapters.
const (
	ReasonNoVideoElement = "no_video_element"
	ReasonPlayFailed     = "play_failed"
	ReasonFallbackClick  = "fallback_click"
)

// Adapter drives one kind of media page.
type Adapter interface {
	Name() string
	// WaitForPlayer blocks until a player is present or timeout elapses.
	WaitForPlayer(ctx context.Context, page browser.Page, timeout time.Duration) error
	// TriggerPlay attempts to start playback. A failed attempt is reported in
	// the result; an error means the page itself could not be driven.
	TriggerPlay(ctx context.Context, page browser.Page) (PlayResult, error)
	Extract(ctx context.Context, page browser.Page) (Metadata, error)
}

// PlayResult describes a playback attempt.
type PlayResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Resolution is the intrinsic video size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Metadata is what an adapter extracts from a page.
type Metadata struct {
	Title          string      `json:"title"`
	DurationSec    *int        `json:"duration_sec"`
	Resolution     *Resolution `json:"resolution"`
	QualitySignals []string    `json:"quality_signals"`
	ThemeTags      []string    `json:"theme_tags"`
	VisualFeatures []string    `json:"visual_features"`
}

// Height returns the video height, or 0 when unknown.
func (m Metadata) Height() int {
	if m.Resolution == nil {
		return 0
	}
	return m.Resolution.Height
}

// Duration returns the duration in seconds, or 0 when unknown.
func (m Metadata) Duration() int {
	if m.DurationSec == nil {
		return 0
	}
	return *m.DurationSec
}
