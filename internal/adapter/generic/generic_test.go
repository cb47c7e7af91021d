package generic

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/media-discovery-crawler/internal/adapter"
	"github.com/JakeFAU/media-discovery-crawler/internal/browser"
	"github.com/JakeFAU/media-discovery-crawler/internal/browser/browsertest"
)

func TestExtractTitlePrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "og title wins",
			html: `<html><head><meta property="og:title" content=" OG Title "><title>Doc</title></head><body><h1>Heading</h1></body></html>`,
			want: "OG Title",
		},
		{
			name: "first h1 next",
			html: `<html><head><title>Doc</title></head><body><h1> Heading </h1><h1>Second</h1></body></html>`,
			want: "Heading",
		},
		{
			name: "document title last",
			html: `<html><head><title>  Doc Title </title></head><body></body></html>`,
			want: "Doc Title",
		},
		{
			name: "empty og content skipped",
			html: `<html><head><meta property="og:title" content=""></head><body><h1>Heading</h1></body></html>`,
			want: "Heading",
		},
		{
			name: "nothing",
			html: `<html><body><p>plain</p></body></html>`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractTitle(tt.html)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestQualitySignals(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{}, QualitySignals(0, 0))
	assert.Equal(t, []string{"640x480"}, QualitySignals(640, 480))
	assert.Equal(t, []string{"1280x720", "hd"}, QualitySignals(1280, 720))
	assert.Equal(t, []string{"1920x1080", "hd", "1080p"}, QualitySignals(1920, 1080))
}

func TestWaitForPlayer(t *testing.T) {
	t.Parallel()

	a := New()
	session := &browsertest.Session{}
	require.NoError(t, a.WaitForPlayer(context.Background(), session, time.Second))
	require.Equal(t, []string{waitExpression}, session.Expressions())

	session = &browsertest.Session{WaitErr: browser.ErrWaitTimeout}
	err := a.WaitForPlayer(context.Background(), session, time.Millisecond)
	require.ErrorIs(t, err, browser.ErrWaitTimeout)
}

func TestTriggerPlayDecodesResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		script map[string]any
		want   adapter.PlayResult
	}{
		{name: "played", script: map[string]any{"ok": true}, want: adapter.PlayResult{OK: true}},
		{name: "fallback", script: map[string]any{"ok": true, "reason": "fallback_click"}, want: adapter.PlayResult{OK: true, Reason: adapter.ReasonFallbackClick}},
		{name: "no video", script: map[string]any{"ok": false, "reason": "no_video_element"}, want: adapter.PlayResult{Reason: adapter.ReasonNoVideoElement}},
		{
			name:   "failed",
			script: map[string]any{"ok": false, "reason": "play_failed", "detail": "NotAllowedError"},
			want:   adapter.PlayResult{Reason: adapter.ReasonPlayFailed, Detail: "NotAllowedError"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			session := &browsertest.Session{EvaluateFunc: func(expr string) (any, error) {
				require.Equal(t, playExpression, expr)
				return tt.script, nil
			}}
			got, err := New().TriggerPlay(context.Background(), session)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTriggerPlayEvaluationError(t *testing.T) {
	t.Parallel()

	boom := errors.New("target closed")
	session := &browsertest.Session{EvaluateFunc: func(string) (any, error) { return nil, boom }}
	_, err := New().TriggerPlay(context.Background(), session)
	require.ErrorIs(t, err, boom)
}

func TestExtract(t *testing.T) {
	t.Parallel()

	session := &browsertest.Session{
		Document: `<html><head><title>Sunset Timelapse</title></head><body><video></video></body></html>`,
		EvaluateFunc: func(expr string) (any, error) {
			if !strings.Contains(expr, "videoWidth") {
				return nil, errors.New("unexpected expression")
			}
			return videoStats{Found: true, Duration: 93, Width: 1920, Height: 1080}, nil
		},
	}
	meta, err := New().Extract(context.Background(), session)
	require.NoError(t, err)
	require.Equal(t, "Sunset Timelapse", meta.Title)
	require.NotNil(t, meta.DurationSec)
	require.Equal(t, 93, *meta.DurationSec)
	require.Equal(t, &adapter.Resolution{Width: 1920, Height: 1080}, meta.Resolution)
	require.Equal(t, []string{"1920x1080", "hd", "1080p"}, meta.QualitySignals)
	require.Empty(t, meta.ThemeTags)
	require.NotNil(t, meta.ThemeTags)
}

func TestExtractUnknownVideoStats(t *testing.T) {
	t.Parallel()

	session := &browsertest.Session{
		Document: `<html><body><h1>Live</h1></body></html>`,
		EvaluateFunc: func(string) (any, error) {
			return videoStats{Found: true, Duration: -1}, nil
		},
	}
	meta, err := New().Extract(context.Background(), session)
	require.NoError(t, err)
	require.Equal(t, "Live", meta.Title)
	require.Nil(t, meta.DurationSec)
	require.Nil(t, meta.Resolution)
	require.Zero(t, meta.Height())
	require.Equal(t, []string{}, meta.QualitySignals)
}

func TestExtractSnapshotError(t *testing.T) {
	t.Parallel()

	boom := errors.New("detached")
	_, err := New().Extract(context.Background(), &browsertest.Session{HTMLErr: boom})
	require.ErrorIs(t, err, boom)
}

func TestAdapterName(t *testing.T) {
	t.Parallel()

	var a adapter.Adapter = New()
	require.Equal(t, adapter.DefaultID, a.Name())
}
