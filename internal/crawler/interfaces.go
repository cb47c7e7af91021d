package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/media-discovery-crawler/internal/adapter"
)

// Clock returns the current time and sleeps (useful for testing).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Hasher computes evidence digests.
type Hasher interface {
	HashJSON(v any) (string, error)
}

// Publisher pushes accepted discoveries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RobotsPolicy reports whether robots.txt lets the crawler fetch a URL.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Pacer picks the delay applied before interacting with a page.
type Pacer interface {
	Delay() time.Duration
}

// AdapterResolver finds the adapter for a host.
type AdapterResolver interface {
	Resolve(hostname string, overrides map[string]string) (adapter.Adapter, error)
}
