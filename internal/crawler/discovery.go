package crawler

import (
	"strconv"

	"github.com/JakeFAU/media-discovery-crawler/internal/adapter"
)

// Discovery is an accepted media page. It is never modified after creation.
type Discovery struct {
	SourceURL      string   `json:"source_url"`
	Title          string   `json:"title"`
	DurationSec    int      `json:"duration_sec"`
	ThemeTags      []string `json:"theme_tags"`
	VisualFeatures []string `json:"visual_features"`
	QualitySignals []string `json:"quality_signals"`
	HDConfirmed    bool     `json:"hd_confirmed"`
	EvidenceHash   string   `json:"evidence_hash,omitempty"`
}

func newDiscovery(url string, md adapter.Metadata, hdConfirmed bool, evidenceHash string) Discovery {
	return Discovery{
		SourceURL:      url,
		Title:          md.Title,
		DurationSec:    md.Duration(),
		ThemeTags:      nonNil(md.ThemeTags),
		VisualFeatures: nonNil(md.VisualFeatures),
		QualitySignals: nonNil(md.QualitySignals),
		HDConfirmed:    hdConfirmed,
		EvidenceHash:   evidenceHash,
	}
}

// Attributes labels the Pub/Sub message carrying the discovery.
func (d Discovery) Attributes() map[string]string {
	return map[string]string{
		"source_url":   d.SourceURL,
		"hd_confirmed": strconv.FormatBool(d.HDConfirmed),
	}
}

// evidence is the hashed decision basis of an accepted visit. Field order is
// part of the digest.
type evidence struct {
	URL           string             `json:"url"`
	Extracted     adapter.Metadata   `json:"extracted"`
	PlayResult    adapter.PlayResult `json:"play_result"`
	RandomDelayMS int                `json:"random_delay_ms"`
}

func nonNil(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}
