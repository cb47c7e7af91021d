// Package config loads and validates the crawl run configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/media-discovery-crawler/internal/containment"
	"github.com/JakeFAU/media-discovery-crawler/internal/policy"
)

// ErrInvalid marks configuration that failed validation.
var ErrInvalid = errors.New("config_invalid")

// StdinPath selects standard input as the config source.
const StdinPath = "-"

// Hostnames contain dots, so nested keys use a different delimiter.
const keyDelimiter = "::"

// RunConfig is the validated, immutable configuration of one crawl run.
type RunConfig struct {
	SeedURLs               []string          `mapstructure:"seed_urls"`
	DiscoveryRoots         []string          `mapstructure:"discovery_roots"`
	AllowlistDomains       []string          `mapstructure:"allowlist_domains"`
	AllowedResourceDomains []string          `mapstructure:"allowed_resource_domains"`
	AdapterOverrides       map[string]string `mapstructure:"adapter_overrides"`

	MaxConcurrency      int `mapstructure:"max_concurrency"`
	NavigationTimeoutMS int `mapstructure:"navigation_timeout_ms"`
	PlaybackWaitMS      int `mapstructure:"playback_wait_ms"`
	RandomDelayMSMin    int `mapstructure:"random_delay_ms_min"`
	RandomDelayMSMax    int `mapstructure:"random_delay_ms_max"`
	DomainErrorBudget   int `mapstructure:"domain_error_budget"`

	ResourceDomainPolicy string   `mapstructure:"resource_domain_policy"`
	BlacklistKeywords    []string `mapstructure:"blacklist_keywords"`
	BlockedKeywords      []string `mapstructure:"blocked_keywords"`

	MinHDHeight                   int  `mapstructure:"min_hd_height"`
	RequireHDPlaybackConfirmation bool `mapstructure:"require_hd_playback_confirmation"`
	EmitEvidenceHash              bool `mapstructure:"emit_evidence_hash"`

	RespectRobots bool   `mapstructure:"respect_robots"`
	UserAgent     string `mapstructure:"user_agent"`

	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Publish   PublishConfig   `mapstructure:"publish"`
}

// SchedulerConfig tunes navigation dispatch.
type SchedulerConfig struct {
	// DomainQPS caps navigations per second per domain; 0 disables the cap.
	DomainQPS  float64 `mapstructure:"domain_qps"`
	MaxRetries int     `mapstructure:"max_retries"`
}

// BrowserConfig points at the Chrome binary when it is not on PATH.
type BrowserConfig struct {
	ExecPath string `mapstructure:"exec_path"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	Output      string `mapstructure:"output"`
}

// MetricsConfig enables the metrics listener when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// PublishConfig enables Pub/Sub publication of accepted discoveries.
type PublishConfig struct {
	PubSubProject string `mapstructure:"pubsub_project"`
	Topic         string `mapstructure:"topic"`
}

// Source describes where configuration comes from.
type Source struct {
	// Path is a config file, StdinPath for JSON on Stdin, or empty.
	Path  string
	Stdin io.Reader
	// URL replaces the seed list and, when no allowlist is configured,
	// allowlists its host.
	URL string
	// RequireHD forces HD playback confirmation on.
	RequireHD bool
}

// Load builds a RunConfig from the source, environment and defaults.
func Load(src Source) (RunConfig, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := readSource(v, src); err != nil {
		return RunConfig{}, err
	}
	if err := applyOverrides(v, src); err != nil {
		return RunConfig{}, err
	}

	var cfg RunConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return RunConfig{}, fmt.Errorf("%w: unmarshal config: %w", ErrInvalid, err)
	}
	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

func readSource(v *viper.Viper, src Source) error {
	switch src.Path {
	case "":
		return nil
	case StdinPath:
		if src.Stdin == nil {
			return fmt.Errorf("%w: stdin config requested but no input is attached", ErrInvalid)
		}
		v.SetConfigType("json")
		if err := v.ReadConfig(src.Stdin); err != nil {
			return fmt.Errorf("%w: read stdin config: %w", ErrInvalid, err)
		}
		return nil
	default:
		v.SetConfigFile(src.Path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read config: %w", ErrInvalid, err)
		}
		return nil
	}
}

func applyOverrides(v *viper.Viper, src Source) error {
	if src.URL != "" {
		v.Set("seed_urls", []string{src.URL})
		if len(v.GetStringSlice("allowlist_domains")) == 0 {
			host := policy.Hostname(src.URL)
			if host == "" {
				return fmt.Errorf("%w: --url %q has no host", ErrInvalid, src.URL)
			}
			v.Set("allowlist_domains", []string{host})
		}
	}
	if src.RequireHD {
		v.Set("require_hd_playback_confirmation", true)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("seed_urls", []string{})
	v.SetDefault("discovery_roots", []string{})
	v.SetDefault("allowlist_domains", []string{})
	v.SetDefault("allowed_resource_domains", []string{})
	v.SetDefault("max_concurrency", 2)
	v.SetDefault("navigation_timeout_ms", 30000)
	v.SetDefault("playback_wait_ms", 2500)
	v.SetDefault("random_delay_ms_min", 0)
	v.SetDefault("random_delay_ms_max", 0)
	v.SetDefault("domain_error_budget", 3)
	v.SetDefault("resource_domain_policy", string(containment.ModeObserve))
	v.SetDefault("blacklist_keywords", []string{})
	v.SetDefault("blocked_keywords", []string{})
	v.SetDefault("min_hd_height", 720)
	v.SetDefault("require_hd_playback_confirmation", false)
	v.SetDefault("emit_evidence_hash", false)
	v.SetDefault("respect_robots", false)
	v.SetDefault("user_agent", "media-discovery-crawler/0.1")
	v.SetDefault("scheduler::domain_qps", 0)
	v.SetDefault("scheduler::max_retries", 1)
	v.SetDefault("browser::exec_path", "")
	v.SetDefault("logging::development", false)
	v.SetDefault("logging::level", "warn")
	v.SetDefault("logging::output", "stderr")
	v.SetDefault("metrics::listen_addr", "")
	v.SetDefault("publish::pubsub_project", "")
	v.SetDefault("publish::topic", "")
}

func (c RunConfig) normalized() RunConfig {
	c.AllowlistDomains = policy.NewDomainSet(c.AllowlistDomains...).Domains()
	c.AllowedResourceDomains = policy.NewDomainSet(c.AllowedResourceDomains...).Domains()
	c.BlacklistKeywords = uniqueTerms(c.BlacklistKeywords)
	c.BlockedKeywords = uniqueTerms(c.BlockedKeywords)
	c.ResourceDomainPolicy = strings.ToLower(strings.TrimSpace(c.ResourceDomainPolicy))

	overrides := make(map[string]string, len(c.AdapterOverrides))
	for host, id := range c.AdapterOverrides {
		key := strings.ToLower(strings.TrimSpace(host))
		if key == "" {
			continue
		}
		overrides[key] = strings.TrimSpace(id)
	}
	c.AdapterOverrides = overrides
	return c
}

// Validate enforces required values and limits. Every problem is reported.
func (c RunConfig) Validate() error {
	var problems []string
	if len(c.SeedURLs) == 0 && len(c.DiscoveryRoots) == 0 {
		problems = append(problems, "at least one of seed_urls or discovery_roots is required")
	}
	if len(c.AllowlistDomains) == 0 {
		problems = append(problems, "allowlist_domains must not be empty")
	}
	if c.MaxConcurrency < 1 {
		problems = append(problems, "max_concurrency must be >= 1")
	}
	if c.NavigationTimeoutMS <= 0 {
		problems = append(problems, "navigation_timeout_ms must be > 0")
	}
	if c.PlaybackWaitMS < 0 {
		problems = append(problems, "playback_wait_ms must be >= 0")
	}
	if c.RandomDelayMSMin < 0 || c.RandomDelayMSMax < 0 {
		problems = append(problems, "random delays must be >= 0")
	}
	if c.RandomDelayMSMax < c.RandomDelayMSMin {
		problems = append(problems, "random_delay_ms_max must be >= random_delay_ms_min")
	}
	if c.DomainErrorBudget < 1 {
		problems = append(problems, "domain_error_budget must be >= 1")
	}
	if _, err := containment.ParseMode(c.ResourceDomainPolicy); err != nil {
		problems = append(problems, "resource_domain_policy must be observe or enforce")
	}
	if c.MinHDHeight < 0 {
		problems = append(problems, "min_hd_height must be >= 0")
	}
	if c.Scheduler.DomainQPS < 0 {
		problems = append(problems, "scheduler.domain_qps must be >= 0")
	}
	if c.Scheduler.MaxRetries < 0 || c.Scheduler.MaxRetries > 1 {
		problems = append(problems, "scheduler.max_retries must be 0 or 1")
	}
	if (c.Publish.PubSubProject == "") != (c.Publish.Topic == "") {
		problems = append(problems, "publish.pubsub_project and publish.topic must be set together")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// NavigationTimeout returns navigation_timeout_ms as a duration.
func (c RunConfig) NavigationTimeout() time.Duration {
	return time.Duration(c.NavigationTimeoutMS) * time.Millisecond
}

// PlaybackWait returns playback_wait_ms as a duration.
func (c RunConfig) PlaybackWait() time.Duration {
	return time.Duration(c.PlaybackWaitMS) * time.Millisecond
}

// ContainmentMode returns the parsed resource domain policy.
func (c RunConfig) ContainmentMode() containment.Mode {
	mode, err := containment.ParseMode(c.ResourceDomainPolicy)
	if err != nil {
		return containment.ModeObserve
	}
	return mode
}

// Candidates returns seed URLs followed by discovery roots.
func (c RunConfig) Candidates() []string {
	out := make([]string, 0, len(c.SeedURLs)+len(c.DiscoveryRoots))
	out = append(out, c.SeedURLs...)
	return append(out, c.DiscoveryRoots...)
}

// uniqueTerms drops blank and repeated keyword terms. Terms keep their
// surrounding whitespace: " kid " matches only the padded word.
func uniqueTerms(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
