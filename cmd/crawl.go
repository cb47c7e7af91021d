package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-discovery-crawler/internal/config"
	"github.com/JakeFAU/media-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/media-discovery-crawler/internal/logging"
)

const shutdownTimeout = 10 * time.Second

type crawlOptions struct {
	configPath string
	url        string
	requireHD  bool
}

func newCrawlCmd(s streams) *cobra.Command {
	var opts crawlOptions
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one discovery crawl",
		Long: `Loads the run configuration, visits every admitted seed URL and
discovery root, then prints the accepted discoveries as a JSON array on stdout
and the audit report as one JSON object on stderr.

The configuration comes from --config (a file, or "-" for JSON on stdin) and
CRAWLER_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), opts, s)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", `config file, or "-" to read JSON from stdin`)
	cmd.Flags().StringVar(&opts.url, "url", "", "crawl this single URL instead of the configured seeds")
	cmd.Flags().BoolVar(&opts.requireHD, "require-hd", false, "drop videos without confirmed HD playback")
	return cmd
}

func runCrawl(ctx context.Context, opts crawlOptions, s streams) error {
	cfg, err := config.Load(config.Source{
		Path:      opts.configPath,
		Stdin:     s.in,
		URL:       opts.url,
		RequireHD: opts.requireHD,
	})
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Output:      cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}

	report, runErr := a.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}

	if err := writeResults(s, report); err != nil {
		return err
	}
	return runErr
}

// writeResults prints the discoveries on stdout and the audit report on stderr.
func writeResults(s streams, report crawler.Report) error {
	discoveries := report.Discoveries
	if discoveries == nil {
		discoveries = []crawler.Discovery{}
	}
	if err := writeJSON(s.out, discoveries, true); err != nil {
		return fmt.Errorf("write discoveries: %w", err)
	}
	if err := writeJSON(s.err, report, false); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any, indent bool) error {
	var (
		payload []byte
		err     error
	)
	if indent {
		payload, err = json.MarshalIndent(v, "", "  ")
	} else {
		payload, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}
