// Package cmd defines the CLI of the media-discovery-crawler executable.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-discovery-crawler/internal/app"
	"github.com/JakeFAU/media-discovery-crawler/internal/config"
	"github.com/JakeFAU/media-discovery-crawler/internal/crawler"
)

// App is what the crawl command needs from the service container. Tests
// swap in a fake through newApp.
type App interface {
	Run(ctx context.Context) (crawler.Report, error)
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.RunConfig, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger, app.Factories{})
}

// streams carries the process I/O so commands stay testable.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func newRootCmd(s streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media-crawler",
		Short: "Policy-driven discovery crawler for playable web video.",
		Long: `media-crawler visits allowlisted pages in a headless browser, plays
the first video it finds, and admits it as a discovery when the operator's
keyword, quality and domain policies agree. Discoveries are written to
stdout and the audit report to stderr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetIn(s.in)
	cmd.SetOut(s.out)
	cmd.SetErr(s.err)
	cmd.AddCommand(newCrawlCmd(s))
	return cmd
}

// Execute runs the CLI and returns the process exit code. SIGINT and SIGTERM
// cancel the crawl; the partial report is still written.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], streams{in: os.Stdin, out: os.Stdout, err: os.Stderr})
}

func execute(ctx context.Context, args []string, s streams) int {
	root := newRootCmd(s)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		writeFatal(s.err, err)
		return 1
	}
	return 0
}

func writeFatal(w io.Writer, err error) {
	payload, merr := json.Marshal(map[string]string{"fatal": err.Error()})
	if merr != nil {
		fmt.Fprintf(w, "{\"fatal\": %q}\n", err.Error())
		return
	}
	fmt.Fprintln(w, string(payload))
}
