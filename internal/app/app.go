// Package app builds the long-lived services of one crawl run and owns their
// shutdown. It is the only place where concrete implementations meet.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-discovery-crawler/internal/adapter"
	"github.com/JakeFAU/media-discovery-crawler/internal/adapter/generic"
	"github.com/JakeFAU/media-discovery-crawler/internal/browser"
	"github.com/JakeFAU/media-discovery-crawler/internal/config"
	"github.com/JakeFAU/media-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/media-discovery-crawler/internal/metrics"
	"github.com/JakeFAU/media-discovery-crawler/internal/progress"
	"github.com/JakeFAU/media-discovery-crawler/internal/progress/sinks"
	"github.com/JakeFAU/media-discovery-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/media-discovery-crawler/internal/scheduler"
)

// Navigator is a scheduler.Navigator that holds a browser process.
type Navigator interface {
	scheduler.Navigator
	Close()
}

// Publisher is a crawler.Publisher with a client to release.
type Publisher interface {
	crawler.Publisher
	Close() error
}

// Factories build the services that need Chrome or GCP. Nil fields fall back
// to the production implementations.
type Factories struct {
	Navigator func(cfg config.RunConfig, logger *zap.Logger) (Navigator, error)
	Publisher func(ctx context.Context, cfg config.PublishConfig) (Publisher, error)
}

// App holds the services of one crawl run.
type App struct {
	nav       Navigator
	publisher Publisher
	hub       *progress.Hub
	server    *metrics.Server
	engine    *crawler.Engine
}

// New wires the browser, adapter registry, progress sinks, optional metrics
// listener, optional publisher and the crawl engine. On error everything
// already started is shut down again.
func New(ctx context.Context, cfg config.RunConfig, logger *zap.Logger, f Factories) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if f.Navigator == nil {
		f.Navigator = newBrowser
	}
	if f.Publisher == nil {
		f.Publisher = newPubSub
	}

	a := &App{}
	defer func() {
		if err != nil {
			if cerr := a.Close(context.Background()); cerr != nil {
				logger.Warn("cleanup after failed start", zap.Error(cerr))
			}
		}
	}()

	registry := adapter.NewRegistry()
	if err := registry.Register(adapter.DefaultID, generic.New()); err != nil {
		return nil, fmt.Errorf("register default adapter: %w", err)
	}

	promRegistry := metrics.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(promRegistry)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		router, err := metrics.NewRouter(promRegistry, logger)
		if err != nil {
			return nil, fmt.Errorf("init metrics router: %w", err)
		}
		a.server, err = metrics.Start(addr, router, logger)
		if err != nil {
			return nil, err
		}
	}

	var pub crawler.Publisher
	if cfg.Publish.Topic != "" {
		a.publisher, err = f.Publisher(ctx, cfg.Publish)
		if err != nil {
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		pub = a.publisher
	}

	a.nav, err = f.Navigator(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init browser: %w", err)
	}

	a.engine, err = crawler.NewEngine(cfg, crawler.Options{
		Navigator: a.nav,
		Adapters:  registry,
		Emitter:   a.hub,
		Publisher: pub,
		Topic:     cfg.Publish.Topic,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	logger.Info("services initialized",
		zap.String("run_id", a.engine.RunID().String()),
		zap.Strings("adapters", registry.IDs()),
		zap.String("metrics_addr", a.MetricsAddr()),
	)
	return a, nil
}

// Run executes the crawl.
func (a *App) Run(ctx context.Context) (crawler.Report, error) {
	return a.engine.Run(ctx)
}

// RunID identifies the crawl.
func (a *App) RunID() uuid.UUID {
	return a.engine.RunID()
}

// MetricsAddr is the bound metrics listener address, empty when disabled.
func (a *App) MetricsAddr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

// Close flushes progress sinks, then stops the listener, the publisher and
// the browser. It is safe on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.nav != nil {
		a.nav.Close()
	}
	return errors.Join(errs...)
}

func newBrowser(cfg config.RunConfig, logger *zap.Logger) (Navigator, error) {
	b, err := browser.New(browser.Config{
		UserAgent:         cfg.UserAgent,
		NavigationTimeout: cfg.NavigationTimeout(),
		ExecPath:          cfg.Browser.ExecPath,
	}, logger)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newPubSub(ctx context.Context, cfg config.PublishConfig) (Publisher, error) {
	p, err := pubsub.New(ctx, cfg.PubSubProject, cfg.Topic)
	if err != nil {
		return nil, err
	}
	return p, nil
}
