package sinks

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/media-discovery-crawler/internal/progress"
)

// Reason used by the crawler for visits skipped on an open circuit.
const reasonCircuitOpen = "domain_circuit_open"

// PrometheusSink exports crawl progress via Prometheus collectors.
type PrometheusSink struct {
	runsStarted  prometheus.Counter
	runsRunning  prometheus.Gauge
	runDuration  prometheus.Histogram
	visits       *prometheus.CounterVec
	visitLatency *prometheus.HistogramVec
	crossDomain  *prometheus.CounterVec
	pacingDelay  prometheus.Histogram
	circuitOpen  *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_runs_running",
			Help: "Crawl runs currently in flight.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		visits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_visits_total",
			Help: "Visit outcomes partitioned by status and reason.",
		}, []string{"status", "reason"}),
		visitLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_visit_duration_seconds",
			Help:    "Time spent handling a loaded page, partitioned by status.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"status"}),
		crossDomain: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_cross_domain_hosts_total",
			Help: "Distinct foreign hosts contacted by visited pages.",
		}, []string{"domain"}),
		pacingDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_pacing_delay_seconds",
			Help:    "Randomized delay applied before interacting with a page.",
			Buckets: []float64{0, 0.25, 0.5, 1, 2, 5, 10},
		}),
		circuitOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_circuit_open_skips_total",
			Help: "Visits skipped because the domain exhausted its error budget.",
		}, []string{"domain"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsRunning,
		s.runDuration,
		s.visits,
		s.visitLatency,
		s.crossDomain,
		s.pacingDelay,
		s.circuitOpen,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.runsRunning.Inc()
	case progress.StageRunDone:
		s.runsRunning.Dec()
		if evt.Dur > 0 {
			s.runDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageVisit:
		s.handleVisit(evt)
	}
}

func (s *PrometheusSink) handleVisit(evt progress.Event) {
	domain := evt.Domain
	if domain == "" {
		domain = "unknown"
	}
	s.visits.WithLabelValues(evt.Status, reasonLabel(evt.Reason)).Inc()
	if evt.Dur > 0 {
		s.visitLatency.WithLabelValues(evt.Status).Observe(evt.Dur.Seconds())
	}
	if evt.CrossDomainCalls > 0 {
		s.crossDomain.WithLabelValues(domain).Add(float64(evt.CrossDomainCalls))
	}
	if evt.Status == "accepted" {
		s.pacingDelay.Observe(evt.Delay.Seconds())
	}
	if evt.Reason == reasonCircuitOpen {
		s.circuitOpen.WithLabelValues(domain).Inc()
	}
}

// reasonLabel keeps label cardinality bounded by dropping keyword suffixes
// such as "blacklist_keyword:<term>".
func reasonLabel(reason string) string {
	prefix, _, _ := strings.Cut(reason, ":")
	return prefix
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
