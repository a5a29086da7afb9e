package core

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/halldyll/recall-go/pkg/extract"
)

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger     *slog.Logger
	clock      func() time.Time
	registerer prometheus.Registerer
	rules      []extract.Rule
}

func defaultEngineOptions() *engineOptions {
	return &engineOptions{
		clock: time.Now,
	}
}

// WithLogger sets the structured logger. Degradations are logged at Warn,
// admissions and suppressions at Debug.
//
// Example:
//
//	engine, _ := core.NewEngine(cfg, backends,
//	    core.WithLogger(telemetry.NewLogger(os.Stderr, slog.LevelInfo)),
//	)
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithClock replaces time.Now. Tests use it to pin ages and TTLs.
func WithClock(clock func() time.Time) Option {
	return func(o *engineOptions) {
		o.clock = clock
	}
}

// WithRegisterer registers the engine's Prometheus collectors on reg.
// Without it the engine records no metrics.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	engine, _ := core.NewEngine(cfg, backends, core.WithRegisterer(reg))
//	http.Handle("/metrics", engine.Metrics().Handler())
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *engineOptions) {
		o.registerer = reg
	}
}

// WithRules replaces the built-in heuristic extraction rules.
func WithRules(rules []extract.Rule) Option {
	return func(o *engineOptions) {
		o.rules = rules
	}
}
