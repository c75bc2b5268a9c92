package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Telemetry bundles the metrics and tracer of one process.
type Telemetry struct {
	Metrics *Metrics
	Tracer  *Tracer

	config *Config
}

// New validates cfg and builds metrics and tracing. Logging is configured
// separately by Setup so it is available before anything else runs.
func New(cfg *Config) (*Telemetry, error) {
	return NewWithWriter(cfg, nil)
}

// NewWithWriter is New with an explicit destination for the stdout trace
// exporter.
func NewWithWriter(cfg *Config, w io.Writer) (*Telemetry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, w)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Metrics: NewMetrics(cfg.Metrics),
		Tracer:  tracer,
		config:  cfg,
	}, nil
}

// Shutdown writes the metrics textfile, if configured, and flushes traces.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.config != nil {
		if err := t.Metrics.WriteTextfile(t.config.Metrics.TextfilePath); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics: %w", err))
		}
	}
	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down tracer: %w", err))
	}
	return errors.Join(errs...)
}
