package receiver

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/joshuafuller/pgmflow/internal/metrics"
	"github.com/joshuafuller/pgmflow/internal/transport"
)

// Option is a functional option for configuring an Endpoint.
type Option func(*Endpoint) error

// WithEngine replaces the default UDP engine.
func WithEngine(engine transport.Engine) Option {
	return func(e *Endpoint) error {
		if engine == nil {
			return fmt.Errorf("engine must not be nil")
		}
		e.engine = engine
		return nil
	}
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Endpoint) error {
		e.logger = logger
		return nil
	}
}

// WithMetrics registers the endpoint's Prometheus instruments with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Endpoint) error {
		e.metrics = metrics.New(reg, metrics.DirectionReceive)
		return nil
	}
}
