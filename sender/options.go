package sender

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/joshuafuller/pgmflow/internal/metrics"
	"github.com/joshuafuller/pgmflow/internal/transport"
)

// DefaultErrorBackoff is the pause after a failed drain of the engine's
// internal channel.
const DefaultErrorBackoff = 10 * time.Millisecond

// Option is a functional option for configuring an Endpoint.
//
// Options are applied by New, in order, before any engine is created.
//
// Example:
//
//	ep, err := sender.New(config.DefaultSender(),
//	    sender.WithLogger(logger),
//	    sender.WithStopTimeout(2*time.Second),
//	)
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

// WithLogger sets the logger for lifecycle events, teardown anomalies and
// drain errors. The default is a console logger on stderr.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Endpoint) error {
		e.logger = logger
		return nil
	}
}

// WithMetrics registers the endpoint's Prometheus instruments with reg.
// Without it the instruments are kept but not registered.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Endpoint) error {
		e.metrics = metrics.New(reg, metrics.DirectionSend)
		return nil
	}
}

// WithStopTimeout bounds how long Stop waits for the ack service task.
//
// Zero, the default, waits without limit. When the bound expires Stop logs a
// fatal ShutdownAnomaly, abandons the task and returns. The socket stays open
// until the abandoned task exits and is closed then.
func WithStopTimeout(d time.Duration) Option {
	return func(e *Endpoint) error {
		if d < 0 {
			return fmt.Errorf("stop timeout %v must not be negative", d)
		}
		e.stopTimeout = d
		return nil
	}
}

// WithErrorBackoff sets the pause after a failed drain. It keeps a failing
// engine from spinning the ack service task.
func WithErrorBackoff(d time.Duration) Option {
	return func(e *Endpoint) error {
		if d <= 0 {
			return fmt.Errorf("error backoff %v must be positive", d)
		}
		e.errorBackoff = d
		return nil
	}
}
