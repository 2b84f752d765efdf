// Package metrics holds the Prometheus instruments of the endpoints.
package metrics

import (
	stderrors "errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "pgmflow"
	subsystem = "endpoint"
)

// Directions used as the "direction" constant label.
const (
	DirectionSend    = "send"
	DirectionReceive = "receive"
)

// Metrics is the instrument set of one endpoint direction. All methods are
// safe for concurrent use.
type Metrics struct {
	Frames            prometheus.Counter
	Bytes             prometheus.Counter
	SendFailures      *prometheus.CounterVec // by engine status
	ReceiveErrors     prometheus.Counter
	StartFailures     *prometheus.CounterVec // by configuration stage
	ShutdownAnomalies *prometheus.CounterVec // by teardown step
	DrainErrors       prometheus.Counter
	Segments          prometheus.Histogram
}

// New creates the instruments for direction and registers them with reg.
// Registering the same direction twice on one registry reuses the existing
// collectors. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer, direction string) *Metrics {
	labels := prometheus.Labels{"direction": direction}
	m := &Metrics{
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "frames_total",
			Help:        "Frames passed to or delivered from the transport.",
			ConstLabels: labels,
		}),
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "bytes_total",
			Help:        "Frame payload bytes passed to or delivered from the transport.",
			ConstLabels: labels,
		}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "send_failures_total",
			Help:        "Sends the engine did not fully accept.",
			ConstLabels: labels,
		}, []string{"status"}),
		ReceiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "receive_errors_total",
			Help:        "Receives that produced no frame.",
			ConstLabels: labels,
		}),
		StartFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "start_failures_total",
			Help:        "Failed starts by configuration stage.",
			ConstLabels: labels,
		}, []string{"stage"}),
		ShutdownAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "shutdown_anomalies_total",
			Help:        "Teardown steps that did not complete cleanly.",
			ConstLabels: labels,
		}, []string{"step"}),
		DrainErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "drain_errors_total",
			Help:        "Failed drains of the engine's internal protocol channel.",
			ConstLabels: labels,
		}),
		Segments: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "message_segments",
			Help:        "Segments per delivered message.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 8),
		}),
	}
	if reg == nil {
		return m
	}

	m.Frames = register(reg, m.Frames)
	m.Bytes = register(reg, m.Bytes)
	m.SendFailures = register(reg, m.SendFailures)
	m.ReceiveErrors = register(reg, m.ReceiveErrors)
	m.StartFailures = register(reg, m.StartFailures)
	m.ShutdownAnomalies = register(reg, m.ShutdownAnomalies)
	m.DrainErrors = register(reg, m.DrainErrors)
	m.Segments = register(reg, m.Segments)
	return m
}

// Nop returns unregistered instruments.
func Nop() *Metrics {
	return New(nil, "")
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stderrors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// FrameSent counts one accepted send of n bytes.
func (m *Metrics) FrameSent(n int) {
	m.Frames.Inc()
	m.Bytes.Add(float64(n))
}

// FrameReceived counts one delivered frame of n bytes built from segments
// segments.
func (m *Metrics) FrameReceived(n, segments int) {
	m.Frames.Inc()
	m.Bytes.Add(float64(n))
	m.Segments.Observe(float64(segments))
}

func (m *Metrics) SendFailure(status string) {
	m.SendFailures.WithLabelValues(status).Inc()
}

func (m *Metrics) ReceiveError() {
	m.ReceiveErrors.Inc()
}

func (m *Metrics) StartFailure(stage string) {
	m.StartFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) ShutdownAnomaly(step string) {
	m.ShutdownAnomalies.WithLabelValues(step).Inc()
}

func (m *Metrics) DrainError() {
	m.DrainErrors.Inc()
}
