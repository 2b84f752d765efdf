// Package receiver pulls messages from a reliable-multicast transport and
// hands them to a pipeline as frames.
//
// An Endpoint owns one receive-only engine socket while Running. Each
// ReceiveFrame call takes exactly one message from the engine. Engines may
// deliver a message as several discontiguous segments; the endpoint
// reassembles them into one freshly allocated frame, in order.
//
// Lifecycle is Stopped -> Starting -> Running -> Stopping -> Stopped, as for
// the sender, but without a background task. Configuration edits made while
// Running take effect at the next Start.
//
// The receiver also carries the media type of the frames it produces
// (ContentType). It has no effect on the transport; the pipeline uses it to
// negotiate with downstream elements through Accepts.
package receiver

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/joshuafuller/pgmflow/config"
	"github.com/joshuafuller/pgmflow/internal/configurator"
	"github.com/joshuafuller/pgmflow/internal/errors"
	"github.com/joshuafuller/pgmflow/internal/logging"
	"github.com/joshuafuller/pgmflow/internal/metrics"
	"github.com/joshuafuller/pgmflow/internal/transport"
)

// State is the lifecycle state of an Endpoint.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Endpoint is a receiver endpoint. It is safe for concurrent use.
type Endpoint struct {
	engine  transport.Engine
	logger  zerolog.Logger
	metrics *metrics.Metrics

	lifecycle sync.Mutex

	mu     sync.Mutex
	cfg    config.Receiver
	state  State
	handle *configurator.Handle
}

// New creates a Stopped endpoint. cfg is not validated until Start.
func New(cfg config.Receiver, opts ...Option) (*Endpoint, error) {
	e := &Endpoint{
		cfg:    cfg,
		logger: logging.New("receiver"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("receiver option: %w", err)
		}
	}
	if e.metrics == nil {
		e.metrics = metrics.Nop()
	}
	if e.engine == nil {
		e.engine = transport.NewUDPEngine(e.logger)
	}
	return e, nil
}

// State returns the current lifecycle state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Config returns a copy of the configuration the next Start will use.
func (e *Endpoint) Config() config.Receiver {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetConfig replaces the configuration, effective at the next Start.
func (e *Endpoint) SetConfig(cfg config.Receiver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

// URI returns the connection URI of the configuration.
func (e *Endpoint) URI() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.URI()
}

// SetURI replaces the connection from uri. On error the configuration is
// unchanged.
func (e *Endpoint) SetURI(uri string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	conn := e.cfg.Connection
	if err := conn.SetURI(uri); err != nil {
		return err
	}
	e.cfg.Connection = conn
	return nil
}

// ContentType returns the media type of produced frames, or "" when
// unspecified.
func (e *Endpoint) ContentType() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.ContentType
}

// SetContentType sets the media type of produced frames. It may be called in
// any state. An empty mediaType clears it.
func (e *Endpoint) SetContentType(mediaType string) error {
	if err := config.ValidateContentType(mediaType); err != nil {
		return &errors.ValidationError{Field: "content_type", Value: mediaType, Message: err.Error()}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.ContentType = mediaType
	return nil
}

// Accepts reports whether frames from this endpoint satisfy mediaType,
// which may use wildcards ("video/*", "*/*"). A receiver without a content
// type accepts any query.
func (e *Endpoint) Accepts(mediaType string) bool {
	produced := e.ContentType()
	if produced == "" {
		return true
	}
	return matchMediaType(produced, mediaType)
}

// Start configures a receive-only socket and joins every receive group.
//
// Returns ErrAlreadyRunning unless Stopped, or a *ConfigurationError; after
// a failure the endpoint is Stopped and nothing is left allocated.
func (e *Endpoint) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if e.state != Stopped {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	cfg := e.cfg
	e.state = Starting
	e.mu.Unlock()

	var h *configurator.Handle
	err := cfg.Validate()
	if err != nil {
		err = &errors.ConfigurationError{Stage: errors.StageValidate, EngineMessage: err.Error(), Err: err}
	} else {
		h, err = configurator.Configure(ctx, e.engine, configurator.ReceiverPlan(cfg))
	}
	if err != nil {
		e.startFailed(err)
		e.mu.Lock()
		e.state = Stopped
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	e.handle = h
	e.state = Running
	e.mu.Unlock()

	e.logger.Info().Str("uri", cfg.URI()).Str("route", h.Route().String()).Msg("receiver started")
	return nil
}

func (e *Endpoint) startFailed(err error) {
	ev := e.logger.Error().Err(err)
	stage := "unknown"
	var cerr *errors.ConfigurationError
	if stderrors.As(err, &cerr) {
		stage = string(cerr.Stage)
		ev = ev.Str("stage", stage)
		if cerr.Option != "" {
			ev = ev.Str("option", cerr.Option)
		}
	}
	ev.Msg("receiver start failed")
	e.metrics.StartFailure(stage)
}

// ReceiveFrame blocks for one message and returns it as a new frame.
//
// Returns:
//   - ErrNotRunning unless Running
//   - *ReceiveError when the engine fails or delivers an empty message;
//     the endpoint stays Running and nothing is retried
func (e *Endpoint) ReceiveFrame(ctx context.Context) ([]byte, error) {
	e.mu.Lock()
	if e.state != Running {
		e.mu.Unlock()
		return nil, ErrNotRunning
	}
	sock := e.handle.Socket()
	e.mu.Unlock()

	msg, err := sock.ReceiveMessage(ctx)
	if err != nil {
		e.metrics.ReceiveError()
		return nil, &errors.ReceiveError{EngineMessage: err.Error(), Err: err}
	}
	if msg.Len() == 0 {
		e.metrics.ReceiveError()
		return nil, &errors.ReceiveError{EngineMessage: "engine delivered an empty message"}
	}

	frame := Reassemble(msg.Segments)
	e.metrics.FrameReceived(len(frame), len(msg.Segments))
	return frame, nil
}

// Stop closes the socket and leaves the endpoint Stopped. It may be called
// from any state; a close failure is logged and counted, never returned.
func (e *Endpoint) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if e.state == Stopped {
		e.mu.Unlock()
		return
	}
	h := e.handle
	e.state = Stopping
	e.mu.Unlock()

	if h != nil {
		if err := h.Close(); err != nil {
			a := &errors.ShutdownAnomaly{Step: "close", Err: err}
			e.logger.Warn().Err(a).Str("step", a.Step).Msg("receiver shutdown anomaly")
			e.metrics.ShutdownAnomaly(a.Step)
		}
	}

	e.mu.Lock()
	e.handle = nil
	e.state = Stopped
	e.mu.Unlock()

	e.logger.Info().Msg("receiver stopped")
}
