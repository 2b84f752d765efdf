// Package sender pushes pipeline frames onto a reliable-multicast transport.
//
// ## OVERVIEW
//
// An Endpoint owns one send-only engine socket while it is Running. Start
// configures the socket from a snapshot of the endpoint's configuration and
// launches the ack service task, a goroutine that keeps draining the
// engine's internal protocol channel so that NAKs and SPM requests from
// receivers are serviced while the pipeline is only sending.
//
// ## LIFECYCLE
//
//	Stopped -> Starting -> Running -> Stopping -> Stopped
//
//   - Start is refused while Running.
//   - SendFrame works only while Running.
//   - Stop works from any state and always ends Stopped.
//
// Configuration edits made while Running are stored and take effect at the
// next Start; they never touch the live socket.
//
// ## SHUTDOWN
//
// Stop signals the ack service task, joins it, then closes the socket. The
// join is unbounded unless WithStopTimeout is given. When a bounded join
// expires the task is abandoned and a fatal ShutdownAnomaly is logged and
// counted. The socket is then closed only once the abandoned task exits, so
// it is never closed under a running drain. Stop never returns an error.
//
// ## EXAMPLE
//
//	cfg := config.DefaultSender()
//	if err := cfg.SetURI("pgm://eth0;239.192.0.1:7500:8080"); err != nil {
//	    log.Fatal(err)
//	}
//	ep, err := sender.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := ep.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer ep.Stop()
//
//	if err := ep.SendFrame(ctx, frame); err != nil {
//	    var sf *sender.SendFailure
//	    if errors.As(err, &sf) {
//	        // transient, the caller decides whether to retry
//	    }
//	}
package sender

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

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

// Endpoint is a sender endpoint. It is safe for concurrent use: SendFrame
// may be called from the pipeline goroutine while another goroutine calls
// Stop or edits the configuration.
type Endpoint struct {
	engine       transport.Engine
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	stopTimeout  time.Duration
	errorBackoff time.Duration

	// lifecycle serialises Start and Stop.
	lifecycle sync.Mutex

	mu     sync.Mutex
	cfg    config.Sender
	state  State
	handle *configurator.Handle
	task   *ackTask
}

// New creates a Stopped endpoint. cfg is not validated until Start.
func New(cfg config.Sender, opts ...Option) (*Endpoint, error) {
	e := &Endpoint{
		cfg:          cfg,
		logger:       logging.New("sender"),
		errorBackoff: DefaultErrorBackoff,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("sender option: %w", err)
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
func (e *Endpoint) Config() config.Sender {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetConfig replaces the configuration. While Running the change is
// deferred to the next Start.
func (e *Endpoint) SetConfig(cfg config.Sender) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.logDeferred()
}

// URI returns the connection URI of the configuration.
func (e *Endpoint) URI() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.URI()
}

// SetURI replaces the connection from uri. On error, an *InvalidURIError,
// the configuration is unchanged.
func (e *Endpoint) SetURI(uri string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	conn := e.cfg.Connection
	if err := conn.SetURI(uri); err != nil {
		return err
	}
	e.cfg.Connection = conn
	e.logDeferred()
	return nil
}

// logDeferred notes a configuration edit that waits for the next Start.
// Callers hold e.mu.
func (e *Endpoint) logDeferred() {
	if e.state == Running {
		e.logger.Debug().Msg("configuration change takes effect at next start")
	}
}

// Start configures a send-only socket and launches the ack service task.
//
// Returns:
//   - ErrAlreadyRunning when the endpoint is not Stopped
//   - *ConfigurationError when validation or any configuration step fails;
//     the endpoint is back in Stopped and nothing is left allocated
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

	h, err := e.configure(ctx, cfg)
	if err != nil {
		e.setState(Stopped)
		return err
	}

	task := startAckTask(h.Socket(), e.logger, e.metrics, e.errorBackoff)

	e.mu.Lock()
	e.handle = h
	e.task = task
	e.state = Running
	e.mu.Unlock()

	e.logger.Info().Str("uri", cfg.URI()).Msg("sender started")
	return nil
}

func (e *Endpoint) configure(ctx context.Context, cfg config.Sender) (*configurator.Handle, error) {
	if err := cfg.Validate(); err != nil {
		cerr := &errors.ConfigurationError{Stage: errors.StageValidate, EngineMessage: err.Error(), Err: err}
		e.startFailed(cerr)
		return nil, cerr
	}

	h, err := configurator.Configure(ctx, e.engine, configurator.SenderPlan(cfg))
	if err != nil {
		e.startFailed(err)
		return nil, err
	}
	return h, nil
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
	ev.Msg("sender start failed")
	e.metrics.StartFailure(stage)
}

func (e *Endpoint) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

// SendFrame transmits one frame. The frame is not retained after return.
//
// Returns:
//   - ErrNotRunning unless Running
//   - *SendFailure when the engine does not fully accept the frame; the
//     endpoint stays Running and the frame is not retried
func (e *Endpoint) SendFrame(ctx context.Context, frame []byte) error {
	e.mu.Lock()
	if e.state != Running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	sock := e.handle.Socket()
	e.mu.Unlock()

	status, err := sock.Send(ctx, frame)
	if err == nil && status == transport.StatusNormal {
		e.metrics.FrameSent(len(frame))
		return nil
	}

	reason := "engine did not accept the frame"
	if err != nil {
		reason = err.Error()
	}
	e.metrics.SendFailure(status.String())
	return &errors.SendFailure{Status: status.String(), Reason: reason, Err: err}
}

// Stop releases the endpoint's resources and leaves it Stopped. It may be
// called from any state and any number of times. Teardown problems are
// logged and counted, never returned.
func (e *Endpoint) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if e.state == Stopped {
		e.mu.Unlock()
		return
	}
	h, task := e.handle, e.task
	e.state = Stopping
	e.mu.Unlock()

	joined := task == nil || task.stop(e.stopTimeout)
	if !joined {
		e.anomaly(&errors.ShutdownAnomaly{
			Step:  "join",
			Fatal: true,
			Err:   fmt.Errorf("ack service task still running after %v, socket close deferred", e.stopTimeout),
		})
	}
	if h != nil {
		if joined {
			e.closeHandle(h)
		} else {
			go func() {
				<-task.done
				e.closeHandle(h)
			}()
		}
	}

	e.mu.Lock()
	e.handle = nil
	e.task = nil
	e.state = Stopped
	e.mu.Unlock()

	e.logger.Info().Msg("sender stopped")
}

func (e *Endpoint) closeHandle(h *configurator.Handle) {
	if err := h.Close(); err != nil {
		e.anomaly(&errors.ShutdownAnomaly{Step: "close", Err: err})
	}
}

func (e *Endpoint) anomaly(a *errors.ShutdownAnomaly) {
	ev := e.logger.Warn()
	if a.Fatal {
		ev = e.logger.Error()
	}
	ev.Err(a).Str("step", a.Step).Bool("fatal", a.Fatal).Msg("sender shutdown anomaly")
	e.metrics.ShutdownAnomaly(a.Step)
}
