// Package transporttest provides a scriptable in-memory transport.Engine for
// tests. It records every configuration call in order, counts socket
// allocations and closes, and lets a test inject failures at any step.
package transporttest

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/joshuafuller/pgmflow/internal/transport"
)

// Call methods recorded by the fake.
const (
	MethodSocket    = "socket"
	MethodSetOption = "set_option"
	MethodBind      = "bind"
	MethodJoinGroup = "join_group"
	MethodSendGroup = "send_group"
	MethodConnect   = "connect"
	MethodClose     = "close"
)

// ErrClosed is returned by I/O on a closed fake socket.
var ErrClosed = stderrors.New("transporttest: socket closed")

// Call is one recorded engine call.
type Call struct {
	Method string
	Option transport.Option // MethodSetOption only
	Value  any              // option value, BindRequest or GroupRequest
}

func (c Call) String() string {
	if c.Method == MethodSetOption {
		return fmt.Sprintf("%s(%s=%v)", c.Method, c.Option, c.Value)
	}
	return c.Method
}

type received struct {
	msg transport.Message
	err error
}

// Engine is a thread-safe fake transport.Engine. The zero value is not
// usable; call New.
type Engine struct {
	mu sync.Mutex

	calls  []Call
	allocs int
	closes int

	failMethod map[string]error
	failOption map[transport.Option]error
	closeErr   error

	sendStatus transport.IOStatus
	sendErr    error
	sent       [][]byte

	queue   []received
	arrived chan struct{}

	drainErr   error
	drainDelay time.Duration
	drainHold  chan struct{}
	drains     int
}

// New returns an engine whose calls all succeed.
func New() *Engine {
	return &Engine{
		failMethod: make(map[string]error),
		failOption: make(map[transport.Option]error),
		arrived:    make(chan struct{}, 1),
		drainDelay: time.Millisecond,
	}
}

// FailOn makes every future call of method return err.
func (e *Engine) FailOn(method string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failMethod[method] = err
}

// FailOption makes SetOption(opt, ...) return err.
func (e *Engine) FailOption(opt transport.Option, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOption[opt] = err
}

// FailClose makes Close release the socket but report err.
func (e *Engine) FailClose(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeErr = err
}

// SetSendResult fixes the status and error every Send returns.
func (e *Engine) SetSendResult(status transport.IOStatus, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendStatus, e.sendErr = status, err
}

// SetDrainError makes every DrainInternal call fail with err. A nil err
// restores normal draining.
func (e *Engine) SetDrainError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drainErr = err
}

// SetDrainDelay sets how long a successful DrainInternal blocks.
func (e *Engine) SetDrainDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drainDelay = d
}

// HoldDrain makes DrainInternal block, ignoring its context and Close, until
// the returned release func is called. It simulates an engine call that
// never returns.
func (e *Engine) HoldDrain() (release func()) {
	hold := make(chan struct{})
	e.mu.Lock()
	e.drainHold = hold
	e.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			if e.drainHold == hold {
				e.drainHold = nil
			}
			e.mu.Unlock()
			close(hold)
		})
	}
}

// QueueMessage queues a message for ReceiveMessage. Segments are delivered
// as given.
func (e *Engine) QueueMessage(segments ...[]byte) {
	e.enqueue(received{msg: transport.Message{Segments: segments}})
}

// QueueReceiveError queues a failing ReceiveMessage result.
func (e *Engine) QueueReceiveError(err error) {
	e.enqueue(received{err: err})
}

func (e *Engine) enqueue(r received) {
	e.mu.Lock()
	e.queue = append(e.queue, r)
	e.mu.Unlock()
	select {
	case e.arrived <- struct{}{}:
	default:
	}
}

// Calls returns a copy of the recorded call log.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Methods returns the method names of the call log, in order.
func (e *Engine) Methods() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	for i, c := range e.calls {
		out[i] = c.Method
	}
	return out
}

// Options returns the options passed to SetOption, in order.
func (e *Engine) Options() []transport.Option {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []transport.Option
	for _, c := range e.calls {
		if c.Method == MethodSetOption {
			out = append(out, c.Option)
		}
	}
	return out
}

// OptionValue returns the last value set for opt.
func (e *Engine) OptionValue(opt transport.Option) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.calls) - 1; i >= 0; i-- {
		if c := e.calls[i]; c.Method == MethodSetOption && c.Option == opt {
			return c.Value, true
		}
	}
	return nil, false
}

// Allocs reports how many sockets were allocated.
func (e *Engine) Allocs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocs
}

// Closes reports how many sockets were closed.
func (e *Engine) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes
}

// Open reports the sockets allocated but not closed.
func (e *Engine) Open() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocs - e.closes
}

// Drains reports how many DrainInternal calls were made.
func (e *Engine) Drains() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drains
}

// Sent returns copies of every payload passed to Send.
func (e *Engine) Sent() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]byte(nil), e.sent...)
}

// Reset clears the call log and counters. Scripted failures are kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
	e.allocs, e.closes, e.drains = 0, 0, 0
	e.sent = nil
}

// record appends a call and returns the scripted failure for it, if any.
// Callers hold e.mu.
func (e *Engine) record(c Call) error {
	e.calls = append(e.calls, c)
	if c.Method == MethodSetOption {
		if err, ok := e.failOption[c.Option]; ok {
			return err
		}
	}
	return e.failMethod[c.Method]
}

// Socket implements transport.Engine.
func (e *Engine) Socket(family transport.Family, encap transport.Encapsulation) (transport.Socket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record(Call{Method: MethodSocket, Value: family}); err != nil {
		return nil, err
	}
	if family != transport.FamilyIPv4 && family != transport.FamilyIPv6 {
		return nil, fmt.Errorf("unsupported family %s", family)
	}
	e.allocs++
	return &Socket{engine: e, family: family, done: make(chan struct{})}, nil
}

// Socket is a fake transport.Socket. All state lives in its Engine.
type Socket struct {
	engine *Engine
	family transport.Family

	closeOnce sync.Once
	done      chan struct{}
}

// SetOption validates value with transport.ValidateOption, so out of range
// values are rejected with the same text a real engine produces.
func (s *Socket) SetOption(opt transport.Option, value any) error {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record(Call{Method: MethodSetOption, Option: opt, Value: value}); err != nil {
		return err
	}
	return transport.ValidateOption(opt, value)
}

func (s *Socket) Bind(req transport.BindRequest) error {
	return s.simple(MethodBind, req)
}

func (s *Socket) JoinGroup(req transport.GroupRequest) error {
	return s.simple(MethodJoinGroup, req)
}

func (s *Socket) SendGroup(req transport.GroupRequest) error {
	return s.simple(MethodSendGroup, req)
}

func (s *Socket) Connect() error {
	return s.simple(MethodConnect, nil)
}

func (s *Socket) simple(method string, value any) error {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record(Call{Method: method, Value: value})
}

func (s *Socket) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Socket) Send(ctx context.Context, p []byte) (transport.IOStatus, error) {
	if s.closed() {
		return transport.StatusError, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return transport.StatusError, err
	}
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sendStatus == transport.StatusNormal && e.sendErr == nil {
		e.sent = append(e.sent, append([]byte(nil), p...))
	}
	return e.sendStatus, e.sendErr
}

// ReceiveMessage pops the next queued result, blocking until one is queued,
// ctx is done or the socket is closed.
func (s *Socket) ReceiveMessage(ctx context.Context) (transport.Message, error) {
	e := s.engine
	for {
		if s.closed() {
			return transport.Message{}, ErrClosed
		}
		e.mu.Lock()
		if len(e.queue) > 0 {
			r := e.queue[0]
			e.queue = e.queue[1:]
			e.mu.Unlock()
			return r.msg, r.err
		}
		e.mu.Unlock()

		select {
		case <-e.arrived:
		case <-s.done:
		case <-ctx.Done():
			return transport.Message{}, ctx.Err()
		}
	}
}

// DrainInternal counts the call, then fails with the scripted drain error or
// blocks for the drain delay.
func (s *Socket) DrainInternal(ctx context.Context) error {
	e := s.engine
	e.mu.Lock()
	e.drains++
	err, delay, hold := e.drainErr, e.drainDelay, e.drainHold
	e.mu.Unlock()

	if hold != nil {
		<-hold
		return nil
	}

	if s.closed() {
		return ErrClosed
	}
	if err != nil {
		return err
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// Close releases the socket once; later calls are no-ops that are not
// counted.
func (s *Socket) Close() error {
	var err error
	first := false
	s.closeOnce.Do(func() {
		first = true
		close(s.done)
	})
	if !first {
		return nil
	}
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closes++
	if rerr := e.record(Call{Method: MethodClose}); rerr != nil {
		err = rerr
	}
	if e.closeErr != nil {
		err = e.closeErr
	}
	return err
}
