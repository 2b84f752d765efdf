package configurator

import (
	"sync"

	"github.com/joshuafuller/pgmflow/internal/network"
	"github.com/joshuafuller/pgmflow/internal/transport"
)

// State is the lifecycle position of a Handle.
type State int

const (
	Unconfigured State = iota
	Configured
	Bound
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Bound:
		return "bound"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "invalid"
	}
}

// Handle owns one engine socket. It is created by Configure, used by a
// single endpoint, and never reused once Closed.
type Handle struct {
	sock      transport.Socket
	route     *network.Route
	direction Direction

	mu       sync.Mutex
	state    State
	closeErr error
}

func newHandle(sock transport.Socket, route *network.Route, dir Direction) *Handle {
	return &Handle{sock: sock, route: route, direction: dir, state: Unconfigured}
}

// Socket returns the underlying engine socket.
func (h *Handle) Socket() transport.Socket { return h.sock }

// Route returns the resolved interface and groups.
func (h *Handle) Route() *network.Route { return h.route }

// Direction returns the direction the socket was configured for.
func (h *Handle) Direction() Direction { return h.direction }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) advance(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Closed {
		h.state = s
	}
}

// Close releases the socket. Only the first call reaches the engine; later
// calls return the first call's error.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Closed {
		return h.closeErr
	}
	h.state = Closed
	h.closeErr = h.sock.Close()
	return h.closeErr
}
