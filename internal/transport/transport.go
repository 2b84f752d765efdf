// Package transport defines the capability interface the endpoints consume
// from a reliable-multicast engine, and a UDP-encapsulated implementation.
//
// The engine owns the wire protocol (RFC 3208 style sequencing, NAKs,
// heartbeats). This package only fixes the narrow surface the endpoints need:
// socket creation, option configuration, bind, group membership, connect,
// send, receive-message, drain-internal and close.
//
// Implementations:
//   - UDPEngine: best-effort engine over UDP multicast encapsulation
//   - transporttest.Engine: counting, scriptable test double
package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Family is the address family of a socket.
type Family int

// Address families.
const (
	FamilyUnspec Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "inet"
	case FamilyIPv6:
		return "inet6"
	default:
		return "unspec"
	}
}

// Encapsulation selects how engine packets are carried.
type Encapsulation int

// Encapsulations. Only UDP encapsulation is used by the endpoints.
const (
	EncapUDP Encapsulation = iota
	EncapRaw
)

// SessionID is the 6-byte global source identifier of a session.
type SessionID [6]byte

func (s SessionID) String() string {
	return fmt.Sprintf("%d.%d.%d.%d.%d.%d", s[0], s[1], s[2], s[3], s[4], s[5])
}

// DefaultSourcePort is the data-source port bound alongside the session id.
const DefaultSourcePort = 0

// BindRequest carries the local identity and interface of a socket.
type BindRequest struct {
	Session    SessionID
	Port       uint16         // data-destination port
	SourcePort uint16         // data-source port
	Interface  *net.Interface // nil selects the system default
	ScopeID    uint32         // IPv6 scope, zero for IPv4
}

// GroupRequest names a multicast group on an interface.
type GroupRequest struct {
	Interface *net.Interface
	Group     net.IP
}

// IOStatus is the engine's result for an I/O call.
type IOStatus int

// I/O statuses.
const (
	StatusNormal IOStatus = iota
	StatusError
	StatusReset
	StatusWouldBlock
	StatusRateLimited
	StatusTimerPending
	StatusEOF
)

func (s IOStatus) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusError:
		return "error"
	case StatusReset:
		return "reset"
	case StatusWouldBlock:
		return "would_block"
	case StatusRateLimited:
		return "rate_limited"
	case StatusTimerPending:
		return "timer_pending"
	case StatusEOF:
		return "eof"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Message is one application message as delivered by the engine: an ordered
// list of discontiguous segments.
type Message struct {
	Segments [][]byte
	Source   SessionID
}

// Len returns the total payload length across all segments.
func (m Message) Len() int {
	n := 0
	for _, s := range m.Segments {
		n += len(s)
	}
	return n
}

// Engine allocates sockets.
type Engine interface {
	// Socket allocates an unconfigured socket for the given family.
	Socket(family Family, encap Encapsulation) (Socket, error)
}

// Socket is one engine socket. Send and DrainInternal must be safe to call
// concurrently from different goroutines; every other method is called from
// a single goroutine.
//
// Every failing call returns an error whose text is the engine's native
// diagnostic message.
type Socket interface {
	// SetOption applies one option. Values outside the engine's valid range
	// are rejected, never clamped.
	SetOption(opt Option, value any) error

	// Bind attaches the socket to the session id, data port and interface.
	Bind(req BindRequest) error

	// JoinGroup adds a receive group. Repeatable.
	JoinGroup(req GroupRequest) error

	// SendGroup registers the group data is sent to.
	SendGroup(req GroupRequest) error

	// Connect activates the socket for traffic.
	Connect() error

	// Send transmits one application message. StatusNormal means the engine
	// accepted all of p.
	Send(ctx context.Context, p []byte) (IOStatus, error)

	// ReceiveMessage blocks until one message is available or ctx is done.
	ReceiveMessage(ctx context.Context) (Message, error)

	// DrainInternal services the engine's internal protocol channel once and
	// discards the result. It returns within a bounded delay, and promptly
	// after ctx is done.
	DrainInternal(ctx context.Context) error

	// Close releases the socket.
	Close() error
}

// DrainPoll bounds how long one DrainInternal call of the UDP engine may
// block.
const DrainPoll = 100 * time.Millisecond
