package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/joshuafuller/pgmflow/internal/errors"
)

// Defaults for options the caller never sets.
const (
	defaultMTU  = 1500
	defaultHops = 16
)

var errSocketClosed = stderrors.New("socket closed")

// UDPEngine implements Engine over UDP multicast encapsulation.
//
// It is a best-effort engine: messages are fragmented to the configured MTU
// and reassembled on receipt, but lost fragments are not repaired. Timers,
// windows and retry counts are validated and recorded so that configuration
// behaves like a full engine, but no NAK or heartbeat traffic is generated.
type UDPEngine struct {
	logger zerolog.Logger
}

// NewUDPEngine creates a UDP engine that logs through logger.
func NewUDPEngine(logger zerolog.Logger) *UDPEngine {
	return &UDPEngine{logger: logger.With().Str("engine", "udp").Logger()}
}

// Socket implements Engine.
func (e *UDPEngine) Socket(family Family, encap Encapsulation) (Socket, error) {
	if encap != EncapUDP {
		return nil, fmt.Errorf("encapsulation %d not supported, only UDP", int(encap))
	}
	if family != FamilyIPv4 && family != FamilyIPv6 {
		return nil, fmt.Errorf("address family %s not supported", family)
	}
	return &udpSocket{
		logger:  e.logger,
		family:  family,
		mtu:     defaultMTU,
		hops:    defaultHops,
		options: make(map[Option]any),
	}, nil
}

// udpSocket is one UDPEngine socket.
//
// Configuration methods run on a single goroutine before Connect. After
// Connect, Send is serialised by sendMu and may run concurrently with
// DrainInternal; ReceiveMessage owns the reassembler.
type udpSocket struct {
	logger zerolog.Logger
	family Family

	sendOnly   bool
	recvOnly   bool
	mtu        int
	hops       int
	loop       bool
	encapMcast uint16
	options    map[Option]any // every accepted option, last value wins

	bound      bool
	bind       BindRequest
	recvGroups []GroupRequest
	sendGroup  *GroupRequest

	connected bool
	conn      net.PacketConn
	dest      *net.UDPAddr
	payload   int // bytes of payload per datagram

	sendMu sync.Mutex
	msgID  atomic.Uint32
	closed atomic.Bool

	reasm *reassembler
}

func (s *udpSocket) SetOption(opt Option, value any) error {
	if s.closed.Load() {
		return errSocketClosed
	}
	if s.connected {
		return fmt.Errorf("%s: socket already connected", opt)
	}
	if err := ValidateOption(opt, value); err != nil {
		return err
	}

	switch opt {
	case OptSendOnly:
		on := value.(bool)
		if on && s.recvOnly {
			return fmt.Errorf("%s: socket is receive-only", opt)
		}
		s.sendOnly = on
	case OptRecvOnly:
		on := value.(bool)
		if on && s.sendOnly {
			return fmt.Errorf("%s: socket is send-only", opt)
		}
		s.recvOnly = on
	case OptMTU:
		s.mtu = value.(int)
	case OptMulticastHops:
		s.hops = value.(int)
	case OptMulticastLoop:
		s.loop = value.(bool)
	case OptUDPEncapMulticastPort:
		s.encapMcast = value.(uint16)
	case OptRouterAlert:
		if value.(bool) {
			return fmt.Errorf("%s: router alert requires raw encapsulation", opt)
		}
	case OptNoBlock:
		if value.(bool) {
			return fmt.Errorf("%s: non-blocking mode not supported", opt)
		}
	}
	s.options[opt] = value
	return nil
}

func (s *udpSocket) Bind(req BindRequest) error {
	if s.closed.Load() {
		return errSocketClosed
	}
	if s.bound {
		return fmt.Errorf("socket already bound")
	}
	if !s.sendOnly && !s.recvOnly {
		return fmt.Errorf("socket direction not set")
	}
	s.bind = req
	s.bound = true
	return nil
}

func (s *udpSocket) checkGroup(req GroupRequest) error {
	if s.closed.Load() {
		return errSocketClosed
	}
	if !s.bound {
		return fmt.Errorf("socket not bound")
	}
	if !req.Group.IsMulticast() {
		return fmt.Errorf("%s is not a multicast group", req.Group)
	}
	if (req.Group.To4() != nil) != (s.family == FamilyIPv4) {
		return fmt.Errorf("group %s does not match socket family %s", req.Group, s.family)
	}
	return nil
}

func (s *udpSocket) JoinGroup(req GroupRequest) error {
	if err := s.checkGroup(req); err != nil {
		return err
	}
	s.recvGroups = append(s.recvGroups, req)
	return nil
}

func (s *udpSocket) SendGroup(req GroupRequest) error {
	if err := s.checkGroup(req); err != nil {
		return err
	}
	s.sendGroup = &req
	return nil
}

func (s *udpSocket) network() string {
	if s.family == FamilyIPv6 {
		return "udp6"
	}
	return "udp4"
}

func (s *udpSocket) ipHeaderLen() int {
	if s.family == FamilyIPv6 {
		return ipv6HeaderLen
	}
	return ipv4HeaderLen
}

func (s *udpSocket) Connect() error {
	switch {
	case s.closed.Load():
		return errSocketClosed
	case s.connected:
		return fmt.Errorf("socket already connected")
	case !s.bound:
		return fmt.Errorf("socket not bound")
	case s.sendOnly && s.sendGroup == nil:
		return fmt.Errorf("no send group registered")
	case s.recvOnly && len(s.recvGroups) == 0:
		return fmt.Errorf("no receive group joined")
	}

	s.payload = s.mtu - s.ipHeaderLen() - HeaderLen
	if s.payload < 1 {
		return fmt.Errorf("MTU %d leaves no room for payload on %s", s.mtu, s.family)
	}

	// Receivers listen on the multicast encapsulation port; senders take an
	// ephemeral port, the unicast encapsulation port is only recorded.
	var port uint16
	if s.recvOnly {
		port = s.encapMcast
	}
	lc := net.ListenConfig{Control: listenControl}
	conn, err := lc.ListenPacket(context.Background(), s.network(), net.JoinHostPort("", strconv.Itoa(int(port))))
	if err != nil {
		return &errors.NetworkError{
			Operation: "create socket",
			Err:       err,
			Details:   fmt.Sprintf("failed to listen on %s port %d", s.network(), port),
		}
	}

	if err := s.configureMulticast(conn); err != nil {
		_ = conn.Close() // Ignore error, already returning primary error
		return err
	}

	if s.sendOnly {
		s.dest = &net.UDPAddr{IP: s.sendGroup.Group, Port: int(s.encapMcast)}
		if s.family == FamilyIPv6 && s.bind.Interface != nil {
			s.dest.Zone = s.bind.Interface.Name
		}
	}
	s.conn = conn
	s.reasm = newReassembler()
	s.connected = true

	s.logger.Debug().
		Str("family", s.family.String()).
		Bool("send_only", s.sendOnly).
		Str("local", conn.LocalAddr().String()).
		Int("payload", s.payload).
		Dict("options", s.optionsDict()).
		Msg("socket connected")
	return nil
}

// optionsDict renders every accepted option by name, in option order.
func (s *udpSocket) optionsDict() *zerolog.Event {
	opts := make([]Option, 0, len(s.options))
	for opt := range s.options {
		opts = append(opts, opt)
	}
	slices.Sort(opts)

	d := zerolog.Dict()
	for _, opt := range opts {
		switch v := s.options[opt].(type) {
		case time.Duration:
			d = d.Str(opt.String(), v.String())
		case []time.Duration:
			strs := make([]string, len(v))
			for i, dur := range v {
				strs[i] = dur.String()
			}
			d = d.Strs(opt.String(), strs)
		default:
			d = d.Interface(opt.String(), v)
		}
	}
	return d
}

func (s *udpSocket) configureMulticast(conn net.PacketConn) error {
	iface := s.bind.Interface

	if s.family == FamilyIPv6 {
		p := ipv6.NewPacketConn(conn)
		if err := p.SetMulticastHopLimit(s.hops); err != nil {
			return &errors.NetworkError{Operation: "set hop limit", Err: err}
		}
		if err := p.SetMulticastLoopback(s.loop); err != nil {
			return &errors.NetworkError{Operation: "set multicast loopback", Err: err}
		}
		if iface != nil {
			if err := p.SetMulticastInterface(iface); err != nil {
				return &errors.NetworkError{Operation: "set multicast interface", Err: err, Details: iface.Name}
			}
		}
		for _, g := range s.recvGroups {
			if err := p.JoinGroup(g.Interface, &net.UDPAddr{IP: g.Group}); err != nil {
				return &errors.NetworkError{Operation: "join group", Err: err, Details: g.Group.String()}
			}
		}
		return nil
	}

	p := ipv4.NewPacketConn(conn)
	if err := p.SetMulticastTTL(s.hops); err != nil {
		return &errors.NetworkError{Operation: "set multicast ttl", Err: err}
	}
	if err := p.SetMulticastLoopback(s.loop); err != nil {
		return &errors.NetworkError{Operation: "set multicast loopback", Err: err}
	}
	if iface != nil {
		if err := p.SetMulticastInterface(iface); err != nil {
			return &errors.NetworkError{Operation: "set multicast interface", Err: err, Details: iface.Name}
		}
	}
	for _, g := range s.recvGroups {
		if err := p.JoinGroup(g.Interface, &net.UDPAddr{IP: g.Group}); err != nil {
			return &errors.NetworkError{Operation: "join group", Err: err, Details: g.Group.String()}
		}
	}
	return nil
}

func (s *udpSocket) Send(ctx context.Context, p []byte) (IOStatus, error) {
	if s.closed.Load() {
		return StatusError, errSocketClosed
	}
	if !s.connected || !s.sendOnly {
		return StatusError, fmt.Errorf("socket not connected for sending")
	}

	select {
	case <-ctx.Done():
		return StatusError, &errors.NetworkError{
			Operation: "send",
			Err:       ctx.Err(),
			Details:   "context canceled before send",
		}
	default:
	}

	frags, err := fragment(p, s.payload)
	if err != nil {
		return StatusError, err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return StatusError, &errors.NetworkError{Operation: "set write deadline", Err: err}
	}

	h := header{
		Session: s.bind.Session,
		Port:    s.bind.Port,
		MsgID:   s.msgID.Add(1),
		Count:   uint16(len(frags)),
	}
	buf := make([]byte, HeaderLen+s.payload)
	for i, frag := range frags {
		h.Index = uint16(i)
		h.put(buf)
		n := copy(buf[HeaderLen:], frag)
		datagram := buf[:HeaderLen+n]

		written, err := s.conn.WriteTo(datagram, s.dest)
		if err != nil {
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				return StatusWouldBlock, err
			}
			return StatusError, &errors.NetworkError{
				Operation: "send",
				Err:       err,
				Details:   fmt.Sprintf("failed to send %d bytes to %s", len(datagram), s.dest),
			}
		}
		if written != len(datagram) {
			return StatusError, fmt.Errorf("partial write: %d/%d bytes", written, len(datagram))
		}
	}
	return StatusNormal, nil
}

// readOne reads a single datagram into buf, honouring ctx and an optional
// extra bound on the read deadline.
func (s *udpSocket) readOne(ctx context.Context, buf []byte, bound time.Duration) (int, error) {
	ctxDeadline, hasDeadline := ctx.Deadline()
	deadline := ctxDeadline
	if bound > 0 {
		if limit := time.Now().Add(bound); deadline.IsZero() || limit.Before(deadline) {
			deadline = limit
		}
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return 0, &errors.NetworkError{Operation: "set read deadline", Err: err}
	}

	// Wake a blocked read when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, _, err := s.conn.ReadFrom(buf)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		// The socket deadline can fire just before the context's timer.
		if hasDeadline && !time.Now().Before(ctxDeadline) {
			return 0, context.DeadlineExceeded
		}
	}
	return n, err
}

func (s *udpSocket) ReceiveMessage(ctx context.Context) (Message, error) {
	if s.closed.Load() {
		return Message{}, errSocketClosed
	}
	if !s.connected || !s.recvOnly {
		return Message{}, fmt.Errorf("socket not connected for receiving")
	}

	bufPtr := GetBuffer()
	defer PutBuffer(bufPtr)
	buf := *bufPtr

	for {
		n, err := s.readOne(ctx, buf, 0)
		if err != nil {
			if s.closed.Load() {
				return Message{}, errSocketClosed
			}
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				return Message{}, &errors.NetworkError{Operation: "receive", Err: err, Details: "timeout"}
			}
			return Message{}, err
		}

		h, payload, err := parseHeader(buf[:n])
		if err != nil {
			s.logger.Debug().Err(err).Msg("dropping datagram")
			continue
		}
		if h.Port != s.bind.Port {
			continue
		}
		if msg, ok := s.reasm.add(h, payload); ok {
			return msg, nil
		}
	}
}

func (s *udpSocket) DrainInternal(ctx context.Context) error {
	if s.closed.Load() {
		return errSocketClosed
	}
	if !s.connected {
		return fmt.Errorf("socket not connected")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !s.sendOnly {
		return nil
	}

	bufPtr := GetBuffer()
	defer PutBuffer(bufPtr)

	_, err := s.readOne(ctx, *bufPtr, DrainPoll)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.closed.Load() {
		return errSocketClosed
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		// Nothing arrived within the poll window.
		return nil
	}
	return &errors.NetworkError{Operation: "drain", Err: err}
}

func (s *udpSocket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return &errors.NetworkError{
			Operation: "close socket",
			Err:       err,
			Details:   "failed to close UDP connection",
		}
	}
	return nil
}
