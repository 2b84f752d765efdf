package configurator

import (
	"time"

	"github.com/joshuafuller/pgmflow/config"
	"github.com/joshuafuller/pgmflow/internal/descriptor"
	"github.com/joshuafuller/pgmflow/internal/transport"
)

// Direction selects which half of the transport a socket serves.
type Direction int

const (
	SendOnly Direction = iota + 1
	ReceiveOnly
)

func (d Direction) String() string {
	switch d {
	case SendOnly:
		return "send"
	case ReceiveOnly:
		return "receive"
	default:
		return "unknown"
	}
}

// OptionSetting is one SetOption call.
type OptionSetting struct {
	Option transport.Option
	Value  any
}

// Plan is everything Configure needs. Options are applied in slice order.
type Plan struct {
	Descriptor descriptor.Descriptor
	Direction  Direction
	Options    []OptionSetting
	Session    transport.SessionID
}

// SenderPlan derives the send-only plan from cfg.
//
// Option order: MTU, hops, loop, TXW_SQNS, AMBIENT_SPM, HEARTBEAT_SPM,
// NOBLOCK off, then both encapsulation ports.
func SenderPlan(cfg config.Sender) Plan {
	d := descriptorOf(cfg.Connection)
	opts := commonOptions(cfg.Tuning)
	opts = append(opts,
		OptionSetting{transport.OptTXWSqns, cfg.TXWSqns},
		OptionSetting{transport.OptAmbientSPM, cfg.SPMAmbient},
		OptionSetting{transport.OptHeartbeatSPM, HeartbeatSchedule(cfg.IHBMin, cfg.IHBMax)},
		OptionSetting{transport.OptNoBlock, false},
	)
	opts = append(opts, encapOptions(d.EncapPort)...)
	return Plan{Descriptor: d, Direction: SendOnly, Options: opts, Session: SessionID()}
}

// ReceiverPlan derives the receive-only plan from cfg.
//
// Option order: MTU, hops, loop, RXW_SQNS, PEER_EXPIRY, SPMR_EXPIRY, the
// three NAK intervals, NAK_DATA_RETRIES, NAK_NCF_RETRIES, PASSIVE off, then
// both encapsulation ports.
func ReceiverPlan(cfg config.Receiver) Plan {
	d := descriptorOf(cfg.Connection)
	opts := commonOptions(cfg.Tuning)
	opts = append(opts,
		OptionSetting{transport.OptRXWSqns, cfg.RXWSqns},
		OptionSetting{transport.OptPeerExpiry, cfg.PeerExpiry},
		OptionSetting{transport.OptSPMRExpiry, cfg.SPMRExpiry},
		OptionSetting{transport.OptNAKBackoffInterval, cfg.NAKBackoff},
		OptionSetting{transport.OptNAKRepeatInterval, cfg.NAKRepeat},
		OptionSetting{transport.OptNAKRDataInterval, cfg.NAKRData},
		OptionSetting{transport.OptNAKDataRetries, cfg.NAKDataRetries},
		OptionSetting{transport.OptNAKNCFRetries, cfg.NAKNCFRetries},
		OptionSetting{transport.OptPassive, false},
	)
	opts = append(opts, encapOptions(d.EncapPort)...)
	return Plan{Descriptor: d, Direction: ReceiveOnly, Options: opts, Session: SessionID()}
}

func descriptorOf(c config.Connection) descriptor.Descriptor {
	return descriptor.Descriptor{Network: c.Network, Port: c.Port, EncapPort: c.EncapPort}
}

func commonOptions(t config.Tuning) []OptionSetting {
	return []OptionSetting{
		{transport.OptMTU, t.MaxTPDU},
		{transport.OptMulticastHops, t.Hops},
		{transport.OptMulticastLoop, t.MulticastLoop},
	}
}

// encapOptions sets the unicast and multicast encapsulation ports to the
// same value.
func encapOptions(port uint16) []OptionSetting {
	return []OptionSetting{
		{transport.OptUDPEncapUnicastPort, port},
		{transport.OptUDPEncapMulticastPort, port},
	}
}

// HeartbeatSchedule returns the ambient heartbeat intervals: lo doubled
// while below hi. When lo >= hi the schedule is just [lo]. The result is
// never empty.
func HeartbeatSchedule(lo, hi time.Duration) []time.Duration {
	if lo <= 0 || lo >= hi {
		return []time.Duration{lo}
	}
	out := []time.Duration{lo}
	// 2d < hi without overflowing.
	for d := lo; d <= (hi-1)/2; {
		d *= 2
		out = append(out, d)
	}
	return out
}
