package transport

import (
	"fmt"
	"math"
	"time"
)

// Option names an engine socket option.
type Option int

// Socket options.
const (
	OptRouterAlert Option = iota + 1
	OptSendOnly
	OptRecvOnly
	OptMTU
	OptMulticastHops
	OptMulticastLoop
	OptTXWSqns
	OptRXWSqns
	OptAmbientSPM
	OptHeartbeatSPM
	OptPeerExpiry
	OptSPMRExpiry
	OptNAKBackoffInterval
	OptNAKRepeatInterval
	OptNAKRDataInterval
	OptNAKDataRetries
	OptNAKNCFRetries
	OptUDPEncapUnicastPort
	OptUDPEncapMulticastPort
	OptNoBlock
	OptPassive
)

// HeaderOverhead is the smallest valid MTU: an IPv4 header plus the fixed
// engine header.
const HeaderOverhead = ipv4HeaderLen + HeaderLen

// Valid option ranges.
const (
	MaxMTU     = math.MaxUint16
	MinHops    = 1
	MaxHops    = math.MaxUint8
	MinSqns    = 1
	MaxSqns    = math.MaxUint16
	MaxRetries = math.MaxUint8
)

type optionKind int

const (
	kindBool optionKind = iota
	kindInt
	kindDuration
	kindDurations
	kindPort
)

type optionSpec struct {
	name     string
	kind     optionKind
	min, max int
}

var optionTable = map[Option]optionSpec{
	OptRouterAlert:           {name: "ROUTER_ALERT", kind: kindBool},
	OptSendOnly:              {name: "SEND_ONLY", kind: kindBool},
	OptRecvOnly:              {name: "RECV_ONLY", kind: kindBool},
	OptMTU:                   {name: "MTU", kind: kindInt, min: HeaderOverhead, max: MaxMTU},
	OptMulticastHops:         {name: "MULTICAST_HOPS", kind: kindInt, min: MinHops, max: MaxHops},
	OptMulticastLoop:         {name: "MULTICAST_LOOP", kind: kindBool},
	OptTXWSqns:               {name: "TXW_SQNS", kind: kindInt, min: MinSqns, max: MaxSqns},
	OptRXWSqns:               {name: "RXW_SQNS", kind: kindInt, min: MinSqns, max: MaxSqns},
	OptAmbientSPM:            {name: "AMBIENT_SPM", kind: kindDuration},
	OptHeartbeatSPM:          {name: "HEARTBEAT_SPM", kind: kindDurations},
	OptPeerExpiry:            {name: "PEER_EXPIRY", kind: kindDuration},
	OptSPMRExpiry:            {name: "SPMR_EXPIRY", kind: kindDuration},
	OptNAKBackoffInterval:    {name: "NAK_BO_IVL", kind: kindDuration},
	OptNAKRepeatInterval:     {name: "NAK_RPT_IVL", kind: kindDuration},
	OptNAKRDataInterval:      {name: "NAK_RDATA_IVL", kind: kindDuration},
	OptNAKDataRetries:        {name: "NAK_DATA_RETRIES", kind: kindInt, min: 0, max: MaxRetries},
	OptNAKNCFRetries:         {name: "NAK_NCF_RETRIES", kind: kindInt, min: 0, max: MaxRetries},
	OptUDPEncapUnicastPort:   {name: "UDP_ENCAP_UCAST_PORT", kind: kindPort},
	OptUDPEncapMulticastPort: {name: "UDP_ENCAP_MCAST_PORT", kind: kindPort},
	OptNoBlock:               {name: "NOBLOCK", kind: kindBool},
	OptPassive:               {name: "PASSIVE", kind: kindBool},
}

func (o Option) String() string {
	if spec, ok := optionTable[o]; ok {
		return spec.name
	}
	return fmt.Sprintf("OPTION(%d)", int(o))
}

// ValidateOption checks value against the type and range the engine defines
// for opt. Engines call it from SetOption.
func ValidateOption(opt Option, value any) error {
	spec, ok := optionTable[opt]
	if !ok {
		return fmt.Errorf("unknown option %d", int(opt))
	}

	switch spec.kind {
	case kindBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected bool, got %T", spec.name, value)
		}
	case kindInt:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("%s: expected int, got %T", spec.name, value)
		}
		if v < spec.min || v > spec.max {
			return fmt.Errorf("%s: value %d out of range [%d, %d]", spec.name, v, spec.min, spec.max)
		}
	case kindDuration:
		v, ok := value.(time.Duration)
		if !ok {
			return fmt.Errorf("%s: expected duration, got %T", spec.name, value)
		}
		if v <= 0 {
			return fmt.Errorf("%s: interval %v must be positive", spec.name, v)
		}
	case kindDurations:
		v, ok := value.([]time.Duration)
		if !ok {
			return fmt.Errorf("%s: expected []duration, got %T", spec.name, value)
		}
		if len(v) == 0 {
			return fmt.Errorf("%s: schedule must not be empty", spec.name)
		}
		for i, d := range v {
			if d <= 0 {
				return fmt.Errorf("%s: interval %d (%v) must be positive", spec.name, i, d)
			}
		}
	case kindPort:
		if _, ok := value.(uint16); !ok {
			return fmt.Errorf("%s: expected uint16 port, got %T", spec.name, value)
		}
	}
	return nil
}
