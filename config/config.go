// Package config holds the configuration of the sender and receiver
// endpoints.
//
// A configuration names where the endpoint attaches (network, data port and
// encapsulation port, also expressible as a single pgm:// URI) and the
// transport tuning knobs. Defaults follow the reference GStreamer elements.
//
// Tuning ranges are not checked here: the transport engine enforces them when
// the endpoint starts and rejects, never clamps, out of range values.
package config

import (
	"time"

	"github.com/joshuafuller/pgmflow/internal/descriptor"
)

// Default tuning values.
const (
	DefaultMaxTPDU        = 1500
	DefaultHops           = 16
	DefaultWindowSqns     = 64
	DefaultSPMAmbient     = 30 * time.Second
	DefaultIHBMin         = 100 * time.Millisecond
	DefaultIHBMax         = 30 * time.Second
	DefaultPeerExpiry     = 300 * time.Second
	DefaultSPMRExpiry     = 250 * time.Millisecond
	DefaultNAKBackoff     = 50 * time.Millisecond
	DefaultNAKRepeat      = 2 * time.Second
	DefaultNAKRData       = 2 * time.Second
	DefaultNAKDataRetries = 5
	DefaultNAKNCFRetries  = 2
)

// Connection is where an endpoint attaches.
type Connection struct {
	Network   string `toml:"network"`
	Port      uint16 `toml:"port"`
	EncapPort uint16 `toml:"encap_port"`
}

// DefaultConnection returns the default multicast group on the default ports.
func DefaultConnection() Connection {
	return fromDescriptor(descriptor.Default())
}

func fromDescriptor(d descriptor.Descriptor) Connection {
	return Connection{Network: d.Network, Port: d.Port, EncapPort: d.EncapPort}
}

func (c Connection) descriptor() descriptor.Descriptor {
	return descriptor.Descriptor{Network: c.Network, Port: c.Port, EncapPort: c.EncapPort}
}

// URI returns the connection as pgm://network:port:encap.
func (c Connection) URI() string {
	return c.descriptor().String()
}

// SetURI replaces the connection with the one uri describes. On error c is
// left unchanged and the error is an *errors.InvalidURIError.
func (c *Connection) SetURI(uri string) error {
	d, err := descriptor.Parse(uri)
	if err != nil {
		return err
	}
	*c = fromDescriptor(d)
	return nil
}

// Validate checks that the connection can be written as a URI and read
// back unchanged.
func (c Connection) Validate() error {
	return c.descriptor().Validate()
}

// Tuning holds the knobs both directions share.
type Tuning struct {
	MaxTPDU       int  `toml:"max_tpdu"`
	Hops          int  `toml:"hops"`
	MulticastLoop bool `toml:"multicast_loop"`
}

// SenderTuning holds the send-side knobs.
type SenderTuning struct {
	Tuning
	TXWSqns    int           `toml:"txw_sqns"`
	SPMAmbient time.Duration `toml:"spm_ambient"`
	IHBMin     time.Duration `toml:"ihb_min"`
	IHBMax     time.Duration `toml:"ihb_max"`
}

// ReceiverTuning holds the receive-side knobs.
type ReceiverTuning struct {
	Tuning
	RXWSqns        int           `toml:"rxw_sqns"`
	PeerExpiry     time.Duration `toml:"peer_expiry"`
	SPMRExpiry     time.Duration `toml:"spmr_expiry"`
	NAKBackoff     time.Duration `toml:"nak_bo_ivl"`
	NAKRepeat      time.Duration `toml:"nak_rpt_ivl"`
	NAKRData       time.Duration `toml:"nak_rdata_ivl"`
	NAKDataRetries int           `toml:"nak_data_retries"`
	NAKNCFRetries  int           `toml:"nak_ncf_retries"`
}

func defaultTuning() Tuning {
	return Tuning{MaxTPDU: DefaultMaxTPDU, Hops: DefaultHops}
}

// Sender configures a sender endpoint.
type Sender struct {
	Connection
	SenderTuning
}

// DefaultSender returns the sender defaults.
func DefaultSender() Sender {
	return Sender{
		Connection: DefaultConnection(),
		SenderTuning: SenderTuning{
			Tuning:     defaultTuning(),
			TXWSqns:    DefaultWindowSqns,
			SPMAmbient: DefaultSPMAmbient,
			IHBMin:     DefaultIHBMin,
			IHBMax:     DefaultIHBMax,
		},
	}
}

// Validate checks the structural settings of s.
func (s Sender) Validate() error {
	return s.Connection.Validate()
}

// Receiver configures a receiver endpoint.
type Receiver struct {
	Connection
	ReceiverTuning

	// ContentType is the media type of the frames the receiver produces.
	// Empty means unspecified.
	ContentType string `toml:"content_type"`
}

// DefaultReceiver returns the receiver defaults.
func DefaultReceiver() Receiver {
	return Receiver{
		Connection: DefaultConnection(),
		ReceiverTuning: ReceiverTuning{
			Tuning:         defaultTuning(),
			RXWSqns:        DefaultWindowSqns,
			PeerExpiry:     DefaultPeerExpiry,
			SPMRExpiry:     DefaultSPMRExpiry,
			NAKBackoff:     DefaultNAKBackoff,
			NAKRepeat:      DefaultNAKRepeat,
			NAKRData:       DefaultNAKRData,
			NAKDataRetries: DefaultNAKDataRetries,
			NAKNCFRetries:  DefaultNAKNCFRetries,
		},
	}
}

// Validate checks the structural settings of r.
func (r Receiver) Validate() error {
	if err := r.Connection.Validate(); err != nil {
		return err
	}
	return ValidateContentType(r.ContentType)
}
