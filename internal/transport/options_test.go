package transport

import (
	"testing"
	"time"
)

func TestValidateOption(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		value   any
		wantErr bool
	}{
		{"mtu floor", OptMTU, HeaderOverhead, false},
		{"mtu below floor", OptMTU, HeaderOverhead - 1, true},
		{"mtu ceiling", OptMTU, 65535, false},
		{"mtu above ceiling", OptMTU, 65536, true},
		{"hops min", OptMulticastHops, 1, false},
		{"hops zero", OptMulticastHops, 0, true},
		{"hops max", OptMulticastHops, 255, false},
		{"hops above max", OptMulticastHops, 256, true},
		{"txw min", OptTXWSqns, 1, false},
		{"txw zero", OptTXWSqns, 0, true},
		{"rxw above max", OptRXWSqns, 65536, true},
		{"retries zero allowed", OptNAKDataRetries, 0, false},
		{"retries negative", OptNAKNCFRetries, -1, true},
		{"duration positive", OptPeerExpiry, 300 * time.Second, false},
		{"duration zero", OptSPMRExpiry, time.Duration(0), true},
		{"heartbeat schedule", OptHeartbeatSPM, []time.Duration{time.Millisecond}, false},
		{"empty heartbeat schedule", OptHeartbeatSPM, []time.Duration{}, true},
		{"non-positive heartbeat", OptHeartbeatSPM, []time.Duration{time.Second, 0}, true},
		{"bool flag", OptSendOnly, true, false},
		{"port", OptUDPEncapMulticastPort, uint16(8080), false},
		{"wrong type for port", OptUDPEncapUnicastPort, 8080, true},
		{"wrong type for int", OptMTU, uint16(1500), true},
		{"wrong type for bool", OptMulticastLoop, 1, true},
		{"unknown option", Option(999), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOption(tt.opt, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOption(%s, %v) error = %v, wantErr %v", tt.opt, tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestOption_String(t *testing.T) {
	if got := OptTXWSqns.String(); got != "TXW_SQNS" {
		t.Errorf("String() = %q, want %q", got, "TXW_SQNS")
	}
	if got := Option(999).String(); got != "OPTION(999)" {
		t.Errorf("String() = %q, want %q", got, "OPTION(999)")
	}
}
