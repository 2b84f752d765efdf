package descriptor

import (
	stderrors "errors"
	"testing"

	"github.com/joshuafuller/pgmflow/internal/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want Descriptor
	}{
		{
			name: "network only takes both default ports",
			uri:  "pgm://net",
			want: Descriptor{Network: "net", Port: DefaultPort, EncapPort: DefaultEncapPort},
		},
		{
			name: "all three fields",
			uri:  "pgm://net:9000:9001",
			want: Descriptor{Network: "net", Port: 9000, EncapPort: 9001},
		},
		{
			name: "data port only",
			uri:  "pgm://net:9000",
			want: Descriptor{Network: "net", Port: 9000, EncapPort: DefaultEncapPort},
		},
		{
			name: "empty data port field takes default",
			uri:  "pgm://net::9001",
			want: Descriptor{Network: "net", Port: DefaultPort, EncapPort: 9001},
		},
		{
			name: "rendezvous sub-tokens pass through",
			uri:  "pgm://eth0;239.192.0.1,239.192.0.2;239.192.0.3:7500:3056",
			want: Descriptor{Network: "eth0;239.192.0.1,239.192.0.2;239.192.0.3", Port: 7500, EncapPort: 3056},
		},
		{
			name: "bracketed ipv6 group keeps its colons",
			uri:  "pgm://eth0;[ff08::1]:7500:8080",
			want: Descriptor{Network: "eth0;[ff08::1]", Port: 7500, EncapPort: 8080},
		},
		{
			name: "zero ports are valid",
			uri:  "pgm://net:0:0",
			want: Descriptor{Network: "net"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.uri)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v, want nil", tt.uri, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.uri, got, tt.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		uri    string
		reason errors.URIReason
	}{
		{"wrong scheme", "udp://net:1:2", errors.ReasonWrongScheme},
		{"scheme is case sensitive", "PGM://net", errors.ReasonWrongScheme},
		{"scheme prefix only", "pgmx://net", errors.ReasonWrongScheme},
		{"no scheme", "net:1:2", errors.ReasonMissingScheme},
		{"empty network", "pgm://", errors.ReasonEmptyNetwork},
		{"empty network with ports", "pgm://:1:2", errors.ReasonEmptyNetwork},
		{"port not numeric", "pgm://net:http", errors.ReasonInvalidPort},
		{"port out of range", "pgm://net:65536", errors.ReasonInvalidPort},
		{"negative encap port", "pgm://net:1:-2", errors.ReasonInvalidPort},
		{"too many fields", "pgm://net:1:2:3", errors.ReasonTooManyFields},
		{"unclosed bracket", "pgm://eth0;[ff08::1:9000:9001", errors.ReasonUnbalancedBrackets},
		{"stray closing bracket", "pgm://eth0;ff08]:1:2", errors.ReasonUnbalancedBrackets},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.uri)
			var uriErr *errors.InvalidURIError
			if !stderrors.As(err, &uriErr) {
				t.Fatalf("Parse(%q) error = %v, want *InvalidURIError", tt.uri, err)
			}
			if uriErr.Reason != tt.reason {
				t.Errorf("Parse(%q) reason = %s, want %s", tt.uri, uriErr.Reason, tt.reason)
			}
		})
	}
}

func TestParse_WrongSchemeCarriesDiagnostics(t *testing.T) {
	_, err := Parse("udp://net")
	var uriErr *errors.InvalidURIError
	if !stderrors.As(err, &uriErr) {
		t.Fatalf("Parse() error = %v, want *InvalidURIError", err)
	}
	if uriErr.Scheme != "udp" || uriErr.Expected != Scheme {
		t.Errorf("scheme = %q expected = %q, want %q and %q", uriErr.Scheme, uriErr.Expected, "udp", Scheme)
	}
}

func TestString_AlwaysThreeFields(t *testing.T) {
	d, err := Parse("pgm://net")
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}
	if got, want := d.String(), "pgm://net:7500:8080"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	networks := []string{
		"net",
		DefaultNetwork,
		"eth0;239.192.0.1",
		"10.0.0.1;239.192.0.1,239.192.0.2;239.192.0.9",
		";[ff08::1];[ff08::2]",
		"lo",
	}
	ports := []uint16{0, 1, 80, DefaultPort, DefaultEncapPort, 65535}

	for _, network := range networks {
		for _, port := range ports {
			for _, encap := range ports {
				d := Descriptor{Network: network, Port: port, EncapPort: encap}
				if err := d.Validate(); err != nil {
					t.Fatalf("Validate(%+v) error = %v, want nil", d, err)
				}
				got, err := Parse(d.String())
				if err != nil {
					t.Fatalf("Parse(%q) error = %v, want nil", d.String(), err)
				}
				if got != d {
					t.Errorf("Parse(String(%+v)) = %+v", d, got)
				}
			}
		}
	}
}

func TestValidate_RejectsBareColon(t *testing.T) {
	d := Descriptor{Network: "eth0;ff08::1"}
	if err := d.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for unbracketed colon")
	}
	if err := (Descriptor{}).Validate(); err == nil {
		t.Error("Validate() error = nil, want error for empty network")
	}
}

func TestValidate_RejectsUnbalancedBrackets(t *testing.T) {
	for _, network := range []string{"eth0;[ff08::1", "eth0;[ff08::1];[ff08::2", "eth0;ff08]", "]["} {
		d := Descriptor{Network: network, Port: 9000, EncapPort: 9001}
		err := d.Validate()
		var verr *errors.ValidationError
		if !stderrors.As(err, &verr) {
			t.Fatalf("Validate(%q) error = %v, want *ValidationError", network, err)
		}
		// Whatever Validate rejects must not parse back to a different
		// descriptor either.
		if got, err := Parse(d.String()); err == nil {
			t.Errorf("Parse(%q) = %+v, want error", d.String(), got)
		}
	}
}
