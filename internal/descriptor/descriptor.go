// Package descriptor converts between connection URIs and their structured
// form.
//
// URI form:
//
//	pgm://network[:port[:encap-port]]
//
// network is a rendezvous expression "interface;receive-groups;send-group"
// and is passed through verbatim. IPv6 literals inside network must be
// bracketed so their colons are not taken as field separators, e.g.
//
//	pgm://eth0;[ff08::1]:7500:8080
//
// Both port fields are decimal and fall back to DefaultPort and
// DefaultEncapPort when omitted. The package is pure: no I/O, no shared state.
package descriptor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joshuafuller/pgmflow/internal/errors"
)

// Scheme is the only URI scheme accepted by Parse.
const Scheme = "pgm"

const schemeSeparator = "://"

// Defaults applied to omitted URI fields.
const (
	DefaultNetwork   = ";239.192.0.1"
	DefaultPort      = 7500
	DefaultEncapPort = 8080
)

// Descriptor is the parsed form of a connection URI.
type Descriptor struct {
	Network   string // rendezvous expression, opaque here
	Port      uint16 // data-destination port
	EncapPort uint16 // UDP encapsulation port
}

// Default returns the descriptor for the default URI.
func Default() Descriptor {
	return Descriptor{Network: DefaultNetwork, Port: DefaultPort, EncapPort: DefaultEncapPort}
}

// String serializes the descriptor. All three fields are always emitted.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s%s%s:%d:%d", Scheme, schemeSeparator, d.Network, d.Port, d.EncapPort)
}

// Validate reports whether d survives a String/Parse round trip: the network
// must be non-empty, its square brackets must pair up and it must not contain
// a colon outside them.
func (d Descriptor) Validate() error {
	if d.Network == "" {
		return &errors.ValidationError{Field: "network", Value: d.Network, Message: "must not be empty"}
	}
	fields, balanced := splitFields(d.Network)
	if !balanced {
		return &errors.ValidationError{
			Field:   "network",
			Value:   d.Network,
			Message: "unbalanced square brackets",
		}
	}
	if len(fields) != 1 {
		return &errors.ValidationError{
			Field:   "network",
			Value:   d.Network,
			Message: "colons are only allowed inside [brackets]",
		}
	}
	return nil
}

// Parse decodes uri into a Descriptor.
//
// Returns *errors.InvalidURIError when the scheme is missing or differs from
// Scheme, when the square brackets do not pair up, when the network field is
// empty, when a port is not a decimal uint16, or when more than three fields
// are present.
func Parse(uri string) (Descriptor, error) {
	idx := strings.Index(uri, schemeSeparator)
	if idx < 0 {
		return Descriptor{}, &errors.InvalidURIError{
			Reason:   errors.ReasonMissingScheme,
			URI:      uri,
			Expected: Scheme,
		}
	}
	if scheme := uri[:idx]; scheme != Scheme {
		return Descriptor{}, &errors.InvalidURIError{
			Reason:   errors.ReasonWrongScheme,
			URI:      uri,
			Scheme:   scheme,
			Expected: Scheme,
		}
	}

	fields, balanced := splitFields(uri[idx+len(schemeSeparator):])
	if !balanced {
		return Descriptor{}, &errors.InvalidURIError{Reason: errors.ReasonUnbalancedBrackets, URI: uri}
	}
	if len(fields) > 3 {
		return Descriptor{}, &errors.InvalidURIError{
			Reason: errors.ReasonTooManyFields,
			URI:    uri,
			Detail: fmt.Sprintf("%d fields, at most 3 allowed", len(fields)),
		}
	}
	if fields[0] == "" {
		return Descriptor{}, &errors.InvalidURIError{Reason: errors.ReasonEmptyNetwork, URI: uri}
	}

	d := Descriptor{Network: fields[0], Port: DefaultPort, EncapPort: DefaultEncapPort}
	if len(fields) > 1 && fields[1] != "" {
		port, err := parsePort(uri, fields[1])
		if err != nil {
			return Descriptor{}, err
		}
		d.Port = port
	}
	if len(fields) > 2 && fields[2] != "" {
		port, err := parsePort(uri, fields[2])
		if err != nil {
			return Descriptor{}, err
		}
		d.EncapPort = port
	}
	return d, nil
}

// splitFields splits location on ':' outside of square brackets. It always
// returns at least one field. balanced is false when a ']' has no opening
// '[' or a '[' is never closed.
func splitFields(location string) (fields []string, balanced bool) {
	depth := 0
	start := 0
	balanced = true
	for i := 0; i < len(location); i++ {
		switch location[i] {
		case '[':
			depth++
		case ']':
			if depth == 0 {
				balanced = false
			} else {
				depth--
			}
		case ':':
			if depth == 0 {
				fields = append(fields, location[start:i])
				start = i + 1
			}
		}
	}
	return append(fields, location[start:]), balanced && depth == 0
}

func parsePort(uri, field string) (uint16, error) {
	v, err := strconv.ParseUint(field, 10, 16)
	if err != nil {
		return 0, &errors.InvalidURIError{
			Reason: errors.ReasonInvalidPort,
			URI:    uri,
			Detail: fmt.Sprintf("%q is not a port number", field),
		}
	}
	return uint16(v), nil
}
