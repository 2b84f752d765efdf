// Package network resolves the network field of a connection descriptor to
// an interface and a set of multicast groups.
//
// A network spec has the form
//
//	interface;receive-groups;send-group
//
// where every part may be empty:
//   - interface: empty for the system default, an interface name ("eth0"), or
//     an address assigned to a local interface ("192.168.1.10")
//   - receive-groups: comma separated multicast addresses, IPv6 optionally in
//     brackets; empty selects DefaultGroup
//   - send-group: one multicast address; empty selects the first receive group
//
// All groups must be multicast and share one address family.
package network

import (
	"fmt"
	"net"
	"strings"

	"github.com/joshuafuller/pgmflow/internal/errors"
	"github.com/joshuafuller/pgmflow/internal/transport"
)

// DefaultGroup is the receive group used when a spec names none. It lies in
// the IPv4 organisation-local scope (RFC 2365).
var DefaultGroup = net.IPv4(239, 192, 0, 1)

// Route is the result of resolving a network spec.
type Route struct {
	Interface     *net.Interface // nil for the system default
	Family        transport.Family
	ReceiveGroups []net.IP
	SendGroup     net.IP
	ScopeID       uint32 // interface index for IPv6 routes on a named interface
}

func (r *Route) String() string {
	iface := "default"
	if r.Interface != nil {
		iface = r.Interface.Name
	}
	groups := make([]string, len(r.ReceiveGroups))
	for i, g := range r.ReceiveGroups {
		groups[i] = g.String()
	}
	return fmt.Sprintf("%s %s recv=[%s] send=%s", r.Family, iface, strings.Join(groups, ","), r.SendGroup)
}

// lookups are replaced in tests.
var (
	interfaceByName = net.InterfaceByName
	listInterfaces  = net.Interfaces
)

// Resolve parses spec and looks up its interface.
func Resolve(spec string) (*Route, error) {
	parts := strings.Split(spec, ";")
	if len(parts) > 3 {
		return nil, &errors.ValidationError{
			Field:   "network",
			Value:   spec,
			Message: fmt.Sprintf("expected at most 3 ';'-separated parts, got %d", len(parts)),
		}
	}
	for len(parts) < 3 {
		parts = append(parts, "")
	}

	route := &Route{}

	recv, err := parseGroups(parts[1])
	if err != nil {
		return nil, err
	}
	if len(recv) == 0 {
		recv = []net.IP{append(net.IP(nil), DefaultGroup.To4()...)}
	}
	route.ReceiveGroups = recv

	if s := strings.TrimSpace(parts[2]); s != "" {
		send, err := parseGroup(s)
		if err != nil {
			return nil, err
		}
		route.SendGroup = send
	} else {
		route.SendGroup = recv[0]
	}

	route.Family = familyOf(route.SendGroup)
	for _, g := range route.ReceiveGroups {
		if familyOf(g) != route.Family {
			return nil, &errors.ValidationError{
				Field:   "network",
				Value:   spec,
				Message: fmt.Sprintf("group %s is not %s like %s", g, route.Family, route.SendGroup),
			}
		}
	}

	iface, err := resolveInterface(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, err
	}
	route.Interface = iface
	if iface != nil && route.Family == transport.FamilyIPv6 {
		route.ScopeID = uint32(iface.Index)
	}
	return route, nil
}

func parseGroups(s string) ([]net.IP, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var groups []net.IP
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		g, err := parseGroup(field)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func parseGroup(s string) (net.IP, error) {
	literal := strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	ip := net.ParseIP(literal)
	if ip == nil {
		return nil, &errors.ValidationError{Field: "group", Value: s, Message: "not an IP address"}
	}
	if !ip.IsMulticast() {
		return nil, &errors.ValidationError{Field: "group", Value: s, Message: "not a multicast address"}
	}
	if v4 := ip.To4(); v4 != nil {
		return v4, nil
	}
	return ip, nil
}

func familyOf(ip net.IP) transport.Family {
	if ip.To4() != nil {
		return transport.FamilyIPv4
	}
	return transport.FamilyIPv6
}

// resolveInterface maps a name or a local address to an interface. An empty
// string selects the system default (nil).
func resolveInterface(s string) (*net.Interface, error) {
	if s == "" {
		return nil, nil
	}

	literal := strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if ip := net.ParseIP(literal); ip != nil {
		return interfaceByAddr(ip)
	}

	iface, err := interfaceByName(s)
	if err != nil {
		return nil, &errors.NetworkError{
			Operation: "lookup interface",
			Err:       err,
			Details:   fmt.Sprintf("interface %q not found", s),
		}
	}
	return iface, nil
}

func interfaceByAddr(ip net.IP) (*net.Interface, error) {
	ifaces, err := listInterfaces()
	if err != nil {
		return nil, &errors.NetworkError{Operation: "list interfaces", Err: err}
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, &errors.ValidationError{
		Field:   "interface",
		Value:   ip.String(),
		Message: "address is not assigned to any local interface",
	}
}
