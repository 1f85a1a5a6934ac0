package driver

import (
	"fmt"
	"net/netip"
)

// Address is a tagged IPv4/IPv6 endpoint value. Operations that differ by
// family switch on the tag rather than dispatching through an interface.
type Address struct {
	addr netip.Addr
	port uint16
}

// ParseAddress parses "host:port" with either address family.
func ParseAddress(s string) (Address, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	return Address{addr: ap.Addr().Unmap(), port: ap.Port()}, nil
}

// Family returns 4 or 6.
func (a Address) Family() int {
	if a.addr.Is4() {
		return 4
	}
	return 6
}

// Port returns the transport port.
func (a Address) Port() uint16 { return a.port }

// IsMulticast reports whether the address is in a multicast range.
func (a Address) IsMulticast() bool { return a.addr.IsMulticast() }

// Bytes returns the raw address bytes, 4 or 16 long by family.
func (a Address) Bytes() []byte {
	b := a.addr.AsSlice()
	return b
}

// NextAddress returns the address numerically one higher, as used for
// multicast control/data pairs.
func (a Address) NextAddress() Address {
	return Address{addr: a.addr.Next(), port: a.port}
}

// MatchesPrefix reports whether other shares the first prefixLen bits.
func (a Address) MatchesPrefix(other Address, prefixLen int) bool {
	if a.Family() != other.Family() {
		return false
	}
	prefix, err := a.addr.Prefix(prefixLen)
	if err != nil {
		return false
	}
	return prefix.Contains(other.addr)
}

// String renders the address as "host:port".
func (a Address) String() string {
	return netip.AddrPortFrom(a.addr, a.port).String()
}
