// Package ipv4 implements the IPv4Prefix wire representation used by
// BGP UPDATE messages (withdrawn routes and NLRI) and the longest
// prefix match trie in package rib.
package ipv4

import (
	"fmt"
	"net"

	"github.com/taktv6/tflow2/convert"
)

// Prefix represents an IPv4 prefix as a 32-bit address plus a prefix
// length; only the most significant Pfxlen bits are meaningful.
type Prefix struct {
	addr   uint32
	pfxlen uint8
}

// New creates a new Prefix from a host-order address and length.
func New(addr uint32, pfxlen uint8) *Prefix {
	return &Prefix{
		addr:   addr,
		pfxlen: pfxlen,
	}
}

// FromWireBytes decodes an IPv4Prefix as laid out on the wire: a
// length byte L followed by ceil(L/8) most-significant bytes of the
// address, with the remaining low bytes implicitly zero.
func FromWireBytes(pfxlen uint8, value []byte) (*Prefix, error) {
	if pfxlen > 32 {
		return nil, fmt.Errorf("invalid prefix length %d", pfxlen)
	}

	n := WireLen(pfxlen)
	if len(value) < n {
		return nil, fmt.Errorf("short prefix value: need %d bytes, got %d", n, len(value))
	}

	var addr [4]byte
	copy(addr[:n], value[:n])

	return &Prefix{
		addr:   convert.Uint32b(addr[:]),
		pfxlen: pfxlen,
	}, nil
}

// WireLen returns ceil(pfxlen/8), the number of address bytes an
// IPv4Prefix of the given length occupies on the wire.
func WireLen(pfxlen uint8) int {
	return int((pfxlen + 7) / 8)
}

// WireBytes renders pfx as the ceil(pfxlen/8) most-significant bytes
// of its address, suitable for appending after the prefix-length byte.
func (pfx *Prefix) WireBytes() []byte {
	b := convert.Uint32Byte(pfx.addr)
	return b[:WireLen(pfx.pfxlen)]
}

// Addr returns the address of the prefix in host byte order.
func (pfx *Prefix) Addr() uint32 {
	return pfx.addr
}

// Pfxlen returns the length of the prefix.
func (pfx *Prefix) Pfxlen() uint8 {
	return pfx.pfxlen
}

// String returns a string representation of pfx, e.g. "10.0.0.0/8".
func (pfx *Prefix) String() string {
	return fmt.Sprintf("%s/%d", net.IP(convert.Uint32Byte(pfx.addr)), pfx.pfxlen)
}

// Contains checks if x is a strict subnet of pfx.
func (pfx *Prefix) Contains(x *Prefix) bool {
	if x.pfxlen <= pfx.pfxlen {
		return false
	}

	mask := ^uint32(0) << (32 - pfx.pfxlen)
	return (pfx.addr & mask) == (x.addr & mask)
}

// Equal checks if pfx and x are equal.
func (pfx *Prefix) Equal(x *Prefix) bool {
	if x == nil {
		return false
	}
	return *pfx == *x
}

// GetSupernet gets the next common supernet of pfx and x.
func (pfx *Prefix) GetSupernet(x *Prefix) *Prefix {
	maxPfxLen := min(pfx.pfxlen, x.pfxlen) - 1
	a := pfx.addr >> (32 - maxPfxLen)
	b := x.addr >> (32 - maxPfxLen)

	for a != b {
		a = a >> 1
		b = b >> 1
		maxPfxLen--
	}

	return &Prefix{
		addr:   a << (32 - maxPfxLen),
		pfxlen: maxPfxLen,
	}
}

func min(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}
