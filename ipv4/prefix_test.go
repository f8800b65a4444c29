package ipv4

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromWireBytesRoundTrip(t *testing.T) {
	pfx, err := FromWireBytes(24, []byte{10, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, "10.0.1.0/24", pfx.String())
	assert.Equal(t, []byte{10, 0, 1}, pfx.WireBytes())
}

func TestFromWireBytesZeroLength(t *testing.T) {
	pfx, err := FromWireBytes(0, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0/0", pfx.String())
}

func TestFromWireBytesRejectsOversizeLength(t *testing.T) {
	_, err := FromWireBytes(33, []byte{0, 0, 0, 0})
	assert.Error(t, err)
}

func TestFromWireBytesRejectsShortValue(t *testing.T) {
	_, err := FromWireBytes(24, []byte{10, 0})
	assert.Error(t, err)
}

func TestWireLen(t *testing.T) {
	cases := map[uint8]int{0: 0, 1: 1, 8: 1, 9: 2, 24: 3, 25: 4, 32: 4}
	for pfxlen, want := range cases {
		assert.Equal(t, want, WireLen(pfxlen), "pfxlen=%d", pfxlen)
	}
}

func TestContains(t *testing.T) {
	supernet := New(0x0a000000, 8)  // 10.0.0.0/8
	subnet := New(0x0a010000, 16)   // 10.1.0.0/16
	disjoint := New(0x0b000000, 8) // 11.0.0.0/8

	assert.True(t, supernet.Contains(subnet))
	assert.False(t, subnet.Contains(supernet))
	assert.False(t, supernet.Contains(disjoint))
	assert.False(t, supernet.Contains(supernet)) // not a strict subnet of itself
}

func TestEqual(t *testing.T) {
	a := New(0x0a000000, 8)
	b := New(0x0a000000, 8)
	c := New(0x0a000000, 9)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestGetSupernet(t *testing.T) {
	a := New(0x0a010000, 16) // 10.1.0.0/16
	b := New(0x0a020000, 16) // 10.2.0.0/16

	super := a.GetSupernet(b)
	assert.True(t, super.Contains(a))
	assert.True(t, super.Contains(b))
}
