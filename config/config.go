// Package config holds the immutable per-neighbor configuration tuple
// the session layer is constructed from. Named and shaped after the
// "github.com/taktv6/tbgp/config" package server/fsm.go already
// imports in the teacher (referenced there as config.Peer with
// RouterID/PeerAddress/LocalAddress/LocalAS/HoldTimer/KeepAlive
// fields) but never itself shipped in that tree — supplied here in
// full to match spec.md §3's Peer Session configuration.
package config

import "net"

// Mode is a neighbor's TCP establishment mode.
type Mode int

const (
	// Active means the local speaker initiates the TCP connection.
	Active Mode = iota
	// Passive means the local speaker only accepts inbound connections.
	Passive
)

func (m Mode) String() string {
	if m == Passive {
		return "passive"
	}
	return "active"
}

// Peer is the immutable configuration for one BGP neighbor. It is
// supplied once at session construction and never mutated afterward;
// everything that changes over a session's life (peer port, peer
// router ID, counters, timers) lives in the session's mutable state.
type Peer struct {
	// RouterID is this speaker's own 32-bit BGP identifier.
	RouterID uint32
	// LocalAS is this speaker's AS number.
	LocalAS uint16
	// PeerAS is the configured neighbor's AS number.
	PeerAS uint16
	// LocalAddress is the local address to bind/dial from.
	LocalAddress net.IP
	// PeerAddress is the neighbor's IPv4 address.
	PeerAddress net.IP
	// HoldTimer is this speaker's hold-time preference, in seconds.
	// 0 means "propose disabling keepalives entirely".
	HoldTimer uint16
	// ConnectRetryTime is the base ConnectRetryTimer duration, in
	// seconds. Zero defaults to 5, matching RFC 4271's suggested value.
	ConnectRetryTime uint16
	// Mode selects active or passive TCP establishment.
	Mode Mode

	// Option flags, matching spec.md §3 one-for-one. All default to
	// false/strict, the conservative RFC 4271 posture.
	AcceptConnectionsUnconfiguredPeers bool
	AllowAutomaticStart                bool
	AllowAutomaticStop                 bool
	CollisionDetectEstablishedState    bool
	DampPeerOscillations               bool
	DelayOpen                          bool
	DelayOpenTime                      uint16
	PassiveTCPEstablishment            bool
	SendNotificationWithoutOpen        bool
	TrackTCPState                      bool
}

// connectRetryTimeDefault is RFC 4271's suggested ConnectRetryTime.
const connectRetryTimeDefault = 5

// EffectiveConnectRetryTime returns p.ConnectRetryTime, defaulting to
// 5 seconds when unset.
func (p Peer) EffectiveConnectRetryTime() uint16 {
	if p.ConnectRetryTime == 0 {
		return connectRetryTimeDefault
	}
	return p.ConnectRetryTime
}
