package main

import (
	"fmt"
	"net"

	"github.com/mwolff44/bgpeer/config"
)

// peersFile is the on-disk shape viper unmarshals the YAML peer
// config into (see mitake-gobgp's config.Bgp/viper.Unmarshal pattern,
// adapted from a single full routing-policy config to a flat list of
// session-layer peers).
type peersFile struct {
	Peers []peerConfig `mapstructure:"peers"`
}

type peerConfig struct {
	RouterID                           string `mapstructure:"router_id"`
	LocalAS                            uint16 `mapstructure:"local_as"`
	PeerAS                             uint16 `mapstructure:"peer_as"`
	PeerAddress                        string `mapstructure:"peer_address"`
	HoldTimer                          uint16 `mapstructure:"hold_timer"`
	ConnectRetryTime                   uint16 `mapstructure:"connect_retry_time"`
	Passive                            bool   `mapstructure:"passive"`
	AcceptConnectionsUnconfiguredPeers bool   `mapstructure:"accept_connections_unconfigured_peers"`
	CollisionDetectEstablishedState    bool   `mapstructure:"collision_detect_established_state"`
}

// toPeer converts one YAML entry into the immutable config.Peer the
// session layer is constructed from.
func (p peerConfig) toPeer() (config.Peer, error) {
	routerID := net.ParseIP(p.RouterID)
	if routerID == nil || routerID.To4() == nil {
		return config.Peer{}, fmt.Errorf("invalid router_id %q", p.RouterID)
	}
	peerAddr := net.ParseIP(p.PeerAddress)
	if peerAddr == nil || peerAddr.To4() == nil {
		return config.Peer{}, fmt.Errorf("invalid peer_address %q", p.PeerAddress)
	}

	mode := config.Active
	if p.Passive {
		mode = config.Passive
	}

	v4 := routerID.To4()
	return config.Peer{
		RouterID:                           uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]),
		LocalAS:                            p.LocalAS,
		PeerAS:                             p.PeerAS,
		PeerAddress:                        peerAddr,
		HoldTimer:                          p.HoldTimer,
		ConnectRetryTime:                   p.ConnectRetryTime,
		Mode:                               mode,
		AcceptConnectionsUnconfiguredPeers: p.AcceptConnectionsUnconfiguredPeers,
		CollisionDetectEstablishedState:    p.CollisionDetectEstablishedState,
	}, nil
}
