// Command bgpeerd is a thin outer shell around the session package:
// it loads a YAML peer list, starts one Session per entry, and blocks
// until interrupted. All FSM/codec/transport logic lives in the
// library packages; this binary only wires configuration to it.
//
// Grounded on transitorykris-kbgp's cmd/main.go (load peers, start
// them, block) for the overall shape, and on mitake-gobgp's
// config.WatchEtcd for the viper.SetConfigFile/ReadInConfig/Unmarshal
// sequence used to parse the YAML file. cobra supplies the command
// surface spec.md's Non-goals explicitly keep out of the core.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwolff44/bgpeer/config"
	"github.com/mwolff44/bgpeer/rib"
	"github.com/mwolff44/bgpeer/session"
	"github.com/mwolff44/bgpeer/transport"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "bgpeerd",
		Short: "Run BGP-4 peer sessions from a YAML config file",
		RunE:  run,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "bgpeerd.yaml", "path to the peer config file")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("bgpeerd exited with error")
	}
}

// listenForPeer binds a TCP listener for a passive-mode peer so its
// transport.AcceptLoop has something to accept from. Binds on the
// configured LocalAddress when set, matching this peer's expected
// interface; otherwise listens on all addresses. One listener per
// passive peer, since config.Peer carries no shared-listener handle
// for transport.Attach's demux pattern to plug into yet.
func listenForPeer(peerCfg config.Peer) (net.Listener, error) {
	host := ""
	if peerCfg.LocalAddress != nil {
		host = peerCfg.LocalAddress.String()
	}
	addr := net.JoinHostPort(host, strconv.Itoa(transport.DefaultPort))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return ln, nil
}

func run(cmd *cobra.Command, args []string) error {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", configPath, err)
	}

	var pf peersFile
	if err := v.Unmarshal(&pf); err != nil {
		return fmt.Errorf("unmarshalling config: %w", err)
	}
	if len(pf.Peers) == 0 {
		return fmt.Errorf("config %s declares no peers", configPath)
	}

	sink := rib.NewAdjRIBIn()
	sessions := make([]*session.Session, 0, len(pf.Peers))

	for _, entry := range pf.Peers {
		peerCfg, err := entry.toPeer()
		if err != nil {
			return fmt.Errorf("peer config: %w", err)
		}

		var ln net.Listener
		if peerCfg.Mode == config.Passive {
			ln, err = listenForPeer(peerCfg)
			if err != nil {
				return fmt.Errorf("peer %s: %w", peerCfg.PeerAddress, err)
			}
		}

		sess := session.New(peerCfg, nil, &net.Dialer{}, ln)
		sess.SetRIB(rib.NewSink(sink, sess.ID()))
		sessions = append(sessions, sess)

		log.WithFields(log.Fields{
			"session": sess.ID(),
			"peer":    peerCfg.PeerAddress.String(),
			"mode":    peerCfg.Mode.String(),
		}).Info("starting session")
		sess.Start()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	for _, sess := range sessions {
		if err := sess.Stop(); err != nil {
			log.WithError(err).WithField("session", sess.ID()).Warn("session did not stop cleanly")
		}
	}
	return nil
}
