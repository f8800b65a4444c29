package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwolff44/bgpeer/config"
	"github.com/mwolff44/bgpeer/event"
	"github.com/mwolff44/bgpeer/packet"
	"github.com/mwolff44/bgpeer/rib"
)

// fakeDialer always dials a fixed address, ignoring whatever address
// Transport.Connect built from the configured peer IP and port 179 —
// tests run on ephemeral loopback ports, never 179.
type fakeDialer struct {
	addr string
}

func (d *fakeDialer) Dial(network, _ string) (net.Conn, error) {
	return net.Dial(network, d.addr)
}

func readMessage(t *testing.T, conn net.Conn, localID uint32, peerASN uint16) *packet.BGPMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	buf := make([]byte, 0, packet.MaxLen)
	chunk := make([]byte, 4096)
	for {
		msg, _, err := packet.Decode(buf, localID, peerASN)
		if err == nil {
			return msg
		}
		if _, partial := err.(*packet.ErrPartialFrame); !partial {
			require.NoError(t, err)
		}
		n, err := conn.Read(chunk)
		require.NoError(t, err)
		buf = append(buf, chunk[:n]...)
	}
}

// newTestConfig builds an Active-mode Peer whose PeerAddress is
// 2.2.2.2; the fakeDialer above is what actually decides where the
// TCP connection lands (a loopback test listener).
func newTestConfig(holdTime uint16) config.Peer {
	return config.Peer{
		RouterID:  0x01010101, // 1.1.1.1
		LocalAS:   65001,
		PeerAS:    65002,
		PeerAddress: net.ParseIP("2.2.2.2"),
		HoldTimer: holdTime,
		Mode:      config.Active,
	}
}

// handshake drives the fake peer's half of scenario 1 (spec.md §8):
// accept the session's TCP connect, read its OPEN, reply with an
// OPEN of our own, read the session's KEEPALIVE, then send a KEEPALIVE.
//
// Decoding a message the session under test sent means decoding it
// from the *fake peer's* point of view: the "local ID" passed to
// packet.Decode is the fake peer's own router ID (peerID), and the
// expected ASN is the session's own configured ASN (localAS) — the
// reverse of what the session itself uses to decode inbound messages.
func handshake(t *testing.T, ln net.Listener, localAS uint16, peerASN uint16, peerHoldTime uint16, peerID uint32) net.Conn {
	t.Helper()
	conn, err := ln.Accept()
	require.NoError(t, err)

	open := readMessage(t, conn, peerID, localAS)
	require.Equal(t, packet.OpenMsg, int(open.Header.Type))

	reply := &packet.BGPOpen{
		Version:       packet.BGP4Version,
		ASN:           peerASN,
		HoldTime:      peerHoldTime,
		BGPIdentifier: peerID,
	}
	_, err = conn.Write(packet.EncodeOpenMsg(reply))
	require.NoError(t, err)

	ka := readMessage(t, conn, peerID, localAS)
	require.Equal(t, packet.KeepaliveMsg, int(ka.Header.Type))

	_, err = conn.Write(packet.EncodeKeepaliveMsg())
	require.NoError(t, err)

	return conn
}

func TestActiveHandshakeReachesEstablished(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := newTestConfig(90)
	sink := rib.NewAdjRIBIn()
	sess := New(cfg, rib.NewSink(sink, "test"), &fakeDialer{addr: ln.Addr().String()}, nil)
	sess.Start()
	defer sess.Stop()

	peerConn := handshake(t, ln, cfg.LocalAS, cfg.PeerAS, 60, 0x02020202)
	defer peerConn.Close()

	require.Eventually(t, func() bool {
		return sess.Inspect().State == Established
	}, 3*time.Second, 10*time.Millisecond)

	snap := sess.Inspect()
	assert.EqualValues(t, 60, snap.HoldTime)
	assert.EqualValues(t, 20, snap.KeepaliveTime)
	assert.EqualValues(t, 0x02020202, snap.PeerRouterID)
}

func TestManualStopFromEstablishedSendsCeaseAndGoesIdle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := newTestConfig(90)
	sink := rib.NewAdjRIBIn()
	sess := New(cfg, rib.NewSink(sink, "test"), &fakeDialer{addr: ln.Addr().String()}, nil)
	sess.Start()

	conn := handshake(t, ln, cfg.LocalAS, cfg.PeerAS, 60, 0x02020202)
	require.Eventually(t, func() bool {
		return sess.Inspect().State == Established
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, sess.Stop())

	notif := readMessage(t, conn, 0x01010101, cfg.PeerAS)
	require.Equal(t, packet.NotificationMsg, int(notif.Header.Type))
	body := notif.Body.(*packet.BGPNotification)
	assert.Equal(t, uint8(packet.Cease), body.ErrorCode)

	snap := sess.Inspect()
	assert.Equal(t, Idle, snap.State)
	assert.Equal(t, 0, snap.ConnectRetryCounter)
}

func TestBadPeerASProducesNotificationAndIdle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := newTestConfig(90)
	sess := New(cfg, nil, &fakeDialer{addr: ln.Addr().String()}, nil)
	sess.Start()
	defer sess.Stop()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	// Consume the session's own OPEN so the connection state is
	// consistent, then reply with one carrying the wrong AS. Decoded
	// from the fake peer's point of view: its own ID is 0x02020202,
	// and it expects the session's configured local AS.
	readMessage(t, conn, 0x02020202, cfg.LocalAS)

	bad := &packet.BGPOpen{
		Version:       packet.BGP4Version,
		ASN:           65099,
		HoldTime:      60,
		BGPIdentifier: 0x02020202,
	}
	_, err = conn.Write(packet.EncodeOpenMsg(bad))
	require.NoError(t, err)

	notif := readMessage(t, conn, 0x01010101, cfg.PeerAS)
	require.Equal(t, packet.NotificationMsg, int(notif.Header.Type))
	body := notif.Body.(*packet.BGPNotification)
	assert.Equal(t, uint8(packet.OpenMessageError), body.ErrorCode)
	assert.Equal(t, uint8(packet.BadPeerAS), body.ErrorSubcode)

	require.Eventually(t, func() bool {
		return sess.Inspect().State == Idle
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, sess.Inspect().ConnectRetryCounter)
}

func TestTcpConnectionFailsFromConnectGoesActive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close() // nothing listens: dial fails

	cfg := newTestConfig(90)
	sess := New(cfg, nil, &fakeDialer{addr: addr}, nil)
	sess.Start()
	defer sess.Stop()

	require.Eventually(t, func() bool {
		return sess.Inspect().State == Active
	}, 3*time.Second, 10*time.Millisecond)

	snap := sess.Inspect()
	assert.EqualValues(t, cfg.EffectiveConnectRetryTime(), snap.ConnectRetryTimer)
}

// TestMarkerCorruptionInOpenSentProducesNotificationAndIdle drives
// scenario 5 (spec.md §8): a message whose marker byte 0 is 0xFE
// decodes to BGPHeaderErr (event 21); in OpenSent that produces an
// outbound NOTIFICATION(1,1) and a transition to Idle.
func TestMarkerCorruptionInOpenSentProducesNotificationAndIdle(t *testing.T) {
	cfg := newTestConfig(90)
	sess := New(cfg, nil, nil, nil)
	sess.setState(OpenSent, "test setup")

	server, client := net.Pipe()
	defer client.Close()
	sess.trans.Attach(server)

	stop := make(chan struct{})
	defer close(stop)
	go sess.trans.ReadLoop(cfg.RouterID, cfg.PeerAS, func() bool { return false }, stop)

	notifCh := make(chan *packet.BGPMessage, 1)
	go func() {
		notifCh <- readMessage(t, client, cfg.RouterID, cfg.PeerAS)
	}()

	corrupted := make([]byte, packet.HeaderLen)
	for i := range corrupted {
		corrupted[i] = 0xff
	}
	corrupted[0] = 0xfe // scenario 5: marker corruption
	corrupted[16] = 0x00
	corrupted[17] = byte(packet.HeaderLen)
	corrupted[18] = byte(packet.KeepaliveMsg)

	go func() {
		_, err := client.Write(corrupted)
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		return sess.queue.Len() > 0
	}, 3*time.Second, 10*time.Millisecond)

	ev, ok := sess.queue.Pop()
	require.True(t, ok)
	require.Equal(t, event.BGPHeaderErr, ev.Kind)

	sess.handle(ev)

	notif := <-notifCh
	require.Equal(t, packet.NotificationMsg, int(notif.Header.Type))
	body := notif.Body.(*packet.BGPNotification)
	assert.Equal(t, uint8(packet.MessageHeaderError), body.ErrorCode)
	assert.Equal(t, uint8(packet.ConnectionNotSynchronised), body.ErrorSubcode)
	assert.Equal(t, Idle, sess.Inspect().State)
}

func TestHoldTimerExpiryInEstablishedSendsNotificationAndIdle(t *testing.T) {
	cfg := newTestConfig(90)
	sess := New(cfg, nil, nil, nil)
	sess.setState(Established, "test setup")
	sess.holdTime = 60

	done := make(chan *packet.BGPMessage, 1)
	server, client := net.Pipe()
	defer client.Close()
	sess.trans.Attach(server)
	go func() {
		done <- readMessage(t, client, 0x01010101, cfg.PeerAS)
	}()

	sess.handle(event.Event{Kind: event.HoldTimerExpires})

	notif := <-done
	require.Equal(t, packet.NotificationMsg, int(notif.Header.Type))
	body := notif.Body.(*packet.BGPNotification)
	assert.Equal(t, uint8(packet.HoldTimeExpired), body.ErrorCode)
	assert.Equal(t, Idle, sess.Inspect().State)
	assert.Equal(t, 1, sess.Inspect().ConnectRetryCounter)
}
