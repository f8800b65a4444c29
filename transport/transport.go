// Package transport owns the single TCP connection a session keeps
// to its peer and turns codec outcomes into FSM events.
//
// Grounded on the teacher's server/fsm.go channel plumbing
// (tcpConnector/conCh/conErrCh/msgRecvCh/msgRecvFailCh) but split out
// of the FSM into its own package behind the Dialer/Listener
// interfaces so the FSM depends on an abstraction it can fake in
// tests, and so the RFC 4271 §6.8 collision-detection supplement
// (tracking a second simultaneous connection, "con2" in the teacher)
// has one obvious home.
package transport

import (
	"net"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/mwolff44/bgpeer/config"
	"github.com/mwolff44/bgpeer/event"
	"github.com/mwolff44/bgpeer/packet"
)

// DefaultPort is the well-known BGP TCP port.
const DefaultPort = 179

// Dialer opens outbound TCP connections; satisfied by net.Dialer.
type Dialer interface {
	Dial(network, address string) (net.Conn, error)
}

// Listener accepts inbound TCP connections; satisfied by the
// *net.TCPListener returned from net.Listen.
type Listener interface {
	Accept() (net.Conn, error)
	Close() error
}

// Transport owns the TCP connection(s) for one peer session.
type Transport struct {
	cfg   config.Peer
	queue *event.Queue

	dialer   Dialer
	listener Listener

	mu        sync.Mutex
	conn      net.Conn
	collision net.Conn // RFC 4271 §6.8: a second, simultaneous connection
	peerPort  int
}

// New creates a Transport for cfg that will push classified events
// onto queue.
func New(cfg config.Peer, queue *event.Queue, dialer Dialer, listener Listener) *Transport {
	return &Transport{
		cfg:      cfg,
		queue:    queue,
		dialer:   dialer,
		listener: listener,
	}
}

// Connected reports whether a primary TCP connection is currently up.
func (tr *Transport) Connected() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.conn != nil
}

// PeerPort returns the peer-side port of the live connection, or 0 if
// there is none.
func (tr *Transport) PeerPort() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.peerPort
}

// Connect initiates an active TCP connection. On success it pushes
// Tcp_CR_Acked; on failure, TcpConnectionFails.
func (tr *Transport) Connect() {
	addr := net.JoinHostPort(tr.cfg.PeerAddress.String(), portString(DefaultPort))
	conn, err := tr.dialer.Dial("tcp", addr)
	if err != nil {
		log.WithError(err).WithField("peer", tr.cfg.PeerAddress.String()).Debug("active TCP connect failed")
		tr.queue.Push(event.TcpConnectionFails, err)
		return
	}

	tr.setConn(conn)
	tr.queue.Push(event.TcpCRAcked, nil)
}

// AcceptLoop accepts inbound connections until stop is closed. Each
// accepted connection from the configured peer address pushes
// TcpConnectionConfirmed (or is recorded as a colliding second
// connection per RFC 4271 §6.8 if one is already live).
func (tr *Transport) AcceptLoop(stop <-chan struct{}) {
	if tr.listener == nil {
		return
	}

	for {
		conn, err := tr.listener.Accept()
		select {
		case <-stop:
			if conn != nil {
				conn.Close()
			}
			return
		default:
		}
		if err != nil {
			log.WithError(err).Debug("accept failed")
			return
		}

		if !tr.acceptableRemote(conn) {
			conn.Close()
			continue
		}

		if tr.Connected() && tr.cfg.CollisionDetectEstablishedState {
			tr.setCollision(conn)
			continue
		}

		tr.setConn(conn)
		tr.queue.Push(event.TcpConnectionConfirmed, nil)
	}
}

func (tr *Transport) acceptableRemote(conn net.Conn) bool {
	if tr.cfg.AcceptConnectionsUnconfiguredPeers {
		return true
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}
	return net.ParseIP(host).Equal(tr.cfg.PeerAddress)
}

// Attach adopts an already-established connection as the transport's
// primary one, skipping Connect/AcceptLoop entirely. Exists for a
// caller that demuxes a single shared listener across many peer
// sessions by peer address itself, handing each Transport its
// matched connection directly.
func (tr *Transport) Attach(conn net.Conn) {
	tr.setConn(conn)
}

func (tr *Transport) setConn(conn net.Conn) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.conn = conn
	_, portStr, _ := net.SplitHostPort(conn.RemoteAddr().String())
	tr.peerPort = atoiOrZero(portStr)
}

func (tr *Transport) setCollision(conn net.Conn) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.collision != nil {
		// A third connection: RFC 4271 only ever reasons about two.
		conn.Close()
		return
	}
	tr.collision = conn
}

// ResolveCollision applies RFC 4271 §6.8: the connection initiated by
// the speaker with the higher BGP identifier survives. localID and
// peerID are the two speakers' identifiers as learned from OPEN.
// Returns true if a collision was resolved (a second connection was
// present).
func (tr *Transport) ResolveCollision(localID, peerID uint32) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.collision == nil {
		return false
	}

	loser := tr.collision
	if localID < peerID {
		// The peer has the higher identifier, so the connection it
		// initiated (the accepted one parked as collision) survives
		// and the primary connection is dropped.
		loser = tr.conn
		tr.conn = tr.collision
	}

	tr.collision = nil
	if loser != nil {
		notif := packet.EncodeNotificationMsg(&packet.BGPNotification{
			ErrorCode:    packet.Cease,
			ErrorSubcode: packet.ConnectionCollisionResolution,
		})
		loser.Write(notif)
		loser.Close()
	}
	return true
}

// Close closes any live connection(s). Idempotent and safe to call
// from any state, including Idle where there is nothing to close.
func (tr *Transport) Close() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.conn != nil {
		tr.conn.Close()
		tr.conn = nil
	}
	if tr.collision != nil {
		tr.collision.Close()
		tr.collision = nil
	}
	tr.peerPort = 0
}

// Send writes one already-framed BGP message atomically: a single
// Write call so no other message's bytes can interleave with it.
func (tr *Transport) Send(msg []byte) error {
	tr.mu.Lock()
	conn := tr.conn
	tr.mu.Unlock()

	if conn == nil {
		return errNotConnected
	}
	_, err := conn.Write(msg)
	return err
}

// ReadLoop reads from the live connection, frames messages through
// the codec, and enqueues the FSM event the decode outcome maps to.
// delayOpenRunning is consulted on every valid OPEN to choose between
// event 19 and event 20, per the session spec.
func (tr *Transport) ReadLoop(localID uint32, peerASN uint16, delayOpenRunning func() bool, stop <-chan struct{}) {
	tr.mu.Lock()
	conn := tr.conn
	tr.mu.Unlock()
	if conn == nil {
		return
	}

	buf := make([]byte, 0, packet.MaxLen)
	chunk := make([]byte, 4096)

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := conn.Read(chunk)
		if err != nil {
			tr.queue.Push(event.TcpConnectionFails, err)
			return
		}
		buf = append(buf, chunk[:n]...)

		for {
			msg, consumed, err := packet.Decode(buf, localID, peerASN)
			if err != nil {
				if _, partial := err.(*packet.ErrPartialFrame); partial {
					break
				}
				tr.dispatchError(err)
				buf = buf[:0]
				break
			}

			buf = buf[consumed:]
			tr.dispatchMessage(msg, delayOpenRunning)
		}
	}
}

func (tr *Transport) dispatchError(err error) {
	bgpErr, ok := err.(*packet.BGPError)
	if !ok {
		tr.queue.Push(event.TcpConnectionFails, err)
		return
	}

	switch bgpErr.ErrorCode {
	case packet.MessageHeaderError:
		tr.queue.Push(event.BGPHeaderErr, bgpErr)
	case packet.OpenMessageError:
		tr.queue.Push(event.BGPOpenMsgErr, bgpErr)
	case packet.UpdateMessageError:
		tr.queue.Push(event.UpdateMsgErr, bgpErr)
	default:
		tr.queue.Push(event.BGPHeaderErr, bgpErr)
	}
}

func (tr *Transport) dispatchMessage(msg *packet.BGPMessage, delayOpenRunning func() bool) {
	msg.Dump()

	switch msg.Header.Type {
	case packet.OpenMsg:
		if delayOpenRunning != nil && delayOpenRunning() {
			tr.queue.Push(event.BGPOpenWithDelayOpenTimer, msg.Body)
			return
		}
		tr.queue.Push(event.BGPOpen, msg.Body)
	case packet.KeepaliveMsg:
		tr.queue.Push(event.KeepAliveMsg, nil)
	case packet.UpdateMsg:
		tr.queue.Push(event.UpdateMsg, msg.Body)
	case packet.NotificationMsg:
		notif := msg.Body.(*packet.BGPNotification)
		if notif.ErrorCode == packet.OpenMessageError && notif.ErrorSubcode == packet.UnsupportedVersionNumber {
			tr.queue.Push(event.NotifMsgVerErr, notif)
			return
		}
		tr.queue.Push(event.NotifMsg, notif)
	}
}

func portString(p int) string {
	return strconv.Itoa(p)
}

func atoiOrZero(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

type notConnectedError struct{}

func (notConnectedError) Error() string { return "transport: not connected" }

var errNotConnected = notConnectedError{}
