package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwolff44/bgpeer/config"
	"github.com/mwolff44/bgpeer/event"
	"github.com/mwolff44/bgpeer/packet"
)

func TestConnectFailurePushesTcpConnectionFails(t *testing.T) {
	// Connect always dials DefaultPort (179) on the peer address; the
	// test expects nothing to listen on loopback port 179, so the dial
	// fails. The listener below only supplies the loopback IP.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	q := event.New()
	cfg := config.Peer{PeerAddress: net.ParseIP("127.0.0.1")}
	tr := New(cfg, q, &net.Dialer{Timeout: time.Second}, nil)
	tr.cfg.PeerAddress = net.ParseIP(addr.IP.String())

	tr.Connect()

	ev, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, event.TcpConnectionFails, ev.Kind)
}

func TestConnectAndReadLoopKeepalive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write(packet.EncodeKeepaliveMsg())
	}()

	addr := ln.Addr().(*net.TCPAddr)
	q := event.New()
	cfg := config.Peer{PeerAddress: net.ParseIP(addr.IP.String())}
	tr := New(cfg, q, &net.Dialer{Timeout: time.Second}, nil)

	// Dial directly at the listener's ephemeral port rather than 179.
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	tr.setConn(conn)

	stop := make(chan struct{})
	defer close(stop)

	done := make(chan struct{})
	go func() {
		tr.ReadLoop(1, 1, func() bool { return false }, stop)
		close(done)
	}()

	select {
	case <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not finish")
	}

	require.Eventually(t, func() bool {
		return q.Len() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	ev, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, event.KeepAliveMsg, ev.Kind)
}

func TestSendRequiresConnection(t *testing.T) {
	q := event.New()
	tr := New(config.Peer{}, q, nil, nil)
	err := tr.Send(packet.EncodeKeepaliveMsg())
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	tr := New(config.Peer{}, event.New(), nil, nil)
	tr.Close()
	tr.Close()
	assert.False(t, tr.Connected())
}
