// Package event defines the BGP FSM's event vocabulary and the
// serialized queue the FSM consumes from. Grounded on the teacher's
// FSM (server/fsm.go), which uses an unbuffered channel of bare ints
// for the same purpose; this package generalizes that into a typed,
// traceable, ManualStop-clearing queue per the session-layer spec,
// enriched with transitorykris-kbgp/queue's Push/Pop/Length shape
// since a bare channel cannot express "clear pending events first".
package event

import "sync"

// Kind identifies an event by its RFC 4271 administrative/timer/
// message event number.
type Kind int

// Event kinds, numbered exactly as the session layer's spec requires
// (gaps are administrative/automatic-start events this module does
// not emit, kept for numeric fidelity with RFC 4271 Section 8).
const (
	ManualStart                Kind = 1
	ManualStop                 Kind = 2
	AutomaticStop              Kind = 8
	ConnectRetryTimerExpires   Kind = 9
	HoldTimerExpires           Kind = 10
	KeepaliveTimerExpires      Kind = 11
	DelayOpenTimerExpires      Kind = 12
	IdleHoldTimerExpires       Kind = 13
	TcpCRAcked                 Kind = 16
	TcpConnectionConfirmed     Kind = 17
	TcpConnectionFails         Kind = 18
	BGPOpen                    Kind = 19
	BGPOpenWithDelayOpenTimer  Kind = 20
	BGPHeaderErr               Kind = 21
	BGPOpenMsgErr              Kind = 22
	NotifMsgVerErr             Kind = 24
	NotifMsg                   Kind = 25
	KeepAliveMsg               Kind = 26
	UpdateMsg                  Kind = 27
	UpdateMsgErr               Kind = 28
)

var kindNames = map[Kind]string{
	ManualStart:               "ManualStart",
	ManualStop:                "ManualStop",
	AutomaticStop:             "AutomaticStop",
	ConnectRetryTimerExpires:  "ConnectRetryTimer_Expires",
	HoldTimerExpires:          "HoldTimer_Expires",
	KeepaliveTimerExpires:     "KeepaliveTimer_Expires",
	DelayOpenTimerExpires:     "DelayOpenTimer_Expires",
	IdleHoldTimerExpires:      "IdleHoldTimer_Expires",
	TcpCRAcked:                "Tcp_CR_Acked",
	TcpConnectionConfirmed:    "TcpConnectionConfirmed",
	TcpConnectionFails:        "TcpConnectionFails",
	BGPOpen:                   "BGPOpen",
	BGPOpenWithDelayOpenTimer: "BGPOpen(DelayOpenTimerRunning)",
	BGPHeaderErr:              "BGPHeaderErr",
	BGPOpenMsgErr:             "BGPOpenMsgErr",
	NotifMsgVerErr:            "NotifMsgVerErr",
	NotifMsg:                  "NotifMsg",
	KeepAliveMsg:              "KeepAliveMsg",
	UpdateMsg:                 "UpdateMsg",
	UpdateMsgErr:              "UpdateMsgErr",
}

// String renders a Kind by its RFC 4271 name, e.g. "ManualStart".
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Event is one entry in a session's event queue: a kind plus whatever
// payload that kind carries (a decoded OPEN, a BGPError, nothing for
// timer expiries) and a tracing serial number.
type Event struct {
	Kind   Kind
	Serial uint16
	Data   interface{}
}

// Queue is the per-session FIFO the FSM driver drains. Enqueuing
// ManualStop or AutomaticStop clears every pending event first, per
// the session layer's "prompt teardown precedence" rule — a stop
// request must never wait behind a backlog of other events.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	serial uint16 // last assigned serial; 0 means none assigned yet
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Push enqueues an event of the given kind with the given payload,
// assigning it the next serial number. ManualStop and AutomaticStop
// first discard every event already queued.
func (q *Queue) Push(kind Kind, data interface{}) Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if kind == ManualStop || kind == AutomaticStop {
		q.items = q.items[:0]
	}

	q.serial++
	if q.serial == 0 {
		q.serial = 1
	}

	ev := Event{Kind: kind, Serial: q.serial, Data: data}
	q.items = append(q.items, ev)
	return ev
}

// Pop removes and returns the event at the head of the queue. ok is
// false if the queue is empty.
func (q *Queue) Pop() (ev Event, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Event{}, false
	}

	ev = q.items[0]
	q.items = q.items[1:]
	return ev, true
}

// Len returns the number of events currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
