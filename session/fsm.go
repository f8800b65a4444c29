package session

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mwolff44/bgpeer/config"
	"github.com/mwolff44/bgpeer/event"
	"github.com/mwolff44/bgpeer/packet"
	"github.com/mwolff44/bgpeer/timer"
)

// driver is the FSM's single task: drain the event queue in order,
// dispatch on the current state, apply the transition table in
// spec.md §4.4, then cooperatively yield. Grounded on the teacher's
// fsm.main select loop, generalized from a raw channel receive onto
// event.Queue's poll/clear semantics (a bare channel cannot express
// the ManualStop-clears-queue rule the queue already enforces on
// Push).
func (s *Session) driver() error {
	for _, tmr := range []*timer.Timer{
		s.timers.ConnectRetry, s.timers.Hold, s.timers.Keepalive, s.timers.DelayOpen, s.timers.IdleHold,
	} {
		tmr := tmr
		s.safeGo(func() error {
			timer.Run(tmr, s.queue, s.t.Dying())
			return nil
		})
	}

	for {
		select {
		case <-s.t.Dying():
			return nil
		default:
		}

		ev, ok := s.queue.Pop()
		if !ok {
			select {
			case <-s.t.Dying():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		s.log.WithFields(log.Fields{
			"event":  ev.Kind.String(),
			"serial": ev.Serial,
		}).Debug("FSM: dequeued event")

		s.handle(ev)
	}
}

// handle applies the (state, event) transition table.
func (s *Session) handle(ev event.Event) {
	if ev.Kind == event.ManualStop {
		if s.trans.Connected() {
			s.sendNotification(packet.Cease, packet.CeaseUnspecified, nil)
		}
		s.mu.Lock()
		s.connectRetryCounter = 0
		s.mu.Unlock()
		s.toIdle("ManualStop")
		// Only the driver itself kills the tomb, and only once it has
		// actually drained this event — killing from Stop() instead
		// would race the driver into dying before it ever pops the
		// event it was just asked to process.
		s.t.Kill(nil)
		return
	}

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case Idle:
		s.handleIdle(ev)
	case Connect:
		s.handleConnect(ev)
	case Active:
		s.handleActive(ev)
	case OpenSent:
		s.handleOpenSent(ev)
	case OpenConfirm:
		s.handleOpenConfirm(ev)
	case Established:
		s.handleEstablished(ev)
	}
}

func (s *Session) handleIdle(ev event.Event) {
	if ev.Kind != event.ManualStart {
		return
	}

	s.mu.Lock()
	s.connectRetryCounter = 0
	s.mu.Unlock()
	s.timers.ConnectRetry.Arm(s.cfg.EffectiveConnectRetryTime())

	if s.cfg.Mode == config.Passive {
		s.setState(Active, "ManualStart (passive)")
		return
	}

	s.safeGo(func() error {
		s.trans.Connect()
		return nil
	})
	s.setState(Connect, "ManualStart (active)")
}

func (s *Session) handleConnect(ev event.Event) {
	switch ev.Kind {
	case event.ConnectRetryTimerExpires:
		s.trans.Close()
		s.timers.ConnectRetry.Arm(s.cfg.EffectiveConnectRetryTime())
		s.safeGo(func() error {
			s.trans.Connect()
			return nil
		})
	case event.TcpCRAcked, event.TcpConnectionConfirmed:
		s.enterOpenSent()
	case event.TcpConnectionFails:
		s.trans.Close()
		s.timers.ConnectRetry.Arm(s.cfg.EffectiveConnectRetryTime())
		s.setState(Active, "TcpConnectionFails")
	}
}

func (s *Session) handleActive(ev event.Event) {
	switch ev.Kind {
	case event.TcpCRAcked, event.TcpConnectionConfirmed:
		s.enterOpenSent()
	case event.ConnectRetryTimerExpires:
		s.timers.ConnectRetry.Arm(s.cfg.EffectiveConnectRetryTime())
		s.safeGo(func() error {
			s.trans.Connect()
			return nil
		})
		s.setState(Connect, "ConnectRetryTimer_Expires")
	}
}

// enterOpenSent is shared by Connect and Active: the TCP connection
// just came up one way or another, so send our OPEN, arm the large
// initial HoldTimer, start the reader, and move to OpenSent.
func (s *Session) enterOpenSent() {
	s.timers.ConnectRetry.Disable()
	if err := s.sendOpen(); err != nil {
		s.log.WithError(err).Warn("failed to send OPEN")
	}
	s.timers.Hold.Arm(largeInitialHoldTime)
	s.safeGo(func() error {
		s.trans.ReadLoop(s.cfg.RouterID, s.cfg.PeerAS, s.timers.DelayOpen.Running, s.t.Dying())
		return nil
	})
	s.setState(OpenSent, "TCP established")
}

// largeInitialHoldTime is the conservative HoldTimer value armed the
// instant TCP comes up and before any hold time has been negotiated,
// per spec.md §4.4.
const largeInitialHoldTime = 240

func (s *Session) handleOpenSent(ev event.Event) {
	switch ev.Kind {
	case event.BGPOpen:
		s.negotiateAndConfirm(ev)
	case event.BGPHeaderErr, event.BGPOpenMsgErr:
		s.notifyAndTeardown(ev, "protocol error in OpenSent")
	case event.HoldTimerExpires:
		s.sendNotification(packet.HoldTimeExpired, 0, nil)
		s.teardownWithCounter("HoldTimer_Expires")
	case event.NotifMsgVerErr:
		s.trans.Close()
		s.toIdle("NotifMsgVerErr")
	case event.TcpConnectionFails:
		s.trans.Close()
		s.timers.ConnectRetry.Arm(s.cfg.EffectiveConnectRetryTime())
		s.setState(Active, "TcpConnectionFails")
	}
}

// negotiateAndConfirm applies the BGPOpen(19) transition shared by
// OpenSent: negotiate hold_time, derive keepalive_time, arm both
// timers (or disable them if hold_time negotiates to 0), record the
// peer's identifier, send our own KEEPALIVE, and move to OpenConfirm.
func (s *Session) negotiateAndConfirm(ev event.Event) {
	open, ok := ev.Data.(*packet.BGPOpen)
	if !ok {
		s.notifyAndTeardown(ev, "BGPOpen event carried no *packet.BGPOpen")
		return
	}

	s.timers.ConnectRetry.Disable()

	negotiated := s.cfg.HoldTimer
	if open.HoldTime < negotiated {
		negotiated = open.HoldTime
	}

	s.mu.Lock()
	s.peerRouterID = open.BGPIdentifier
	s.holdTime = negotiated
	s.mu.Unlock()

	s.resolveCollision()

	s.mu.Lock()
	if negotiated == 0 {
		s.keepaliveTime = 0
	} else {
		s.keepaliveTime = negotiated / 3
	}
	keepaliveTime := s.keepaliveTime
	s.mu.Unlock()

	if negotiated == 0 {
		s.timers.Hold.Disable()
		s.timers.Keepalive.Disable()
	} else {
		s.timers.Hold.Arm(negotiated)
		s.timers.Keepalive.Arm(keepaliveTime)
	}

	if err := s.sendKeepalive(); err != nil {
		s.log.WithError(err).Warn("failed to send KEEPALIVE")
	}
	s.setState(OpenConfirm, "BGPOpen")
}

// resolveCollision applies RFC 4271 §6.8: if a second connection was
// parked by transport.AcceptLoop while this one is already past
// OpenSent, the one initiated by the speaker with the lower BGP
// identifier loses. Grounded on the teacher's fsm.resolveCollision,
// called here on every OpenConfirm/Established event (not just on
// BGPOpen) since a colliding connection can land at any point after
// identifiers are known, not only during negotiation.
func (s *Session) resolveCollision() {
	if !s.cfg.CollisionDetectEstablishedState {
		return
	}
	s.mu.Lock()
	peerID := s.peerRouterID
	s.mu.Unlock()
	if s.trans.ResolveCollision(s.cfg.RouterID, peerID) {
		s.log.Info("FSM: resolved connection collision")
	}
}

func (s *Session) handleOpenConfirm(ev event.Event) {
	s.resolveCollision()
	switch ev.Kind {
	case event.KeepAliveMsg:
		s.restartHoldTimer()
		s.setState(Established, "KeepAliveMsg")
	case event.KeepaliveTimerExpires:
		if err := s.sendKeepalive(); err != nil {
			s.log.WithError(err).Warn("failed to send KEEPALIVE")
		}
		s.mu.Lock()
		kt := s.keepaliveTime
		s.mu.Unlock()
		s.timers.Keepalive.Arm(kt)
	case event.HoldTimerExpires:
		s.sendNotification(packet.HoldTimeExpired, 0, nil)
		s.teardownWithCounter("HoldTimer_Expires")
	case event.BGPHeaderErr, event.BGPOpenMsgErr:
		s.notifyAndTeardown(ev, "protocol error in OpenConfirm")
	case event.NotifMsg, event.NotifMsgVerErr:
		s.teardownWithCounter("peer NOTIFICATION")
	case event.TcpConnectionFails:
		s.teardownWithCounter("TcpConnectionFails")
	}
}

func (s *Session) handleEstablished(ev event.Event) {
	s.resolveCollision()
	switch ev.Kind {
	case event.KeepAliveMsg:
		s.restartHoldTimer()
	case event.UpdateMsg:
		s.applyUpdate(ev)
		s.restartHoldTimer()
	case event.KeepaliveTimerExpires:
		if err := s.sendKeepalive(); err != nil {
			s.log.WithError(err).Warn("failed to send KEEPALIVE")
		}
		s.mu.Lock()
		kt := s.keepaliveTime
		s.mu.Unlock()
		s.timers.Keepalive.Arm(kt)
	case event.HoldTimerExpires:
		s.sendNotification(packet.HoldTimeExpired, 0, nil)
		s.teardownWithCounter("HoldTimer_Expires")
	case event.AutomaticStop:
		s.sendNotification(packet.Cease, packet.CeaseUnspecified, nil)
		s.teardownWithCounter("AutomaticStop")
	case event.TcpConnectionFails:
		s.teardownWithCounter("TcpConnectionFails")
	case event.NotifMsg, event.NotifMsgVerErr:
		s.teardownWithCounter("peer NOTIFICATION")
	case event.UpdateMsgErr:
		s.notifyAndTeardown(ev, "UpdateMsgErr")
	case event.ConnectRetryTimerExpires, event.DelayOpenTimerExpires, event.IdleHoldTimerExpires,
		event.BGPOpenWithDelayOpenTimer, event.BGPHeaderErr, event.BGPOpenMsgErr:
		s.sendNotification(packet.FiniteStateMachineError, 0, nil)
		s.teardownWithCounter(fmt.Sprintf("FSM error: unexpected %s in Established", ev.Kind))
	}
}

func (s *Session) applyUpdate(ev event.Event) {
	update, ok := ev.Data.(*packet.BGPUpdate)
	if !ok || s.rib == nil {
		return
	}

	if withdrawn := withdrawnToIPv4(update.WithdrawnRoutes); len(withdrawn) > 0 {
		s.rib.Withdraw(withdrawn)
	}
	if reachable := withdrawnToIPv4(update.NLRI); len(reachable) > 0 {
		// Attribute content is out of scope for this session layer
		// (spec.md §1): the sink only ever sees which prefixes are
		// reachable, never their path attributes.
		s.rib.Install(reachable, nil)
	}
}

func (s *Session) restartHoldTimer() {
	s.mu.Lock()
	ht := s.holdTime
	s.mu.Unlock()
	if ht > 0 {
		s.timers.Hold.Arm(ht)
	}
}

// notifyAndTeardown sends the NOTIFICATION carried by a *packet.BGPError
// event payload (BGPHeaderErr/BGPOpenMsgErr/UpdateMsgErr all carry
// one) and tears the session down to Idle with the counter bumped.
func (s *Session) notifyAndTeardown(ev event.Event, reason string) {
	if bgpErr, ok := ev.Data.(*packet.BGPError); ok {
		s.sendNotification(bgpErr.ErrorCode, bgpErr.ErrorSubCode, bgpErr.Data)
	}
	s.teardownWithCounter(reason)
}

func (s *Session) teardownWithCounter(reason string) {
	s.mu.Lock()
	s.connectRetryCounter++
	s.mu.Unlock()
	s.toIdle(reason)
}
