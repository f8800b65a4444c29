package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mwolff44/bgpeer/event"
)

func TestArmAndTick(t *testing.T) {
	tm := New(event.HoldTimerExpires)
	tm.Arm(3)
	assert.True(t, tm.Running())

	assert.False(t, tm.tick())
	assert.EqualValues(t, 2, tm.Remaining())

	assert.False(t, tm.tick())
	assert.True(t, tm.tick())
	assert.EqualValues(t, 0, tm.Remaining())
	assert.False(t, tm.Running())
}

func TestDisabledTimerNeverExpires(t *testing.T) {
	tm := New(event.HoldTimerExpires)
	for i := 0; i < 5; i++ {
		assert.False(t, tm.tick())
	}
	assert.EqualValues(t, 0, tm.Remaining())
}

func TestExpiredTimerStaysDisabledUntilRearmed(t *testing.T) {
	tm := New(event.KeepaliveTimerExpires)
	tm.Arm(1)
	assert.True(t, tm.tick())
	assert.False(t, tm.Running())
	assert.False(t, tm.tick())

	tm.Arm(5)
	assert.True(t, tm.Running())
	assert.EqualValues(t, 5, tm.Remaining())
}

func TestBlockStopAll(t *testing.T) {
	b := NewBlock()
	b.ConnectRetry.Arm(5)
	b.Hold.Arm(90)
	b.Keepalive.Arm(30)

	b.StopAll()

	assert.EqualValues(t, 0, b.ConnectRetry.Remaining())
	assert.EqualValues(t, 0, b.Hold.Remaining())
	assert.EqualValues(t, 0, b.Keepalive.Remaining())
}

func TestQueueReceivesExpiryEvent(t *testing.T) {
	q := event.New()
	tm := New(event.HoldTimerExpires)
	tm.Arm(1)

	if tm.tick() {
		q.Push(tm.kind, nil)
	}

	ev, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, event.HoldTimerExpires, ev.Kind)
}
