package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopFIFO(t *testing.T) {
	q := New()
	q.Push(ManualStart, nil)
	q.Push(KeepAliveMsg, nil)

	ev, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, ManualStart, ev.Kind)

	ev, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, KeepAliveMsg, ev.Kind)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestSerialsIncreaseAndNeverZero(t *testing.T) {
	q := New()
	var last uint16
	for i := 0; i < 10; i++ {
		ev := q.Push(KeepAliveMsg, nil)
		assert.NotZero(t, ev.Serial)
		assert.Greater(t, ev.Serial, last)
		last = ev.Serial
		q.Pop()
	}
}

func TestSerialWrapsTo1After65535(t *testing.T) {
	q := &Queue{serial: 65534}
	ev := q.Push(KeepAliveMsg, nil)
	assert.EqualValues(t, 65535, ev.Serial)

	ev = q.Push(KeepAliveMsg, nil)
	assert.EqualValues(t, 1, ev.Serial)
}

func TestManualStopClearsQueue(t *testing.T) {
	q := New()
	q.Push(KeepAliveMsg, nil)
	q.Push(UpdateMsg, nil)
	require.Equal(t, 2, q.Len())

	q.Push(ManualStop, nil)
	assert.Equal(t, 1, q.Len())

	ev, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, ManualStop, ev.Kind)
}

func TestAutomaticStopClearsQueue(t *testing.T) {
	q := New()
	q.Push(KeepAliveMsg, nil)
	q.Push(AutomaticStop, nil)
	assert.Equal(t, 1, q.Len())
}
