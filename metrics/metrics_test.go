package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStateTransitionsIncrements(t *testing.T) {
	before := testutil.ToFloat64(StateTransitions.WithLabelValues("Idle", "Connect"))
	StateTransitions.WithLabelValues("Idle", "Connect").Inc()
	after := testutil.ToFloat64(StateTransitions.WithLabelValues("Idle", "Connect"))
	assert.Equal(t, before+1, after)
}

func TestNotificationsSentIncrements(t *testing.T) {
	before := testutil.ToFloat64(NotificationsSent.WithLabelValues("6"))
	NotificationsSent.WithLabelValues("6").Inc()
	after := testutil.ToFloat64(NotificationsSent.WithLabelValues("6"))
	assert.Equal(t, before+1, after)
}
