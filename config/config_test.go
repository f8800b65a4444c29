package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveConnectRetryTimeDefaults(t *testing.T) {
	p := Peer{}
	assert.EqualValues(t, 5, p.EffectiveConnectRetryTime())

	p.ConnectRetryTime = 15
	assert.EqualValues(t, 15, p.EffectiveConnectRetryTime())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "passive", Passive.String())
}
