package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadMaximumQoS(t *testing.T) {
	cfg := Default()
	cfg.Mqtt.MaximumQoS = 3
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNoListeners(t *testing.T) {
	cfg := Default()
	cfg.Listeners = Listeners{}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadDeliveryMode(t *testing.T) {
	cfg := Default()
	cfg.Mqtt.DeliveryMode = "invalid"
	assert.Error(t, cfg.Validate())
}

func TestDefaultReconnectStormDelayIsPositive(t *testing.T) {
	cfg := Default()
	assert.Greater(t, cfg.Mqtt.ReconnectStormDelay, time.Duration(0))
}
