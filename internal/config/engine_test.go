package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEngineConfigIsValid(t *testing.T) {
	require.NoError(t, ValidateEngineConfig(DefaultEngineConfig()))
}

func TestValidateEngineConfigRejectsBadValues(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Kitchen.QueueCapacity = 0
	assert.Error(t, ValidateEngineConfig(cfg))

	cfg = DefaultEngineConfig()
	cfg.Persistence.IDAllocationAttempts = 0
	assert.Error(t, ValidateEngineConfig(cfg))

	cfg = DefaultEngineConfig()
	cfg.CoalesceWindow = -time.Second
	assert.Error(t, ValidateEngineConfig(cfg))
}

func TestStaticHolderReturnsConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Kitchen.MaxAttempts = 9

	holder := NewStaticEngineConfigHolder(cfg)

	assert.Equal(t, 9, holder.Get().Kitchen.MaxAttempts)
}

func TestLoadReadsKitchenTransport(t *testing.T) {
	t.Setenv("KITCHEN_TRANSPORT", "RabbitMQ")
	t.Setenv("POS_ID", " pos-7 ")

	cfg := Load()

	assert.Equal(t, KitchenTransportAMQP, cfg.Kitchen.Transport)
	assert.Equal(t, "pos-7", cfg.PosID)
}
