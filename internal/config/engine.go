package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EngineConfig carries the tunables of the reconciliation engine.
type EngineConfig struct {
	CoalesceWindow   time.Duration     `mapstructure:"coalesceWindow"`
	FeedPollInterval time.Duration     `mapstructure:"feedPollInterval"`
	Kitchen          KitchenTuning     `mapstructure:"kitchen"`
	Persistence      PersistenceTuning `mapstructure:"persistence"`
	Pricing          PricingTuning     `mapstructure:"pricing"`
}

type KitchenTuning struct {
	QueueCapacity     int           `mapstructure:"queueCapacity"`
	RetryInterval     time.Duration `mapstructure:"retryInterval"`
	MaxAttempts       int           `mapstructure:"maxAttempts"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"`
	PongTimeout       time.Duration `mapstructure:"pongTimeout"`
}

type PersistenceTuning struct {
	IDAllocationAttempts int           `mapstructure:"idAllocationAttempts"`
	ReadRetries          int           `mapstructure:"readRetries"`
	ReadBackoff          time.Duration `mapstructure:"readBackoff"`
}

type PricingTuning struct {
	DeliveryFee string `mapstructure:"deliveryFee"`
	ServiceRate string `mapstructure:"serviceRate"`
	VATRate     string `mapstructure:"vatRate"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CoalesceWindow:   0,
		FeedPollInterval: 2 * time.Second,
		Kitchen: KitchenTuning{
			QueueCapacity:     256,
			RetryInterval:     3 * time.Second,
			MaxAttempts:       5,
			HeartbeatInterval: 20 * time.Second,
			PongTimeout:       10 * time.Second,
		},
		Persistence: PersistenceTuning{
			IDAllocationAttempts: 3,
			ReadRetries:          3,
			ReadBackoff:          200 * time.Millisecond,
		},
		Pricing: PricingTuning{
			DeliveryFee: "0",
			ServiceRate: "0",
			VATRate:     "0",
		},
	}
}

// EngineConfigHolder keeps the current EngineConfig and swaps it atomically
// when engine.yml changes on disk.
type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

// NewStaticEngineConfigHolder wraps a fixed configuration, mainly for tests.
func NewStaticEngineConfigHolder(cfg EngineConfig) *EngineConfigHolder {
	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewEngineConfigHolder(log *zap.Logger) (*EngineConfigHolder, error) {
	log = log.Named("config.engine")
	v := viper.New()

	v.SetConfigName("engine")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/ordersync")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ORDERSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEngineConfig()
	v.SetDefault("engine.coalesceWindow", defaults.CoalesceWindow)
	v.SetDefault("engine.feedPollInterval", defaults.FeedPollInterval)
	v.SetDefault("engine.kitchen.queueCapacity", defaults.Kitchen.QueueCapacity)
	v.SetDefault("engine.kitchen.retryInterval", defaults.Kitchen.RetryInterval)
	v.SetDefault("engine.kitchen.maxAttempts", defaults.Kitchen.MaxAttempts)
	v.SetDefault("engine.kitchen.heartbeatInterval", defaults.Kitchen.HeartbeatInterval)
	v.SetDefault("engine.kitchen.pongTimeout", defaults.Kitchen.PongTimeout)
	v.SetDefault("engine.persistence.idAllocationAttempts", defaults.Persistence.IDAllocationAttempts)
	v.SetDefault("engine.persistence.readRetries", defaults.Persistence.ReadRetries)
	v.SetDefault("engine.persistence.readBackoff", defaults.Persistence.ReadBackoff)
	v.SetDefault("engine.pricing.deliveryFee", defaults.Pricing.DeliveryFee)
	v.SetDefault("engine.pricing.serviceRate", defaults.Pricing.ServiceRate)
	v.SetDefault("engine.pricing.vatRate", defaults.Pricing.VATRate)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg EngineConfig
	if err := v.UnmarshalKey("engine", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateEngineConfig(cfg); err != nil {
		return nil, err
	}

	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EngineConfig
		if err := v.UnmarshalKey("engine", &updated); err != nil {
			log.Warn("engine config reload failed", zap.Error(err))
			return
		}
		if err := ValidateEngineConfig(updated); err != nil {
			log.Warn("invalid engine config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("engine config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *EngineConfigHolder) Get() EngineConfig {
	if h == nil {
		return DefaultEngineConfig()
	}
	return h.current.Load().(EngineConfig)
}

func ValidateEngineConfig(cfg EngineConfig) error {
	if cfg.CoalesceWindow < 0 {
		return errors.New("engine.coalesceWindow cannot be negative")
	}
	if cfg.FeedPollInterval < 0 {
		return errors.New("engine.feedPollInterval cannot be negative")
	}
	if cfg.Kitchen.QueueCapacity <= 0 {
		return errors.New("engine.kitchen.queueCapacity must be positive")
	}
	if cfg.Kitchen.MaxAttempts <= 0 {
		return errors.New("engine.kitchen.maxAttempts must be positive")
	}
	if cfg.Kitchen.RetryInterval <= 0 {
		return errors.New("engine.kitchen.retryInterval must be positive")
	}
	if cfg.Persistence.IDAllocationAttempts <= 0 {
		return errors.New("engine.persistence.idAllocationAttempts must be positive")
	}
	if cfg.Persistence.ReadRetries < 0 {
		return errors.New("engine.persistence.readRetries cannot be negative")
	}
	return nil
}
