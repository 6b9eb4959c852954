package hub_config

import (
	"time"

	"github.com/vigilnet/vigil/internal/obs"
	pginfra "github.com/vigilnet/vigil/internal/repository/postgres"
)

type KafkaCfg struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type HubCfg struct {
	ListenAddr          string        `mapstructure:"listen_addr"`
	MetricsAddr         string        `mapstructure:"metrics_addr"`
	DispatchInterval    time.Duration `mapstructure:"dispatch_interval"`
	RoundTTL            time.Duration `mapstructure:"round_ttl"`
	RewardPerCheck      int64         `mapstructure:"reward_per_check"`
	ConsecutiveRequired int           `mapstructure:"consecutive_required"`
	LookbackWindow      int           `mapstructure:"lookback_window"`
}

type Config struct {
	DB    pginfra.Config `mapstructure:"db"`
	Kafka KafkaCfg       `mapstructure:"kafka"`
	Hub   HubCfg         `mapstructure:"hub"`
	Log   obs.LogConfig  `mapstructure:"log"`
	OTEL  obs.OTELConfig `mapstructure:"otel"`
}
