package notifier_config

import (
	"github.com/vigilnet/vigil/internal/obs"
	pginfra "github.com/vigilnet/vigil/internal/repository/postgres"
	"github.com/vigilnet/vigil/internal/services/alertnotifier"
)

type KafkaIn struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type Server struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type Config struct {
	DB     pginfra.Config           `mapstructure:"db"`
	In     KafkaIn                  `mapstructure:"kafka_in"`
	SMTP   alertnotifier.SMTPConfig `mapstructure:"smtp"`
	Server Server                   `mapstructure:"server"`
	Log    obs.LogConfig            `mapstructure:"log"`
	OTEL   obs.OTELConfig           `mapstructure:"otel"`
}
