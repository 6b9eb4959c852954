package validator_config

import (
	"strings"

	"github.com/spf13/viper"
)

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	v.SetDefault("validator.hub_url", "ws://localhost:8081/ws")
	v.SetDefault("validator.ip", "")
	v.SetDefault("validator.key_file", "validator.key")
	v.SetDefault("validator.metrics_addr", ":9092")

	v.SetDefault("probe.timeout", "5s")
	v.SetDefault("probe.user_agent", "Vigil/1.0")
	v.SetDefault("probe.follow_redirects", true)
	v.SetDefault("probe.verify_tls", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.app", "validator")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "validator")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
