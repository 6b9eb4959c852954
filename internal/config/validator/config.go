package validator_config

import (
	"github.com/vigilnet/vigil/internal/obs"
	vsvc "github.com/vigilnet/vigil/internal/services/validator"
)

type ValidatorCfg struct {
	HubURL      string `mapstructure:"hub_url"`
	IP          string `mapstructure:"ip"`
	KeyFile     string `mapstructure:"key_file"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type Config struct {
	Validator ValidatorCfg     `mapstructure:"validator"`
	Probe     vsvc.ProbeConfig `mapstructure:"probe"`
	Log       obs.LogConfig    `mapstructure:"log"`
	OTEL      obs.OTELConfig   `mapstructure:"otel"`
}
