// Package config loads predictgrid's configuration: a struct of
// mapstructure-tagged sections, sane defaults, a YAML file, and
// PG_-prefixed environment overrides via viper.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	pgtls "github.com/predictgrid/predictgrid/internal/security/tls"
	"github.com/predictgrid/predictgrid/internal/observability/tracing"
)

// Config holds the application configuration.
type Config struct {
	Master MasterConfig `mapstructure:"master"`
	Worker WorkerConfig `mapstructure:"worker"`
	Log    LogConfig    `mapstructure:"log"`
}

// MasterConfig holds master-specific settings.
type MasterConfig struct {
	GRPCPort         int           `mapstructure:"grpc_port"`
	HTTPPort         int           `mapstructure:"http_port"`
	AuthToken        string        `mapstructure:"auth_token"`
	MDNSEnable       bool          `mapstructure:"mdns_enable"`
	HeartbeatTTL     time.Duration `mapstructure:"heartbeat_ttl"`
	MaxPingTimes     int           `mapstructure:"max_ping_times"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	WorkerRound      int           `mapstructure:"worker_round"`
	AdmissionCap     int           `mapstructure:"admission_cap"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MetricsPort      int           `mapstructure:"metrics_port"`
	TLS              pgtls.Config  `mapstructure:"tls"`
	Tracing          tracing.Config `mapstructure:"tracing"`
}

// WorkerConfig holds worker-specific settings.
type WorkerConfig struct {
	Port         int          `mapstructure:"port"`
	MasterAddr   string       `mapstructure:"master_addr"`
	AuthToken    string       `mapstructure:"auth_token"`
	ServableName string       `mapstructure:"servable_name"`
	BatchSize    int          `mapstructure:"batch_size"`
	TLS          pgtls.Config `mapstructure:"tls"`
	Tracing      tracing.Config `mapstructure:"tracing"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Master: MasterConfig{
			GRPCPort:       9000,
			HTTPPort:       8080,
			MDNSEnable:     true,
			HeartbeatTTL:   60 * time.Second,
			MaxPingTimes:   10,
			PingTimeout:    1 * time.Second,
			WorkerRound:    3,
			AdmissionCap:   1024,
			RequestTimeout: 120 * time.Second,
			MetricsPort:    9100,
			TLS:            pgtls.DefaultConfig(),
			Tracing:        tracing.MasterConfig(),
		},
		Worker: WorkerConfig{
			Port:      9001,
			BatchSize: 1,
			TLS:       pgtls.DefaultConfig(),
			Tracing:   tracing.WorkerConfig(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from file and environment, file values win over
// defaults and env wins over the file, matching viper's precedence order.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("predictgrid")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/predictgrid")
		v.AddConfigPath("/etc/predictgrid")
	}

	v.SetEnvPrefix("PG")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("master.grpc_port", cfg.Master.GRPCPort)
	v.SetDefault("master.http_port", cfg.Master.HTTPPort)
	v.SetDefault("master.mdns_enable", cfg.Master.MDNSEnable)
	v.SetDefault("master.heartbeat_ttl", cfg.Master.HeartbeatTTL)
	v.SetDefault("master.max_ping_times", cfg.Master.MaxPingTimes)
	v.SetDefault("master.ping_timeout", cfg.Master.PingTimeout)
	v.SetDefault("master.worker_round", cfg.Master.WorkerRound)
	v.SetDefault("master.admission_cap", cfg.Master.AdmissionCap)
	v.SetDefault("master.request_timeout", cfg.Master.RequestTimeout)
	v.SetDefault("master.metrics_port", cfg.Master.MetricsPort)
	v.SetDefault("master.tls.enabled", cfg.Master.TLS.Enabled)
	v.SetDefault("master.tls.min_version", cfg.Master.TLS.MinVersion)
	v.SetDefault("master.tracing.enable", cfg.Master.Tracing.Enable)
	v.SetDefault("master.tracing.endpoint", cfg.Master.Tracing.Endpoint)
	v.SetDefault("master.tracing.service_name", cfg.Master.Tracing.ServiceName)
	v.SetDefault("master.tracing.sample_rate", cfg.Master.Tracing.SampleRate)

	v.SetDefault("worker.port", cfg.Worker.Port)
	v.SetDefault("worker.batch_size", cfg.Worker.BatchSize)
	v.SetDefault("worker.tls.enabled", cfg.Worker.TLS.Enabled)
	v.SetDefault("worker.tls.min_version", cfg.Worker.TLS.MinVersion)
	v.SetDefault("worker.tracing.enable", cfg.Worker.Tracing.Enable)
	v.SetDefault("worker.tracing.endpoint", cfg.Worker.Tracing.Endpoint)
	v.SetDefault("worker.tracing.service_name", cfg.Worker.Tracing.ServiceName)
	v.SetDefault("worker.tracing.sample_rate", cfg.Worker.Tracing.SampleRate)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

// WriteExample writes an example config file.
func WriteExample(path string) error {
	example := `# predictgrid configuration

master:
  grpc_port: 9000
  http_port: 8080
  auth_token: ""
  mdns_enable: true
  heartbeat_ttl: 60s
  max_ping_times: 10
  ping_timeout: 1s
  worker_round: 3        # per-worker credit ceiling
  admission_cap: 1024
  request_timeout: 120s
  metrics_port: 9100
  tls:
    enabled: false
    cert_file: ""
    key_file: ""
    client_ca: ""
    require_client_cert: false
  tracing:
    enable: false
    endpoint: "localhost:4317"
    service_name: "pg-master"
    sample_rate: 0.1

worker:
  port: 9001
  master_addr: ""        # empty for mDNS auto-discovery
  auth_token: ""
  servable_name: ""
  batch_size: 1
  tls:
    enabled: false
    cert_file: ""
    key_file: ""
    client_ca: ""
    require_client_cert: false
  tracing:
    enable: false
    endpoint: "localhost:4317"
    service_name: "pg-worker"
    sample_rate: 0.1

log:
  level: info             # debug, info, warn, error
  format: console         # console, json
  # file: /var/log/predictgrid.log
`
	return os.WriteFile(path, []byte(example), 0644)
}
