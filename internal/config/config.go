// Package config loads the engine and agent settings from YAML.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"kitascrape-engine/internal/domain"
)

type Config struct {
	App       AppConfig            `yaml:"app"`
	Log       LogConfig            `yaml:"log"`
	Executor  ExecutorConfig       `yaml:"executor"`
	Session   domain.SessionConfig `yaml:"session"`
	History   HistoryConfig        `yaml:"history"`
	Simulator SimulatorConfig      `yaml:"simulator"`
	Agent     AgentConfig          `yaml:"agent"`
}

type AppConfig struct {
	Listen  string `yaml:"listen" validate:"required,hostname_port"`
	DataDir string `yaml:"data_dir"`
	// ShutdownToken guards POST /shutdown. When empty the engine generates one
	// and writes it to <data_dir>/shutdown.token.
	ShutdownToken string `yaml:"shutdown_token"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type ExecutorConfig struct {
	Mode   string       `yaml:"mode" validate:"oneof=simulator remote"`
	Remote RemoteConfig `yaml:"remote"`
}

type RemoteConfig struct {
	BaseURL        string          `yaml:"base_url" validate:"omitempty,url"`
	RequestTimeout time.Duration   `yaml:"request_timeout" validate:"gte=0"`
	PingInterval   time.Duration   `yaml:"ping_interval" validate:"gte=0"`
	Reconnect      ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" validate:"gte=1,lte=100"`
	InitialDelay time.Duration `yaml:"initial_delay" validate:"gt=0"`
	MaxDelay     time.Duration `yaml:"max_delay" validate:"gtefield=InitialDelay"`
}

type HistoryConfig struct {
	Backend  string `yaml:"backend" validate:"oneof=sqlite file"`
	Capacity int    `yaml:"capacity" validate:"gte=1,lte=100"`
	File     string `yaml:"file" validate:"required"`
	DB       string `yaml:"db" validate:"required"`
}

type SimulatorConfig struct {
	Cities      []string      `yaml:"cities" validate:"dive,required"`
	MinItems    int           `yaml:"min_items" validate:"gte=1"`
	MaxItems    int           `yaml:"max_items" validate:"gtefield=MinItems"`
	FailureRate float64       `yaml:"failure_rate" validate:"gte=0,lte=1"`
	MaxLatency  time.Duration `yaml:"max_latency" validate:"gte=0"`
}

type AgentConfig struct {
	Listen      string        `yaml:"listen" validate:"required,hostname_port"`
	StatsResend time.Duration `yaml:"stats_resend" validate:"gte=0"`
}

// Default returns the settings used when no file provides them.
func Default() Config {
	return Config{
		App: AppConfig{Listen: "127.0.0.1:38471", DataDir: "."},
		Log: LogConfig{Level: "info", Format: "text"},
		Executor: ExecutorConfig{
			Mode: "simulator",
			Remote: RemoteConfig{
				BaseURL:        "http://127.0.0.1:5000",
				RequestTimeout: 10 * time.Second,
				PingInterval:   30 * time.Second,
				Reconnect: ReconnectConfig{
					MaxAttempts:  5,
					InitialDelay: 500 * time.Millisecond,
					MaxDelay:     5 * time.Second,
				},
			},
		},
		Session: domain.SessionConfig{DelayMs: 2000, MaxRetries: 3, TimeoutMs: 30000, ExtractDetails: true},
		History: HistoryConfig{Backend: "sqlite", Capacity: 10, File: "history.json", DB: "kitascrape.db"},
		Simulator: SimulatorConfig{
			Cities:     []string{"Stadt A", "Stadt B", "Stadt C", "Stadt D"},
			MinItems:   3,
			MaxItems:   10,
			MaxLatency: 200 * time.Millisecond,
		},
		Agent: AgentConfig{Listen: "127.0.0.1:5000", StatsResend: 5 * time.Second},
	}
}

// Load reads path over the defaults, so a partial file only overrides what
// it names.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
