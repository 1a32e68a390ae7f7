package config

import (
	"os"
	"strings"
)

// Environment overrides, applied after the file.
const (
	EnvDataDir      = "KITASCRAPE_DATA_DIR"
	EnvExecutorMode = "KITASCRAPE_EXECUTOR_MODE"
	EnvRemoteURL    = "KITASCRAPE_REMOTE_URL"
	EnvListen       = "KITASCRAPE_LISTEN"
	EnvShutdown     = "KITASCRAPE_SHUTDOWN_TOKEN"
)

// OverlayEnv copies any set override into cfg.
func OverlayEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.App.DataDir, EnvDataDir)
	set(&cfg.Executor.Mode, EnvExecutorMode)
	set(&cfg.Executor.Remote.BaseURL, EnvRemoteURL)
	set(&cfg.App.Listen, EnvListen)
	set(&cfg.App.ShutdownToken, EnvShutdown)
}
