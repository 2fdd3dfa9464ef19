package config

import (
	"os"
	"strconv"
)

// Environment overrides.
const (
	EnvPort      = "FANCYCAM_PORT"
	EnvLogLevel  = "FANCYCAM_LOG_LEVEL"
	EnvBackend   = "FANCYCAM_BACKEND"
	EnvDevice    = "FANCYCAM_DEVICE"
	EnvOutputDir = "FANCYCAM_OUTPUT_DIR"
)

// Env returns the value of key, or def when it is unset or empty.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ApplyEnv overrides cfg from FANCYCAM_* variables. A FANCYCAM_DEVICE that is
// not an integer is ignored.
func ApplyEnv(cfg *Config) {
	cfg.Server.Port = Env(EnvPort, cfg.Server.Port)
	cfg.LogLevel = Env(EnvLogLevel, cfg.LogLevel)
	cfg.Backend.Kind = Env(EnvBackend, cfg.Backend.Kind)
	cfg.Server.OutputDir = Env(EnvOutputDir, cfg.Server.OutputDir)

	if v := os.Getenv(EnvDevice); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.Device = n
		}
	}
}
