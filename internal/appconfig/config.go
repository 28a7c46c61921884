// Package appconfig loads the ambient configuration for the cmd/ binaries:
// gateway listen address, log level, and the decoder defaults a caller
// hasn't overridden per-request. Configuration is never read by the
// decoder packages themselves — only by the surrounding binaries.
package appconfig

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the ambient process configuration, loaded once and cached.
type Config struct {
	ListenAddr       string
	LogLevel         string
	DefaultWheelType string
	Password         string
	BenchIntervalMS  int
}

var (
	loaded    *Config
	loadedSet bool
)

// Load returns the process configuration, reading a .env file from the
// working directory if it has one, else from the nearest ancestor
// directory containing go.mod, and then applying any
// environment variable overrides. The result is cached after the first
// call.
func Load() *Config {
	if loadedSet {
		return loaded
	}

	cfg := &Config{
		ListenAddr:       ":8080",
		LogLevel:         "info",
		DefaultWheelType: "auto",
		BenchIntervalMS:  1000,
	}

	root := findProjectRoot()
	if data, err := os.ReadFile(filepath.Join(root, ".env")); err == nil {
		parseEnvFile(string(data), cfg)
	}

	applyEnvOverrides(cfg)

	loaded = cfg
	loadedSet = true
	return loaded
}

func parseEnvFile(content string, cfg *Config) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		applyKV(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), cfg)
	}
}

func applyEnvOverrides(cfg *Config) {
	for _, key := range []string{
		"WHEEL_LISTEN_ADDR", "WHEEL_LOG_LEVEL", "WHEEL_DEFAULT_TYPE",
		"WHEEL_PASSWORD", "WHEEL_BENCH_INTERVAL_MS",
	} {
		if v := os.Getenv(key); v != "" {
			applyKV(key, v, cfg)
		}
	}
}

func applyKV(key, value string, cfg *Config) {
	switch key {
	case "WHEEL_LISTEN_ADDR":
		cfg.ListenAddr = value
	case "WHEEL_LOG_LEVEL":
		cfg.LogLevel = value
	case "WHEEL_DEFAULT_TYPE":
		cfg.DefaultWheelType = value
	case "WHEEL_PASSWORD":
		cfg.Password = value
	case "WHEEL_BENCH_INTERVAL_MS":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.BenchIntervalMS = n
		}
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
