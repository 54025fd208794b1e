package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pairlab/internal/logging"

	"github.com/spf13/pflag"
)

func newTestFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	registerConfigFlags(flags)
	if err := flags.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return flags
}

func envMap(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pairlab.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(newTestFlags(t), envMap(nil))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != defaultPort || cfg.Host != defaultHost {
		t.Fatalf("unexpected listen address %s", cfg.Addr())
	}
	if cfg.LogLevel != logging.LevelInfo || cfg.RateLimit != 20 || cfg.RateBurst != 40 || cfg.SendBuffer != 64 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ConfigFile != "" {
		t.Fatalf("expected no config file, got %q", cfg.ConfigFile)
	}
	for key, source := range cfg.Sources {
		if source != sourceDefault {
			t.Fatalf("expected %s from default, got %s", key, source)
		}
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = 9100
host = "127.0.0.1"
allowed-origins = ["survey.example"]
rate-burst = 10

[results]
dsn = "sqlite:///tmp/pairlab.db"

[logging]
level = "debug"
`)
	flags := newTestFlags(t, "--config", path, "--port", "9300")
	env := envMap(map[string]string{
		"PAIRLAB_PORT":      "9200",
		"PAIRLAB_LOG_LEVEL": "warn",
		"PAIRLAB_TOKEN":     "from-env",
	})

	cfg, err := loadConfig(flags, env)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	cases := []struct {
		key    string
		source configSource
	}{
		{key: "port", source: sourceFlag},
		{key: "host", source: sourceFile},
		{key: "log-level", source: sourceEnv},
		{key: "token", source: sourceEnv},
		{key: "allowed-origins", source: sourceFile},
		{key: "rate-burst", source: sourceFile},
		{key: "results-dsn", source: sourceFile},
		{key: "send-buffer", source: sourceDefault},
	}
	for _, tc := range cases {
		if cfg.Sources[tc.key] != tc.source {
			t.Fatalf("expected %s from %s, got %s", tc.key, tc.source, cfg.Sources[tc.key])
		}
	}
	if cfg.Port != 9300 || cfg.Host != "127.0.0.1" || cfg.AuthToken != "from-env" {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if cfg.LogLevel != logging.LevelWarning {
		t.Fatalf("expected warning level, got %q", cfg.LogLevel)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "survey.example" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
	if cfg.ConfigFile != path {
		t.Fatalf("expected config file %s, got %s", path, cfg.ConfigFile)
	}
}

func TestLoadConfigAllowedOriginsFromEnvAndFlags(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(newTestFlags(t), envMap(map[string]string{
		"PAIRLAB_ALLOWED_ORIGINS": "a.example, b.example,",
	}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "a.example|b.example" {
		t.Fatalf("unexpected env origins: %v", cfg.AllowedOrigins)
	}

	flags := newTestFlags(t, "--allowed-origin", "c.example", "--allowed-origin", "d.example")
	cfg, err = loadConfig(flags, envMap(map[string]string{"PAIRLAB_ALLOWED_ORIGINS": "a.example"}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "c.example|d.example" {
		t.Fatalf("unexpected flag origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())

	cases := []struct {
		name  string
		args  []string
		env   map[string]string
		match string
	}{
		{name: "port range", args: []string{"--port", "70000"}, match: "invalid port"},
		{name: "env port", env: map[string]string{"PAIRLAB_PORT": "nine"}, match: "PAIRLAB_PORT"},
		{name: "log level", args: []string{"--log-level", "loud"}, match: "invalid log-level"},
		{name: "rate limit", args: []string{"--rate-limit", "0"}, match: "invalid rate-limit"},
		{name: "send buffer", env: map[string]string{"PAIRLAB_SEND_BUFFER": "-1"}, match: "invalid send-buffer"},
		{name: "dsn", args: []string{"--results", "mysql://db/pairlab"}, match: "invalid results-dsn"},
	}
	for _, tc := range cases {
		_, err := loadConfig(newTestFlags(t, tc.args...), envMap(tc.env))
		if err == nil || !strings.Contains(err.Error(), tc.match) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.match, err)
		}
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")
	if _, err := loadConfig(newTestFlags(t, "--config", missing), envMap(nil)); err == nil {
		t.Fatalf("expected error for explicit missing config")
	}

	path := writeConfigFile(t, "[server]\nprot = 9001\n")
	_, err := loadConfig(newTestFlags(t), envMap(map[string]string{"PAIRLAB_CONFIG": path}))
	if err == nil || !strings.Contains(err.Error(), "unknown key server.prot") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadConfigReadsDefaultFileInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, defaultConfigFile), []byte("[server]\nport = 9555\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Chdir(dir)

	cfg, err := loadConfig(newTestFlags(t), envMap(nil))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != 9555 || cfg.Sources["port"] != sourceFile {
		t.Fatalf("expected port from file, got %d (%s)", cfg.Port, cfg.Sources["port"])
	}
}
