package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"pairlab/internal/gateway"
	"pairlab/internal/logging"
	"pairlab/internal/results"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

const (
	defaultPort       = 9001
	defaultHost       = "0.0.0.0"
	defaultConfigFile = "pairlab.toml"
)

type Config struct {
	Host           string
	Port           int
	AuthToken      string
	AllowedOrigins []string
	StimuliFile    string
	ResultsDSN     string
	LogLevel       logging.Level
	RateLimit      float64
	RateBurst      int
	SendBuffer     int
	OTelEndpoint   string
	OTelResources  string
	ConfigFile     string
	Sources        map[string]configSource
}

type configSource string

const (
	sourceDefault configSource = "default"
	sourceFile    configSource = "file"
	sourceEnv     configSource = "env"
	sourceFlag    configSource = "flag"
)

// fileConfig mirrors pairlab.toml.
type fileConfig struct {
	Server struct {
		Host           string   `toml:"host"`
		Port           int      `toml:"port"`
		Token          string   `toml:"token"`
		AllowedOrigins []string `toml:"allowed-origins"`
		RateLimit      float64  `toml:"rate-limit"`
		RateBurst      int      `toml:"rate-burst"`
		SendBuffer     int      `toml:"send-buffer"`
	} `toml:"server"`
	Experiment struct {
		StimuliFile string `toml:"stimuli-file"`
	} `toml:"experiment"`
	Results struct {
		DSN string `toml:"dsn"`
	} `toml:"results"`
	Logging struct {
		Level string `toml:"level"`
	} `toml:"logging"`
	Telemetry struct {
		OTLPEndpoint       string `toml:"otlp-endpoint"`
		ResourceAttributes string `toml:"resource-attributes"`
	} `toml:"telemetry"`
}

// configKey binds one setting to its place in each layer.
type configKey struct {
	name string
	file []string
	env  string
	flag string
}

var (
	keyHost           = configKey{name: "host", file: []string{"server", "host"}, env: "PAIRLAB_HOST", flag: "host"}
	keyPort           = configKey{name: "port", file: []string{"server", "port"}, env: "PAIRLAB_PORT", flag: "port"}
	keyToken          = configKey{name: "token", file: []string{"server", "token"}, env: "PAIRLAB_TOKEN", flag: "token"}
	keyAllowedOrigins = configKey{name: "allowed-origins", file: []string{"server", "allowed-origins"}, env: "PAIRLAB_ALLOWED_ORIGINS", flag: "allowed-origin"}
	keyRateLimit      = configKey{name: "rate-limit", file: []string{"server", "rate-limit"}, env: "PAIRLAB_RATE_LIMIT", flag: "rate-limit"}
	keyRateBurst      = configKey{name: "rate-burst", file: []string{"server", "rate-burst"}, env: "PAIRLAB_RATE_BURST", flag: "rate-burst"}
	keySendBuffer     = configKey{name: "send-buffer", file: []string{"server", "send-buffer"}, env: "PAIRLAB_SEND_BUFFER", flag: "send-buffer"}
	keyStimuliFile    = configKey{name: "stimuli-file", file: []string{"experiment", "stimuli-file"}, env: "PAIRLAB_STIMULI_FILE", flag: "stimuli"}
	keyResultsDSN     = configKey{name: "results-dsn", file: []string{"results", "dsn"}, env: "PAIRLAB_RESULTS_DSN", flag: "results"}
	keyLogLevel       = configKey{name: "log-level", file: []string{"logging", "level"}, env: "PAIRLAB_LOG_LEVEL", flag: "log-level"}
	keyOTelEndpoint   = configKey{name: "otel-endpoint", file: []string{"telemetry", "otlp-endpoint"}, env: "PAIRLAB_OTEL_ENDPOINT", flag: "otel-endpoint"}
	keyOTelResources  = configKey{name: "otel-resource-attributes", file: []string{"telemetry", "resource-attributes"}, env: "PAIRLAB_OTEL_RESOURCE_ATTRIBUTES", flag: "otel-resource-attributes"}
)

func defaultConfig() Config {
	return Config{
		Host:       defaultHost,
		Port:       defaultPort,
		LogLevel:   logging.LevelInfo,
		RateLimit:  gateway.DefaultRateLimit,
		RateBurst:  gateway.DefaultRateBurst,
		SendBuffer: gateway.DefaultSendBuffer,
		Sources:    make(map[string]configSource),
	}
}

// registerConfigFlags adds the flags loadConfig reads. Defaults shown in
// help are the built-in ones; a flag only wins when it is set explicitly.
func registerConfigFlags(flags *pflag.FlagSet) {
	defaults := defaultConfig()
	flags.String("config", "", "path to pairlab.toml (env PAIRLAB_CONFIG)")
	flags.String(keyHost.flag, defaults.Host, "listen host")
	flags.Int(keyPort.flag, defaults.Port, "listen port")
	flags.String(keyToken.flag, "", "shared auth token for /ws and experimenter endpoints")
	flags.StringSlice(keyAllowedOrigins.flag, nil, "allowed websocket origin (repeatable)")
	flags.String(keyStimuliFile.flag, "", "YAML stimulus set, hot reloaded")
	flags.String(keyResultsDSN.flag, "", "results store DSN (sqlite://path or postgres://...)")
	flags.String(keyLogLevel.flag, string(defaults.LogLevel), "minimum log level")
	flags.Float64(keyRateLimit.flag, defaults.RateLimit, "inbound messages per second per connection")
	flags.Int(keyRateBurst.flag, defaults.RateBurst, "inbound message burst per connection")
	flags.Int(keySendBuffer.flag, defaults.SendBuffer, "outbound commands buffered per connection")
	flags.String(keyOTelEndpoint.flag, "", "OTLP/HTTP collector for connection spans; empty disables export")
	flags.String(keyOTelResources.flag, "", "extra trace resource attributes as k=v,k2=v2")
}

type configLoader struct {
	flags  *pflag.FlagSet
	getenv func(string) string
	meta   toml.MetaData
	file   fileConfig
	cfg    *Config
}

// loadConfig layers defaults, the TOML file, PAIRLAB_* variables and flags,
// in that order, and records where each value came from.
func loadConfig(flags *pflag.FlagSet, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := defaultConfig()
	loader := &configLoader{flags: flags, getenv: getenv, cfg: &cfg}

	path, explicit := loader.configPath()
	if path != "" {
		meta, err := toml.DecodeFile(path, &loader.file)
		switch {
		case err == nil:
			loader.meta = meta
			cfg.ConfigFile = path
			if undecoded := meta.Undecoded(); len(undecoded) > 0 {
				return Config{}, fmt.Errorf("config %s: unknown key %s", path, undecoded[0])
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	file := loader.file
	loader.str(keyHost, file.Server.Host, &cfg.Host)
	if err := loader.int(keyPort, file.Server.Port, &cfg.Port); err != nil {
		return Config{}, err
	}
	loader.str(keyToken, file.Server.Token, &cfg.AuthToken)
	loader.list(keyAllowedOrigins, file.Server.AllowedOrigins, &cfg.AllowedOrigins)
	if err := loader.float(keyRateLimit, file.Server.RateLimit, &cfg.RateLimit); err != nil {
		return Config{}, err
	}
	if err := loader.int(keyRateBurst, file.Server.RateBurst, &cfg.RateBurst); err != nil {
		return Config{}, err
	}
	if err := loader.int(keySendBuffer, file.Server.SendBuffer, &cfg.SendBuffer); err != nil {
		return Config{}, err
	}
	loader.str(keyStimuliFile, file.Experiment.StimuliFile, &cfg.StimuliFile)
	loader.str(keyResultsDSN, file.Results.DSN, &cfg.ResultsDSN)
	loader.str(keyOTelEndpoint, file.Telemetry.OTLPEndpoint, &cfg.OTelEndpoint)
	loader.str(keyOTelResources, file.Telemetry.ResourceAttributes, &cfg.OTelResources)

	level := string(cfg.LogLevel)
	loader.str(keyLogLevel, file.Logging.Level, &level)
	parsed, ok := logging.ParseLevel(level)
	if !ok {
		return Config{}, fmt.Errorf("invalid log-level %q", level)
	}
	cfg.LogLevel = parsed

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l *configLoader) configPath() (string, bool) {
	if l.flags != nil && l.flags.Changed("config") {
		path, _ := l.flags.GetString("config")
		return strings.TrimSpace(path), true
	}
	if path := strings.TrimSpace(l.getenv("PAIRLAB_CONFIG")); path != "" {
		return path, true
	}
	return defaultConfigFile, false
}

func (l *configLoader) flagSet(key configKey) bool {
	return l.flags != nil && l.flags.Lookup(key.flag) != nil && l.flags.Changed(key.flag)
}

func (l *configLoader) str(key configKey, fileValue string, target *string) {
	l.cfg.Sources[key.name] = sourceDefault
	if l.meta.IsDefined(key.file...) {
		*target = strings.TrimSpace(fileValue)
		l.cfg.Sources[key.name] = sourceFile
	}
	if raw := strings.TrimSpace(l.getenv(key.env)); raw != "" {
		*target = raw
		l.cfg.Sources[key.name] = sourceEnv
	}
	if l.flagSet(key) {
		value, _ := l.flags.GetString(key.flag)
		*target = strings.TrimSpace(value)
		l.cfg.Sources[key.name] = sourceFlag
	}
}

func (l *configLoader) int(key configKey, fileValue int, target *int) error {
	l.cfg.Sources[key.name] = sourceDefault
	if l.meta.IsDefined(key.file...) {
		*target = fileValue
		l.cfg.Sources[key.name] = sourceFile
	}
	if raw := strings.TrimSpace(l.getenv(key.env)); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key.env, raw, err)
		}
		*target = parsed
		l.cfg.Sources[key.name] = sourceEnv
	}
	if l.flagSet(key) {
		value, _ := l.flags.GetInt(key.flag)
		*target = value
		l.cfg.Sources[key.name] = sourceFlag
	}
	return nil
}

func (l *configLoader) float(key configKey, fileValue float64, target *float64) error {
	l.cfg.Sources[key.name] = sourceDefault
	if l.meta.IsDefined(key.file...) {
		*target = fileValue
		l.cfg.Sources[key.name] = sourceFile
	}
	if raw := strings.TrimSpace(l.getenv(key.env)); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key.env, raw, err)
		}
		*target = parsed
		l.cfg.Sources[key.name] = sourceEnv
	}
	if l.flagSet(key) {
		value, _ := l.flags.GetFloat64(key.flag)
		*target = value
		l.cfg.Sources[key.name] = sourceFlag
	}
	return nil
}

func (l *configLoader) list(key configKey, fileValue []string, target *[]string) {
	l.cfg.Sources[key.name] = sourceDefault
	if l.meta.IsDefined(key.file...) {
		*target = cleanList(fileValue)
		l.cfg.Sources[key.name] = sourceFile
	}
	if raw := strings.TrimSpace(l.getenv(key.env)); raw != "" {
		*target = cleanList(strings.Split(raw, ","))
		l.cfg.Sources[key.name] = sourceEnv
	}
	if l.flagSet(key) {
		value, _ := l.flags.GetStringSlice(key.flag)
		*target = cleanList(value)
		l.cfg.Sources[key.name] = sourceFlag
	}
}

func cleanList(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			cleaned = append(cleaned, value)
		}
	}
	return cleaned
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if c.Host == "" {
		return errors.New("invalid host: value cannot be empty")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("invalid rate-limit %v: must be > 0", c.RateLimit)
	}
	if c.RateBurst <= 0 {
		return fmt.Errorf("invalid rate-burst %d: must be > 0", c.RateBurst)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("invalid send-buffer %d: must be > 0", c.SendBuffer)
	}
	if c.ResultsDSN != "" {
		if err := results.ValidateDSN(c.ResultsDSN); err != nil {
			return fmt.Errorf("invalid results-dsn: %w", err)
		}
	}
	return nil
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
