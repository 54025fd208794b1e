package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"pairlab/internal/stimuli"
)

func validateConfig(cfg Config, out io.Writer) error {
	set := stimuli.Default()
	if cfg.StimuliFile != "" {
		loaded, err := stimuli.LoadFile(cfg.StimuliFile)
		if err != nil {
			return err
		}
		set = loaded
	}

	if cfg.ConfigFile != "" {
		fmt.Fprintf(out, "config file: %s\n", cfg.ConfigFile)
	}
	keys := make([]string, 0, len(cfg.Sources))
	for key := range cfg.Sources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "%-24s %-24s (%s)\n", key, displayValue(cfg, key), cfg.Sources[key])
	}
	fmt.Fprintf(out, "stimuli: %s, %d trials, choices %s\n", set.Name, len(set.Targets), strings.Join(set.Choices, ", "))
	fmt.Fprintln(out, "config ok")
	return nil
}

func displayValue(cfg Config, key string) string {
	switch key {
	case "host":
		return cfg.Host
	case "port":
		return fmt.Sprint(cfg.Port)
	case "token":
		if cfg.AuthToken == "" {
			return "(none)"
		}
		return "(set)"
	case "allowed-origins":
		if len(cfg.AllowedOrigins) == 0 {
			return "(same host)"
		}
		return strings.Join(cfg.AllowedOrigins, ",")
	case "stimuli-file":
		if cfg.StimuliFile == "" {
			return "(built-in)"
		}
		return cfg.StimuliFile
	case "results-dsn":
		if cfg.ResultsDSN == "" {
			return "(disabled)"
		}
		scheme, _, _ := strings.Cut(cfg.ResultsDSN, "://")
		return scheme + "://..."
	case "log-level":
		return string(cfg.LogLevel)
	case "rate-limit":
		return fmt.Sprint(cfg.RateLimit)
	case "rate-burst":
		return fmt.Sprint(cfg.RateBurst)
	case "send-buffer":
		return fmt.Sprint(cfg.SendBuffer)
	case "otel-endpoint":
		if cfg.OTelEndpoint == "" {
			return "(disabled)"
		}
		return cfg.OTelEndpoint
	case "otel-resource-attributes":
		return cfg.OTelResources
	}
	return ""
}
