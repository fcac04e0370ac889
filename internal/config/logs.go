package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/pflag"
)

// LogsConfig holds configuration for the logs command.
type LogsConfig struct {
	Config
	// Query holds key=value event conditions, from --query or the query map in the config file.
	Query        []string
	RangeSize    int64
	PollInterval time.Duration
}

// LoadLogs merges config file, environment variables, and flags into LogsConfig.
func LoadLogs(cfgFile string, flags *pflag.FlagSet) (LogsConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return LogsConfig{}, err
	}
	v.SetDefault("range-size", int64(100))
	v.SetDefault("poll-interval", time.Minute)

	base, err := fromViper(v)
	if err != nil {
		return LogsConfig{}, err
	}

	query := getStringSlice(v, "query")
	extra := getStringMap(v, "query-map")
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		query = append(query, k+"="+extra[k])
	}

	cfg := LogsConfig{
		Config:       base,
		Query:        query,
		RangeSize:    v.GetInt64("range-size"),
		PollInterval: v.GetDuration("poll-interval"),
	}
	if len(cfg.Query) == 0 {
		return LogsConfig{}, fmt.Errorf("at least one query condition is required")
	}
	if cfg.RangeSize <= 0 {
		return LogsConfig{}, fmt.Errorf("range-size must be greater than zero")
	}
	return cfg, nil
}
