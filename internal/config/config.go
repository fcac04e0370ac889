package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

// Network is one entry of the networks list.
type Network struct {
	Name        string   `mapstructure:"name"`
	RPCURLs     []string `mapstructure:"rpc-urls"`
	FromBlock   int64    `mapstructure:"from-block"`
	DataToFetch string   `mapstructure:"data-to-fetch"`
	Lag         int64    `mapstructure:"lag"`
	BatchSize   int64    `mapstructure:"batch-size"`

	// Mode is DataToFetch after validation.
	Mode model.DataToFetch `mapstructure:"-"`
}

// Cache selects and configures the cache backend.
type Cache struct {
	Driver        string
	Path          string
	DSN           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Networks        []Network
	BatchSize       int64
	UseRegistry     bool
	RegistryURLs    []string
	RegistryOffline bool
	Trim            bool
	SyncWindow      time.Duration
	MetricsAddr     string
	OutDir          string
	Resume          bool
	Cache           Cache
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	networks, err := loadNetworks(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Networks:        networks,
		BatchSize:       v.GetInt64("batch-size"),
		UseRegistry:     v.GetBool("use-registry"),
		RegistryURLs:    getStringSlice(v, "registry-urls"),
		RegistryOffline: v.GetBool("registry-offline"),
		Trim:            v.GetBool("trim"),
		SyncWindow:      v.GetDuration("sync-window"),
		MetricsAddr:     v.GetString("metrics-addr"),
		OutDir:          v.GetString("out-dir"),
		Resume:          v.GetBool("resume"),
		Cache: Cache{
			Driver:        v.GetString("cache.driver"),
			Path:          v.GetString("cache.path"),
			DSN:           v.GetString("cache.dsn"),
			RedisAddr:     v.GetString("cache.redis-addr"),
			RedisPassword: v.GetString("cache.redis-password"),
			RedisDB:       v.GetInt("cache.redis-db"),
		},
		LogLevel: v.GetString("log-level"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the networks and normalizes their modes and batch sizes.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than zero")
	}
	driver, err := storage.ParseDriver(c.Cache.Driver)
	if err != nil {
		return err
	}
	c.Cache.Driver = driver

	if len(c.Networks) == 0 {
		return fmt.Errorf("at least one network is required")
	}
	seen := make(map[string]struct{}, len(c.Networks))
	for i := range c.Networks {
		n := &c.Networks[i]
		if err := n.validate(c.BatchSize, c.UseRegistry); err != nil {
			return fmt.Errorf("network %d: %w", i, err)
		}
		if _, ok := seen[n.Name]; ok {
			return fmt.Errorf("network %s configured twice", n.Name)
		}
		seen[n.Name] = struct{}{}
	}
	return nil
}

func (n *Network) validate(defaultBatch int64, useRegistry bool) error {
	n.Name = strings.ToLower(strings.TrimSpace(n.Name))
	if n.Name == "" {
		return fmt.Errorf("name is required")
	}
	if n.FromBlock < 0 {
		return fmt.Errorf("from-block must be >= 0")
	}
	if n.Lag < 0 {
		return fmt.Errorf("lag must be >= 0")
	}
	if n.BatchSize < 0 {
		return fmt.Errorf("batch-size must be >= 0")
	}
	if n.BatchSize == 0 {
		n.BatchSize = defaultBatch
	}
	mode, err := model.ParseDataToFetch(n.DataToFetch)
	if err != nil {
		return err
	}
	n.Mode = mode
	n.RPCURLs = cleanStrings(n.RPCURLs)
	if len(n.RPCURLs) == 0 && !useRegistry {
		return fmt.Errorf("%s: rpc-urls are required when use-registry is off", n.Name)
	}
	return nil
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("batch-size", int64(10))
	v.SetDefault("use-registry", true)
	v.SetDefault("registry-offline", false)
	v.SetDefault("trim", false)
	v.SetDefault("sync-window", 30*time.Second)
	v.SetDefault("out-dir", "./data")
	v.SetDefault("resume", true)
	v.SetDefault("cache.driver", storage.DriverNone)
	v.SetDefault("cache.path", "./data/cache.db")
	v.SetDefault("cache.redis-db", 0)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// loadNetworks reads the networks list, or a single network from the --network flags.
func loadNetworks(v *viper.Viper) ([]Network, error) {
	if name := strings.TrimSpace(v.GetString("network")); name != "" {
		return []Network{{
			Name:        name,
			RPCURLs:     getStringSlice(v, "rpc"),
			FromBlock:   v.GetInt64("from"),
			DataToFetch: v.GetString("mode"),
			Lag:         v.GetInt64("lag"),
		}}, nil
	}

	var networks []Network
	if err := v.UnmarshalKey("networks", &networks); err != nil {
		return nil, fmt.Errorf("parse networks: %w", err)
	}
	return networks, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
