// Package config loads GhostBridge's process configuration from YAML
// defaults plus environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ghostbridge/pkg/utils"
)

// NetworkConfig carries the "Network" configuration block.
type NetworkConfig struct {
	ServerAddress       string `mapstructure:"server_address"`
	HTTP2Port           int    `mapstructure:"http2_port"`
	HTTP3Port           int    `mapstructure:"http3_port"`
	MetricsAddr         string `mapstructure:"metrics_addr"`
	CertFile            string `mapstructure:"cert_file"`
	KeyFile             string `mapstructure:"key_file"`
	MaxConnections      int    `mapstructure:"max_connections"`
	ConnectionTimeoutMS int    `mapstructure:"connection_timeout_ms"`
	ShutdownGraceMS     int    `mapstructure:"shutdown_grace_period_ms"`
}

// ChannelConfig is one entry of the "Channels" list.
type ChannelConfig struct {
	Type               string `mapstructure:"type"`
	ServiceEndpoint    string `mapstructure:"service_endpoint"`
	MaxStreams         int    `mapstructure:"max_streams"`
	TimeoutMS          int    `mapstructure:"timeout_ms"`
	EncryptionRequired bool   `mapstructure:"encryption_required"`
}

// CacheConfig carries the "Cache" configuration block.
type CacheConfig struct {
	MaxEntries        int `mapstructure:"max_entries"`
	MaxMemoryBytes    int64 `mapstructure:"max_memory_bytes"`
	DefaultTTLSeconds int `mapstructure:"default_ttl"`
	MinTTLSeconds     int `mapstructure:"min_ttl"`
	MaxTTLSeconds     int `mapstructure:"max_ttl"`
	CleanupIntervalMS int `mapstructure:"cleanup_interval_ms"`
	EvictionBatchSize int `mapstructure:"eviction_batch_size"`
}

// ResolverConfig carries the "Resolver" configuration block.
type ResolverConfig struct {
	EnableCache        bool   `mapstructure:"enable_cache"`
	EnableENSBridge    bool   `mapstructure:"enable_ens_bridge"`
	EnableUDBridge     bool   `mapstructure:"enable_ud_bridge"`
	EnableDNSFallback  bool   `mapstructure:"enable_dns_fallback"`
	MaxResolutionMS    int    `mapstructure:"max_resolution_time_ms"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
	ENSEndpoint        string `mapstructure:"ens_endpoint"`
	UDEndpoint         string `mapstructure:"ud_endpoint"`
	DNSFallbackServer  string `mapstructure:"dns_fallback_server"`
	NativeEndpoint     string `mapstructure:"native_endpoint"`
}

// ServiceConfig carries the "Service" configuration block.
type ServiceConfig struct {
	EnableSubscriptions      bool `mapstructure:"enable_subscriptions"`
	EnableCacheEvents        bool `mapstructure:"enable_cache_events"`
	EnableMetrics            bool `mapstructure:"enable_metrics"`
	EnableAlerts             bool `mapstructure:"enable_alerts"`
	PeriodicTaskIntervalMS   int  `mapstructure:"periodic_task_interval_ms"`
	MetricsWindowSize        int  `mapstructure:"metrics_window_size"`
	MaxMemoryBytesForHealth  int64 `mapstructure:"max_memory_bytes_for_health"`
}

// ResponseCacheConfig sizes the gateway's opaque dispatch-level cache.
type ResponseCacheConfig struct {
	MaxEntries int   `mapstructure:"max_entries"`
	MaxBytes   int64 `mapstructure:"max_bytes"`
}

// Config is the fully resolved configuration. Load returns it to the caller
// (the serve and config validate commands), which passes it on explicitly;
// this package keeps no package-level copy.
type Config struct {
	Network       NetworkConfig       `mapstructure:"network"`
	Channels      []ChannelConfig     `mapstructure:"channels"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Resolver      ResolverConfig      `mapstructure:"resolver"`
	Service       ServiceConfig       `mapstructure:"service"`
	ResponseCache ResponseCacheConfig `mapstructure:"response_cache"`
}

// Load reads cmd/config/default.yaml, applies GHOSTBRIDGE_-prefixed
// environment overrides and an optional .env file, and unmarshals the
// result into a Config.
func Load(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile) // a missing .env is not an error; env vars may be set directly
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("GHOSTBRIDGE")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, fmt.Sprintf("config: reading %s", configPath))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "config: unmarshalling")
	}
	if err := validate(&cfg); err != nil {
		return nil, utils.Wrap(err, "config")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network.server_address", "0.0.0.0")
	v.SetDefault("network.http2_port", 8443)
	v.SetDefault("network.http3_port", 8444)
	v.SetDefault("network.metrics_addr", "127.0.0.1:9090")
	v.SetDefault("network.max_connections", 10000)
	v.SetDefault("network.connection_timeout_ms", 5000)
	v.SetDefault("network.shutdown_grace_period_ms", 10000)

	v.SetDefault("cache.max_entries", 100000)
	v.SetDefault("cache.max_memory_bytes", int64(256<<20))
	v.SetDefault("cache.default_ttl", 300)
	v.SetDefault("cache.min_ttl", 30)
	v.SetDefault("cache.max_ttl", 86400)
	v.SetDefault("cache.cleanup_interval_ms", 30000)
	v.SetDefault("cache.eviction_batch_size", 16)

	v.SetDefault("resolver.enable_cache", true)
	v.SetDefault("resolver.enable_ens_bridge", true)
	v.SetDefault("resolver.enable_ud_bridge", true)
	v.SetDefault("resolver.enable_dns_fallback", true)
	v.SetDefault("resolver.max_resolution_time_ms", 3000)
	v.SetDefault("resolver.rate_limit_per_minute", 600)

	v.SetDefault("service.enable_subscriptions", true)
	v.SetDefault("service.enable_cache_events", true)
	v.SetDefault("service.enable_metrics", true)
	v.SetDefault("service.enable_alerts", true)
	v.SetDefault("service.periodic_task_interval_ms", 10000)
	v.SetDefault("service.metrics_window_size", 100)
	v.SetDefault("service.max_memory_bytes_for_health", int64(512<<20))

	v.SetDefault("response_cache.max_entries", 50000)
	v.SetDefault("response_cache.max_bytes", int64(64<<20))
}

func validate(cfg *Config) error {
	if cfg.Cache.MinTTLSeconds > cfg.Cache.MaxTTLSeconds {
		return fmt.Errorf("cache.min_ttl (%d) exceeds cache.max_ttl (%d)", cfg.Cache.MinTTLSeconds, cfg.Cache.MaxTTLSeconds)
	}
	if cfg.Network.HTTP2Port == cfg.Network.HTTP3Port {
		return fmt.Errorf("network.http2_port and network.http3_port must differ")
	}
	for _, ch := range cfg.Channels {
		if ch.ServiceEndpoint == "" {
			return fmt.Errorf("channel %q is missing service_endpoint", ch.Type)
		}
	}
	return nil
}

// PeriodicTaskInterval returns the configured periodic task cadence as a
// time.Duration.
func (c *Config) PeriodicTaskInterval() time.Duration {
	return time.Duration(c.Service.PeriodicTaskIntervalMS) * time.Millisecond
}

// ConnectionTimeout returns the configured per-request deadline as a
// time.Duration.
func (c *Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.Network.ConnectionTimeoutMS) * time.Millisecond
}

// ShutdownGracePeriod returns the configured graceful-shutdown grace period
// as a time.Duration.
func (c *Config) ShutdownGracePeriod() time.Duration {
	return time.Duration(c.Network.ShutdownGraceMS) * time.Millisecond
}

// CleanupInterval returns the configured cache cleanup cadence as a
// time.Duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Cache.CleanupIntervalMS) * time.Millisecond
}
