package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ghostbridge/internal/config"
	"ghostbridge/internal/gateway"
	"ghostbridge/internal/zns"
	"ghostbridge/pkg/utils"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the GhostBridge gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			envFile, _ := cmd.Flags().GetString("env-file")
			return runServe(configPath, envFile)
		},
	}
}

func runServe(configPath, envFile string) error {
	logger := log.StandardLogger()
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return utils.Wrap(err, "loading config")
	}

	znsService, err := buildZNSService(cfg, logger)
	if err != nil {
		return utils.Wrap(err, "building zns service")
	}

	gw, err := buildGateway(cfg, znsService, logger)
	if err != nil {
		return utils.Wrap(err, "building gateway")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runPeriodicTasks(ctx, cfg, znsService, gw, logger)
	go runRateLimitWindow(ctx, znsService, logger)

	logger.Info("ghostbridge starting")
	return gw.Start(ctx)
}

// buildZNSService constructs every ZNS collaborator in dependency order:
// validator → cache → resolvers → rate limiter → subscription managers →
// metrics → resolver core → alerts → service facade.
func buildZNSService(cfg *config.Config, logger *log.Logger) (*zns.Service, error) {
	validator := zns.NewValidator(logger)

	cache := zns.NewCache(zns.CacheConfig{
		MaxEntries:      cfg.Cache.MaxEntries,
		MaxMemoryBytes:  cfg.Cache.MaxMemoryBytes,
		DefaultTTL:      time.Duration(cfg.Cache.DefaultTTLSeconds) * time.Second,
		MinTTL:          time.Duration(cfg.Cache.MinTTLSeconds) * time.Second,
		MaxTTL:          time.Duration(cfg.Cache.MaxTTLSeconds) * time.Second,
		CleanupInterval: cfg.CleanupInterval(),
	})

	maxResolution := time.Duration(cfg.Resolver.MaxResolutionMS) * time.Millisecond
	native := zns.NewNativeResolver(cfg.Resolver.NativeEndpoint, maxResolution, logger)
	// ENS/UD backends require an Ethereum/UD API client, which is an
	// external collaborator; both resolvers treat a nil backend as "not my
	// namespace".
	ens := zns.NewENSResolver(nil, maxResolution)
	ud := zns.NewUDResolver(nil, maxResolution)
	dnsFallback := zns.NewDNSFallbackResolver(cfg.Resolver.DNSFallbackServer, maxResolution)

	rateLimiter := zns.NewRateLimiter(cfg.Resolver.RateLimitPerMinute)

	domainSubs := zns.NewDomainSubscriptionManager()
	cacheSubs := zns.NewCacheSubscriptionManager()

	metrics := zns.NewMetrics(cfg.Service.MetricsWindowSize, zns.HealthLimits{
		MaxMemoryBytes: cfg.Service.MaxMemoryBytesForHealth,
	})

	core := zns.NewCore(zns.ResolverConfig{
		EnableCache:        cfg.Resolver.EnableCache,
		EnableENSBridge:    cfg.Resolver.EnableENSBridge,
		EnableUDBridge:     cfg.Resolver.EnableUDBridge,
		EnableDNSFallback:  cfg.Resolver.EnableDNSFallback,
		MaxResolutionTime:  maxResolution,
		RateLimitPerMinute: cfg.Resolver.RateLimitPerMinute,
	}, zns.CoreDeps{
		Validator:    validator,
		Cache:        cache,
		RateLimiter:  rateLimiter,
		Metrics:      metrics,
		Native:       native,
		ENS:          ens,
		UD:           ud,
		DNSFallback:  dnsFallback,
		ChangeEvents: domainSubs,
		CacheEvents:  cacheSubs,
	})

	alerts := zns.NewAlertManager(defaultAlertRules(), nil, logger)

	svc := zns.NewService(zns.ServiceConfig{
		EnableSubscriptions:  cfg.Service.EnableSubscriptions,
		EnableCacheEvents:    cfg.Service.EnableCacheEvents,
		EnableMetrics:        cfg.Service.EnableMetrics,
		EnableAlerts:         cfg.Service.EnableAlerts,
		PeriodicTaskInterval: cfg.PeriodicTaskInterval(),
	}, core, cache, metrics, alerts, rateLimiter, domainSubs, cacheSubs, logger)

	return svc, nil
}

// defaultAlertRules mirrors the thresholds the health computation uses,
// surfaced as alert rules. The rules carry no notification channels, so a
// firing rule shows only among the service's active alerts; no notification
// is sent.
func defaultAlertRules() []*zns.AlertRule {
	return []*zns.AlertRule{
		{Name: "high_error_rate", Condition: zns.ConditionErrorRateAbove, Threshold: 0.10},
		{Name: "slow_resolution", Condition: zns.ConditionResponseTimeAbove, Threshold: 5000},
		{Name: "gateway_degraded", Condition: zns.ConditionHealthDegraded, Threshold: 0},
	}
}

func buildGateway(cfg *config.Config, znsService *zns.Service, logger *log.Logger) (*gateway.Gateway, error) {
	var tlsConf *tls.Config
	if cfg.Network.CertFile != "" && cfg.Network.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Network.CertFile, cfg.Network.KeyFile)
		if err != nil {
			return nil, utils.Wrap(err, "loading TLS certificate")
		}
		tlsConf = &tls.Config{Certificates: []tls.Certificate{cert}}
	} else {
		tlsConf = &tls.Config{}
	}

	channels := make([]gateway.Channel, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channelType, ok := channelTypeFromString(ch.Type)
		if !ok {
			return nil, fmt.Errorf("unknown channel type %q", ch.Type)
		}
		channels = append(channels, gateway.Channel{
			Type:               channelType,
			ServiceEndpoint:    ch.ServiceEndpoint,
			MaxStreams:         ch.MaxStreams,
			Timeout:            time.Duration(ch.TimeoutMS) * time.Millisecond,
			EncryptionRequired: ch.EncryptionRequired,
		})
	}

	gwCfg := gateway.Config{
		HTTP2Addr:            fmt.Sprintf("%s:%d", cfg.Network.ServerAddress, cfg.Network.HTTP2Port),
		HTTP3Addr:            fmt.Sprintf("%s:%d", cfg.Network.ServerAddress, cfg.Network.HTTP3Port),
		MetricsAddr:          cfg.Network.MetricsAddr,
		TLSConfig:            tlsConf,
		MaxConnections:       cfg.Network.MaxConnections,
		ConnectionIdleTTL:    5 * time.Minute,
		ConnectionTimeout:    cfg.ConnectionTimeout(),
		ShutdownGracePeriod:  cfg.ShutdownGracePeriod(),
		ResponseCacheEntries: cfg.ResponseCache.MaxEntries,
		ResponseCacheBytes:   cfg.ResponseCache.MaxBytes,
		Channels:             channels,
	}

	return gateway.New(gwCfg, znsService, logger), nil
}

func channelTypeFromString(s string) (gateway.ChannelType, bool) {
	switch s {
	case "wallet":
		return gateway.ChannelWallet, true
	case "identity":
		return gateway.ChannelIdentity, true
	case "ledger":
		return gateway.ChannelLedger, true
	case "dns":
		return gateway.ChannelDNS, true
	case "contracts":
		return gateway.ChannelContracts, true
	case "proxy":
		return gateway.ChannelProxy, true
	default:
		return "", false
	}
}

// resourceSampler implements zns.ResourceSampler using runtime.MemStats for
// memory and the gateway's live connection/subscription counts; CPU percent
// sampling would require a platform-specific /proc reader that is out of
// scope here, so it reports 0.
type resourceSampler struct {
	gw  *gateway.Gateway
	svc *zns.Service
}

func (s *resourceSampler) Sample() (memoryBytes int64, cpuPercent float64, openConnections, activeSubscriptions int64) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return int64(mem.Alloc), 0, int64(s.gw.ConnectionCount()), int64(s.svc.ActiveSubscriptionCount())
}

// runPeriodicTasks drives the service's cache cleanup / resource sampling /
// alert evaluation loop at the configured cadence.
func runPeriodicTasks(ctx context.Context, cfg *config.Config, svc *zns.Service, gw *gateway.Gateway, logger *log.Logger) {
	interval := cfg.PeriodicTaskInterval()
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sampler := &resourceSampler{gw: gw, svc: svc}
	for {
		select {
		case <-ticker.C:
			svc.RunPeriodicTasks(sampler)
		case <-ctx.Done():
			return
		}
	}
}

// runRateLimitWindow resets the rate limiter's fixed 60-second tumbling
// window. This cadence is independent of PeriodicTaskInterval, so it runs
// on its own ticker rather than inside RunPeriodicTasks.
func runRateLimitWindow(ctx context.Context, svc *zns.Service, logger *log.Logger) {
	ticker := time.NewTicker(zns.RateLimitWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			svc.ResetRateLimitWindow()
		case <-ctx.Done():
			return
		}
	}
}
