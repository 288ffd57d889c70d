package gateway

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"ghostbridge/internal/zns"
	"ghostbridge/pkg/utils"
)

// Config carries the "Network" and "Channels" configuration blocks that
// size the gateway's listeners, connection table and response cache.
type Config struct {
	HTTP2Addr            string
	HTTP3Addr            string
	MetricsAddr          string
	TLSConfig            *tls.Config
	MaxConnections       int
	ConnectionIdleTTL    time.Duration
	ConnectionTimeout    time.Duration
	ShutdownGracePeriod  time.Duration
	ResponseCacheEntries int
	ResponseCacheBytes   int64
	Channels             []Channel
}

// Gateway owns the channel registry, response cache and connection table,
// and runs both ingress transports against a single dispatcher.
type Gateway struct {
	cfg Config

	registry      *Registry
	responseCache *ResponseCache
	conns         *ConnectionTable
	dispatcher    *Dispatcher
	metrics       *GatewayMetrics

	http2         *HTTP2Listener
	http3         *HTTP3Listener
	metricsServer *http.Server

	gracePeriod time.Duration
	log         *log.Logger
}

// New builds a Gateway wired against znsService, ready to serve once
// Start is called.
func New(cfg Config, znsService *zns.Service, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.StandardLogger()
	}

	registry := NewRegistry(cfg.Channels)
	responseCache := NewResponseCache(cfg.ResponseCacheEntries, cfg.ResponseCacheBytes)
	conns := NewConnectionTable(cfg.MaxConnections, cfg.ConnectionIdleTTL)
	dispatcher := NewDispatcher(registry, znsService, responseCache, cfg.ConnectionTimeout, logger)
	metrics := newGatewayMetrics()

	g := &Gateway{
		cfg:           cfg,
		registry:      registry,
		responseCache: responseCache,
		conns:         conns,
		dispatcher:    dispatcher,
		metrics:       metrics,
		log:           logger,
	}

	gracePeriod := cfg.ShutdownGracePeriod
	if gracePeriod <= 0 {
		gracePeriod = 10 * time.Second
	}
	g.gracePeriod = gracePeriod
	g.http2 = &HTTP2Listener{Addr: cfg.HTTP2Addr, TLSConfig: cfg.TLSConfig, Dispatcher: dispatcher, Conns: conns, Metrics: metrics, Logger: logger, GracePeriod: gracePeriod}
	g.http3 = &HTTP3Listener{Addr: cfg.HTTP3Addr, TLSConfig: cfg.TLSConfig, Dispatcher: dispatcher, Conns: conns, Metrics: metrics, Logger: logger, GracePeriod: gracePeriod}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		g.metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	return g
}

// Start runs both transport listeners until ctx is cancelled or one of
// them fails.
func (g *Gateway) Start(ctx context.Context) error {
	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := g.http2.ListenAndServe(); err != nil {
			errCh <- utils.Wrap(err, "http2 listener")
		}
	}()
	go func() {
		defer wg.Done()
		if err := g.http3.ListenAndServe(); err != nil {
			errCh <- utils.Wrap(err, "http3 listener")
		}
	}()

	if g.metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- utils.Wrap(err, "metrics listener")
			}
		}()
	}

	go g.sampleConnections(ctx)

	select {
	case <-ctx.Done():
		g.Shutdown()
		wg.Wait()
		return ctx.Err()
	case err := <-errCh:
		g.Shutdown()
		wg.Wait()
		return err
	}
}

// Shutdown stops both listeners and the connection reaper. Each listener
// gets up to gracePeriod to drain in-flight work before it is dropped; the
// parent ctx is already cancelled by the time Start calls this, so a fresh
// background context carries the grace-period deadline instead.
func (g *Gateway) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), g.gracePeriod)
	defer cancel()

	if err := g.http2.Shutdown(shutdownCtx); err != nil {
		g.log.WithError(err).Warn("http2 listener shutdown error")
	}
	if err := g.http3.Shutdown(shutdownCtx); err != nil {
		g.log.WithError(err).Warn("http3 listener shutdown error")
	}
	if g.metricsServer != nil {
		if err := g.metricsServer.Close(); err != nil {
			g.log.WithError(err).Warn("metrics listener shutdown error")
		}
	}
	g.conns.Close()
}

// ConnectionCount reports the number of currently admitted connections
// across both transports.
func (g *Gateway) ConnectionCount() int {
	return g.conns.Count()
}

// sampleConnections periodically refreshes the connections_open gauge
// until ctx is cancelled.
func (g *Gateway) sampleConnections(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.metrics.setConnectionsOpen(g.conns.Count())
		case <-ctx.Done():
			return
		}
	}
}
