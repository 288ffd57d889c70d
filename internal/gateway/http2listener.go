package gateway

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
)

// HTTP2Listener terminates TLS-wrapped HTTP/2 ingress. It admits each
// request into the shared ConnectionTable while that request is handled
// (removing it when the handler returns), so the table and its limit count
// in-flight requests; TCP connections themselves are not tracked or
// refused. Every request body goes to the Dispatcher as a single framed Unit.
type HTTP2Listener struct {
	Addr        string
	TLSConfig   *tls.Config
	Dispatcher  *Dispatcher
	Conns       *ConnectionTable
	Metrics     *GatewayMetrics
	Logger      *log.Logger
	GracePeriod time.Duration

	server *http.Server
}

// ListenAndServe starts the HTTP/2 listener and blocks until it stops or
// returns an error. Shutdown happens via the embedded *http.Server's
// lifecycle, driven by the caller's context cancellation.
func (l *HTTP2Listener) ListenAndServe() error {
	if l.Logger == nil {
		l.Logger = log.StandardLogger()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handle)

	l.server = &http.Server{
		Addr:      l.Addr,
		Handler:   mux,
		TLSConfig: l.TLSConfig,
	}
	if err := http2.ConfigureServer(l.server, &http2.Server{}); err != nil {
		return err
	}

	l.Logger.WithField("addr", l.Addr).Info("http2 listener starting")
	return l.server.ListenAndServeTLS("", "")
}

// Shutdown stops accepting new connections and waits for in-flight requests
// to finish, up to GracePeriod, before dropping anything still running.
func (l *HTTP2Listener) Shutdown(ctx context.Context) error {
	if l.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, l.GracePeriod)
	defer cancel()
	if err := l.server.Shutdown(shutdownCtx); err != nil {
		return l.server.Close()
	}
	return nil
}

func (l *HTTP2Listener) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := l.Conns.Admit(TransportHTTP2, r.RemoteAddr)
	if err != nil {
		http.Error(w, `{"error":{"code":"INTERNAL_ERROR","message":"connection limit exceeded"}}`, http.StatusServiceUnavailable)
		return
	}
	defer l.Conns.Remove(conn.ID)

	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		http.Error(w, `{"error":{"code":"INTERNAL_ERROR","message":"failed to read request body"}}`, http.StatusBadRequest)
		return
	}

	start := time.Now()
	resp := l.Dispatcher.Dispatch(r.Context(), Unit{Path: r.URL.Path, Body: body})
	duration := time.Since(start)
	l.Conns.Touch(conn.ID)
	if l.Metrics != nil {
		l.Metrics.observe(TransportHTTP2, resp.StatusCode, duration)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)

	l.Logger.WithFields(log.Fields{
		"path":     r.URL.Path,
		"status":   resp.StatusCode,
		"duration": duration,
		"conn":     conn.ID,
	}).Debug("http2 request dispatched")
}
