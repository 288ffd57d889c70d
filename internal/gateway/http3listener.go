package gateway

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/quic-go/quic-go/http3"
	log "github.com/sirupsen/logrus"
)

// HTTP3Listener terminates QUIC-transported HTTP/3 ingress. It mirrors
// HTTP2Listener's request handling so both transports dispatch
// through the same Dispatcher and ConnectionTable.
type HTTP3Listener struct {
	Addr        string
	TLSConfig   *tls.Config
	Dispatcher  *Dispatcher
	Conns       *ConnectionTable
	Metrics     *GatewayMetrics
	Logger      *log.Logger
	GracePeriod time.Duration

	server *http3.Server
}

// ListenAndServe starts the HTTP/3 listener and blocks until it stops or
// returns an error.
func (l *HTTP3Listener) ListenAndServe() error {
	if l.Logger == nil {
		l.Logger = log.StandardLogger()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handle)

	l.server = &http3.Server{
		Addr:      l.Addr,
		Handler:   mux,
		TLSConfig: l.TLSConfig,
	}

	l.Logger.WithField("addr", l.Addr).Info("http3 listener starting")
	return l.server.ListenAndServe()
}

// Shutdown stops accepting new connections and waits for in-flight streams
// to finish, up to GracePeriod (bounded further by ctx's deadline if it has
// one), before dropping anything still running.
func (l *HTTP3Listener) Shutdown(ctx context.Context) error {
	if l.server == nil {
		return nil
	}
	grace := l.GracePeriod
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < grace {
			grace = remaining
		}
	}
	if err := l.server.CloseGracefully(grace); err != nil {
		return l.server.Close()
	}
	return nil
}

func (l *HTTP3Listener) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := l.Conns.Admit(TransportHTTP3, r.RemoteAddr)
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
		l.Metrics.observe(TransportHTTP3, resp.StatusCode, duration)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)

	l.Logger.WithFields(log.Fields{
		"path":     r.URL.Path,
		"status":   resp.StatusCode,
		"duration": duration,
		"conn":     conn.ID,
	}).Debug("http3 request dispatched")
}
