package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"ghostbridge/internal/zns"
)

// Unit is the framing contract the transport listeners hand to the
// dispatcher and receive back: one request payload in, one response
// payload out, no trailers.
type Unit struct {
	Path string
	Body []byte
}

// Response is the framed reply the dispatcher produces for a Unit.
type Response struct {
	StatusCode int
	Body       []byte
}

// Dispatcher performs channel lookup, path parsing, the ZNS/dns special
// case, response caching and per-request deadlines.
type Dispatcher struct {
	registry      *Registry
	zns           *zns.Service
	responseCache *ResponseCache
	httpClient    *http.Client
	timeout       time.Duration
	log           *log.Logger
}

// NewDispatcher builds a Dispatcher. timeout is the connection_timeout_ms
// deadline applied to every dispatch.
func NewDispatcher(registry *Registry, znsService *zns.Service, responseCache *ResponseCache, timeout time.Duration, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Dispatcher{
		registry:      registry,
		zns:           znsService,
		responseCache: responseCache,
		httpClient:    &http.Client{Timeout: timeout},
		timeout:       timeout,
		log:           logger,
	}
}

// Dispatch routes one framed request unit to its channel handler, applying
// the response cache and the per-request deadline.
func (d *Dispatcher) Dispatch(ctx context.Context, unit Unit) Response {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	key := Key(unit.Path, unit.Body)
	if cached, ok := d.responseCache.Get(key); ok {
		return Response{StatusCode: http.StatusOK, Body: cached}
	}

	resultCh := make(chan Response, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				// Any panic inside a request handler is caught at the
				// dispatcher boundary and converted into INTERNAL_ERROR
				// with a generic message.
				resultCh <- d.internalErrorResponse()
			}
		}()
		resultCh <- d.route(ctx, unit)
	}()

	select {
	case resp := <-resultCh:
		if resp.StatusCode == http.StatusOK {
			d.responseCache.Put(key, resp.Body)
		}
		return resp
	case <-ctx.Done():
		d.log.WithField("path", unit.Path).Warn("dispatch timed out")
		return d.timeoutResponse()
	}
}

func (d *Dispatcher) route(ctx context.Context, unit Unit) Response {
	segment, tail := firstSegment(unit.Path)

	if segment == "zns" {
		return d.routeZNS(ctx, tail, unit.Body)
	}

	if segment == "dns" {
		if domain := sniffDomain(unit.Body); domain != "" && d.zns.IsZNSDomain(domain) {
			return d.routeZNS(ctx, "resolve", buildResolveBody(domain))
		}
	}

	channelType, ok := pathChannelType(segment)
	if !ok {
		return Response{StatusCode: http.StatusNotFound, Body: []byte(`{"error":{"code":"INVALID_DOMAIN","message":"unknown channel"}}`)}
	}
	channel, ok := d.registry.Lookup(channelType)
	if !ok {
		return Response{StatusCode: http.StatusServiceUnavailable, Body: []byte(`{"error":{"code":"RESOLVER_UNAVAILABLE","message":"channel not configured"}}`)}
	}
	return d.forward(ctx, channel, tail, unit.Body)
}

// forward sends unit.Body verbatim to channel.ServiceEndpoint + tail and
// returns the upstream body unchanged.
func (d *Dispatcher) forward(ctx context.Context, channel Channel, tail string, body []byte) Response {
	url := strings.TrimRight(channel.ServiceEndpoint, "/") + "/" + strings.TrimLeft(tail, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return d.internalErrorResponse()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return Response{StatusCode: http.StatusBadGateway, Body: []byte(`{"error":{"code":"RESOLVER_UNAVAILABLE","message":"backend unreachable"}}`)}
	}
	defer resp.Body.Close()

	upstreamBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return d.internalErrorResponse()
	}
	return Response{StatusCode: resp.StatusCode, Body: upstreamBody}
}

// The /zns/<op> tails that routeZNS recognises.
const (
	opResolve   = "resolve"
	opRegister  = "register"
	opUpdate    = "update"
	opSubscribe = "subscribe"
	opStatus    = "status"
	opMetrics   = "metrics"
)

func (d *Dispatcher) routeZNS(ctx context.Context, op string, body []byte) Response {
	const clientID = "gateway" // every ZNS request through the gateway uses this one client ID, so they share one rate-limit counter

	switch op {
	case opResolve:
		var req zns.ResolveRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return d.badRequestResponse(zns.ErrInvalidDomain, "malformed resolve request")
		}
		return d.jsonResponse(d.zns.Resolve(ctx, &req, clientID))
	case opRegister:
		var req zns.RegisterRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return d.badRequestResponse(zns.ErrInvalidDomain, "malformed register request")
		}
		return d.jsonResponse(d.zns.Register(ctx, &req, clientID))
	case opUpdate:
		var req zns.UpdateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return d.badRequestResponse(zns.ErrInvalidDomain, "malformed update request")
		}
		return d.jsonResponse(d.zns.Update(ctx, &req, clientID))
	case opSubscribe:
		var req zns.SubscriptionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return d.badRequestResponse(zns.ErrInvalidDomain, "malformed subscribe request")
		}
		id := d.zns.CreateDomainSubscription(&req, clientID)
		payload, _ := json.Marshal(map[string]string{"subscription_id": id})
		return Response{StatusCode: http.StatusOK, Body: payload}
	case opStatus:
		payload, _ := json.Marshal(d.zns.Status())
		return Response{StatusCode: http.StatusOK, Body: payload}
	case opMetrics:
		payload, _ := json.Marshal(d.zns.MetricsReport())
		return Response{StatusCode: http.StatusOK, Body: payload}
	default:
		return Response{StatusCode: http.StatusNotFound, Body: []byte(`{"error":{"code":"INVALID_DOMAIN","message":"unknown zns operation"}}`)}
	}
}

func (d *Dispatcher) jsonResponse(resp *zns.ResolveResponse) Response {
	body, err := json.Marshal(resp)
	if err != nil {
		return d.internalErrorResponse()
	}
	status := http.StatusOK
	if resp.Error != nil {
		status = statusForError(resp.Error.Code)
	}
	return Response{StatusCode: status, Body: body}
}

func statusForError(code zns.ErrorCode) int {
	switch code {
	case zns.ErrInvalidDomain, zns.ErrInvalidRecordType:
		return http.StatusBadRequest
	case zns.ErrPermissionDenied, zns.ErrSignatureInvalid:
		return http.StatusForbidden
	case zns.ErrDomainNotFound:
		return http.StatusNotFound
	case zns.ErrDomainExpired:
		return http.StatusGone
	case zns.ErrRateLimited:
		return http.StatusTooManyRequests
	case zns.ErrTimeout:
		return http.StatusGatewayTimeout
	case zns.ErrResolverUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (d *Dispatcher) badRequestResponse(code zns.ErrorCode, message string) Response {
	body, _ := json.Marshal(map[string]any{"error": map[string]string{"code": string(code), "message": message}})
	return Response{StatusCode: http.StatusBadRequest, Body: body}
}

func (d *Dispatcher) internalErrorResponse() Response {
	body, _ := json.Marshal(map[string]any{"error": map[string]string{"code": string(zns.ErrInternal), "message": "internal error"}})
	return Response{StatusCode: http.StatusInternalServerError, Body: body}
}

func (d *Dispatcher) timeoutResponse() Response {
	body, _ := json.Marshal(map[string]any{"error": map[string]string{"code": string(zns.ErrTimeout), "message": "request exceeded connection_timeout_ms"}})
	return Response{StatusCode: http.StatusGatewayTimeout, Body: body}
}

func firstSegment(path string) (segment, tail string) {
	p := strings.TrimPrefix(path, "/")
	idx := strings.Index(p, "/")
	if idx == -1 {
		return p, ""
	}
	return p[:idx], p[idx+1:]
}

var domainSniffRE = regexp.MustCompile(`[a-zA-Z0-9][a-zA-Z0-9-]*(?:\.[a-zA-Z0-9][a-zA-Z0-9-]*)+`)

// sniffDomain extracts the first domain-shaped token from a /dns/* request
// body so it can be redirected into ZNS resolution. It does not attempt
// full DNS-wire parsing; it is a best-effort scan sufficient for the
// JSON/plain-text bodies GhostBridge's own clients send.
func sniffDomain(body []byte) string {
	match := domainSniffRE.Find(body)
	if match == nil {
		return ""
	}
	return string(bytes.Trim(match, `".,;: `))
}

func buildResolveBody(domain string) []byte {
	req := zns.ResolveRequest{Domain: domain, UseCache: true}
	body, _ := json.Marshal(req)
	return body
}

// NewHTTPHandlerError renders a transport-level error that never reached
// the dispatcher's routing (e.g. a malformed framing unit) as a generic
// internal error.
func NewHTTPHandlerError(message string) Response {
	body, _ := json.Marshal(map[string]any{"error": map[string]string{"code": string(zns.ErrInternal), "message": fmt.Sprintf("transport error: %s", message)}})
	return Response{StatusCode: http.StatusInternalServerError, Body: body}
}
