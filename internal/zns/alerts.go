package zns

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// AlertConditionKind enumerates the predicates an AlertRule can evaluate.
type AlertConditionKind string

const (
	ConditionErrorRateAbove    AlertConditionKind = "error_rate_above"
	ConditionResponseTimeAbove AlertConditionKind = "response_time_above"
	ConditionCacheHitRateBelow AlertConditionKind = "cache_hit_rate_below"
	ConditionMemoryUsageAbove  AlertConditionKind = "memory_usage_above"
	ConditionHealthDegraded    AlertConditionKind = "health_degraded"
)

// AlertChannelKind enumerates the supported notification transports.
type AlertChannelKind string

const (
	ChannelWebhook AlertChannelKind = "webhook"
	ChannelEmail   AlertChannelKind = "email"
	ChannelSlack   AlertChannelKind = "slack"
)

// AlertChannel is one configured notification target.
type AlertChannel struct {
	Kind   AlertChannelKind
	Target string // URL for webhook/slack, address for email
}

// AlertRule is a declarative rule: it fires when its predicate is true and
// not already active, and resolves when the predicate becomes false.
type AlertRule struct {
	Name      string
	Condition AlertConditionKind
	Threshold float64
	Channels  []AlertChannel

	active bool
}

// Notifier delivers a fired/resolved alert to one channel. Production
// wiring supplies a real HTTP/SMTP implementation; the default
// httpNotifier below covers webhook and slack (both are just POSTed JSON).
type Notifier interface {
	Notify(channel AlertChannel, ruleName, message string) error
}

// httpNotifier posts alert payloads to webhook/slack URLs via the standard
// library HTTP client; email channels are logged, not dispatched, since no
// SMTP client is wired in by default.
type httpNotifier struct {
	client *http.Client
	log    *log.Logger
}

func newHTTPNotifier(logger *log.Logger) *httpNotifier {
	return &httpNotifier{client: &http.Client{Timeout: 5 * time.Second}, log: logger}
}

func (n *httpNotifier) Notify(channel AlertChannel, ruleName, message string) error {
	switch channel.Kind {
	case ChannelWebhook, ChannelSlack:
		body := strings.NewReader(fmt.Sprintf(`{"rule":%q,"message":%q}`, ruleName, message))
		resp, err := n.client.Post(channel.Target, "application/json", body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return nil
	case ChannelEmail:
		n.log.WithFields(log.Fields{"rule": ruleName, "to": channel.Target}).Info("alert email suppressed (no SMTP client configured): " + message)
		return nil
	default:
		return fmt.Errorf("unknown alert channel kind %q", channel.Kind)
	}
}

// AlertManager evaluates AlertRules against Metrics snapshots and dispatches
// notifications on state transitions.
type AlertManager struct {
	mu       sync.Mutex
	rules    []*AlertRule
	notifier Notifier
	log      *log.Logger
}

// NewAlertManager builds an AlertManager with the given rules. A nil
// notifier defaults to httpNotifier.
func NewAlertManager(rules []*AlertRule, notifier Notifier, logger *log.Logger) *AlertManager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if notifier == nil {
		notifier = newHTTPNotifier(logger)
	}
	return &AlertManager{rules: rules, notifier: notifier, log: logger}
}

func evaluateCondition(rule *AlertRule, snap Snapshot) bool {
	switch rule.Condition {
	case ConditionErrorRateAbove:
		return snap.ErrorRate > rule.Threshold
	case ConditionResponseTimeAbove:
		return snap.AvgResolutionMS > rule.Threshold
	case ConditionCacheHitRateBelow:
		return snap.CacheHitRate < rule.Threshold
	case ConditionMemoryUsageAbove:
		return float64(snap.MemoryUsageBytes) > rule.Threshold
	case ConditionHealthDegraded:
		return snap.Health == HealthDegraded || snap.Health == HealthUnhealthy
	default:
		return false
	}
}

// Evaluate checks every rule against snap, firing or resolving as needed.
func (a *AlertManager) Evaluate(snap Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, rule := range a.rules {
		triggered := evaluateCondition(rule, snap)
		if triggered && !rule.active {
			rule.active = true
			a.dispatch(rule, fmt.Sprintf("alert %s fired", rule.Name))
		} else if !triggered && rule.active {
			rule.active = false
			a.dispatch(rule, fmt.Sprintf("alert %s resolved", rule.Name))
		}
	}
}

func (a *AlertManager) dispatch(rule *AlertRule, message string) {
	for _, ch := range rule.Channels {
		if err := a.notifier.Notify(ch, rule.Name, message); err != nil {
			a.log.WithError(err).WithFields(log.Fields{"rule": rule.Name, "channel": ch.Kind}).Warn("alert dispatch failed")
		}
	}
}

// ActiveAlerts returns the names of every currently-firing rule.
func (a *AlertManager) ActiveAlerts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, r := range a.rules {
		if r.active {
			out = append(out, r.Name)
		}
	}
	return out
}
