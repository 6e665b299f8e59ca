// Package alertrules implements the alert-rule evaluator and webhook
// ingress referenced by the Background Loop Runner (C11): a minimal rule
// evaluator loop that loads the enabled rules, plus a shared-secret-protected
// webhook endpoint that lets an external system (Alertmanager-shaped
// payload) post alert events directly.
package alertrules

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wisbric/kubefleet/internal/db"
)

// Evaluator periodically loads the enabled alert_rules and logs each one
// at debug level. It does not inspect cluster state and does not create
// AlertEvents; AlertEvents are created only by WebhookHandler.
type Evaluator struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	interval time.Duration
	fired    prometheus.Counter
}

// NewEvaluator builds an Evaluator polling every interval (default 30s if
// interval <= 0).
func NewEvaluator(pool *pgxpool.Pool, logger *slog.Logger, interval time.Duration, fired prometheus.Counter) *Evaluator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Evaluator{pool: pool, logger: logger, interval: interval, fired: fired}
}

// Run blocks, ticking until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.logger.Error("alert rule evaluation tick", "error", err)
			}
		}
	}
}

func (e *Evaluator) tick(ctx context.Context) error {
	q := db.New(e.pool)
	rules, err := q.ListAlertRules(ctx)
	if err != nil {
		return fmt.Errorf("listing alert rules: %w", err)
	}
	for _, r := range rules {
		e.logger.Debug("evaluated alert rule", "rule_id", r.ID, "kind", r.Kind)
	}
	return nil
}

// DedupKey deterministically identifies one firing instance so repeated
// evaluations of the same condition do not create duplicate AlertEvents.
func DedupKey(ruleID int64, clusterID int64, namespace, resourceName string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d:%d:%s:%s", ruleID, clusterID, namespace, resourceName)))
	return hex.EncodeToString(h[:])
}

// WebhookPayload is the shape accepted at /api/alerts/webhook — a reduced
// Alertmanager-style alert, enough to create an AlertEvent without a
// locally configured AlertRule.
type WebhookPayload struct {
	Fingerprint  string            `json:"fingerprint"`
	ClusterID    int64             `json:"cluster_id"`
	Namespace    string            `json:"namespace"`
	ResourceName string            `json:"resource_name"`
	Message      string            `json:"message"`
	Severity     string            `json:"severity"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// WebhookHandler accepts third-party alert pushes, gated by a shared
// secret in the X-Alert-Secret header or a `token` query parameter.
type WebhookHandler struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	secret   string
	received prometheus.Counter
}

func NewWebhookHandler(pool *pgxpool.Pool, logger *slog.Logger, secret string, received prometheus.Counter) *WebhookHandler {
	return &WebhookHandler{pool: pool, logger: logger, secret: secret, received: received}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get("X-Alert-Secret")
		if got == "" {
			got = r.URL.Query().Get("token")
		}
		if got != h.secret {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	var payload WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	dedupKey := payload.Fingerprint
	if dedupKey == "" {
		dedupKey = DedupKey(0, payload.ClusterID, payload.Namespace, payload.ResourceName)
	}

	ctx := r.Context()
	q := db.New(h.pool)

	if _, err := q.GetAlertEventByDedupKey(ctx, dedupKey); err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	event, err := q.CreateAlertEvent(ctx, db.CreateAlertEventParams{
		RuleID:       pgtype.Int8{},
		ClusterID:    payload.ClusterID,
		Namespace:    nilIfEmpty(payload.Namespace),
		ResourceName: payload.ResourceName,
		Message:      payload.Message,
		Severity:     payload.Severity,
		DedupKey:     dedupKey,
	})
	if err != nil {
		h.logger.Error("creating alert event from webhook", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if _, err := q.CreateAlertStatus(ctx, event.ID, "open"); err != nil {
		h.logger.Error("creating alert status from webhook", "error", err)
	}

	if h.received != nil {
		h.received.Inc()
	}
	w.WriteHeader(http.StatusAccepted)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
