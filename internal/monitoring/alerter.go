package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertExhaustionRate   AlertType = "search_exhaustion_rate"
	AlertCategoryCollapse AlertType = "category_collapse"
	AlertCostOverrun      AlertType = "cost_overrun"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Check search exhaustion rate.
	if snap.SearchTotal >= 5 && snap.ExhaustionRate > a.cfg.ExhaustionRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertExhaustionRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Search exhaustion rate %.1f%% exceeds threshold %.1f%% (%d exhausted / %d searches in last %dh)",
				snap.ExhaustionRate*100, a.cfg.ExhaustionRateThreshold*100,
				snap.SearchExhausted, snap.SearchTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"exhaustion_rate": snap.ExhaustionRate,
				"threshold":       a.cfg.ExhaustionRateThreshold,
				"exhausted":       snap.SearchExhausted,
				"total":           snap.SearchTotal,
			},
			Timestamp: now,
		})
	}

	// Check for collapsed categories. Categories with fewer than 20
	// lifetime attempts have too little history to judge.
	if a.cfg.SuccessRateFloor > 0 {
		var collapsed []string
		for _, cat := range snap.Categories {
			if cat.Attempts >= 20 && cat.SuccessRate < a.cfg.SuccessRateFloor {
				collapsed = append(collapsed, cat.CategoryKey)
			}
		}
		if len(collapsed) > 0 {
			alerts = append(alerts, Alert{
				Type:     AlertCategoryCollapse,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Category success rate below %.0f%% floor for: %s",
					a.cfg.SuccessRateFloor*100, strings.Join(collapsed, ", "),
				),
				Details: map[string]any{
					"categories": collapsed,
					"floor":      a.cfg.SuccessRateFloor,
				},
				Timestamp: now,
			})
		}
	}

	// Check cost overrun.
	if a.cfg.CostThresholdUSD > 0 && snap.CostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"API cost $%.2f exceeds threshold $%.2f in last %dh",
				snap.CostUSD, a.cfg.CostThresholdUSD, snap.LookbackHours,
			),
			Details: map[string]any{
				"cost_usd":      snap.CostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"search_total":  snap.SearchTotal,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
