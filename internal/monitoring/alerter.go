package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/guias-cli/internal/config"
	"github.com/sells-group/guias-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertConflictBacklog  AlertType = "conflict_backlog"
	AlertProcessingErrors AlertType = "processing_errors"
	AlertInboxStalled     AlertType = "inbox_stalled"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
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
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Conflict backlog awaiting manual review.
	if a.cfg.ConflictThreshold > 0 && snap.ConflictTotal >= a.cfg.ConflictThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertConflictBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d guides waiting in the conflict area (threshold %d)",
				snap.ConflictTotal, a.cfg.ConflictThreshold,
			),
			Details: map[string]any{
				"total":     snap.ConflictTotal,
				"by_reason": snap.Conflicts,
				"threshold": a.cfg.ConflictThreshold,
			},
			Timestamp: now,
		})
	}

	// Processing errors point at unreadable files or storage trouble.
	if n := snap.RecentConflicts[model.ConflictProcessingError]; n > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertProcessingErrors,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d guide(s) failed processing in last %dh",
				n, snap.LookbackHours,
			),
			Details: map[string]any{
				"failed_count": n,
			},
			Timestamp: now,
		})
	}

	// Files sitting in the inbox long after they should have been picked up.
	stall := int64(a.cfg.InboxStallMinutes) * 60
	if stall > 0 && snap.InboxDepth > 0 && snap.OldestInboxAge >= stall {
		alerts = append(alerts, Alert{
			Type:     AlertInboxStalled,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d guide(s) in the inbox, oldest waiting %dm",
				snap.InboxDepth, snap.OldestInboxAge/60,
			),
			Details: map[string]any{
				"inbox_depth":       snap.InboxDepth,
				"oldest_age_secs":   snap.OldestInboxAge,
				"threshold_minutes": a.cfg.InboxStallMinutes,
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
