// Package slack sends alert lifecycle notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/beacon/internal/triage"
)

const (
	maxLocationLen = 1000
	httpTimeout    = 10 * time.Second
)

// Notifier posts triage events to a Slack webhook. It implements triage.Notifier.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Notify posts the event to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Notify(ctx context.Context, ev *triage.Event) error {
	if n.webhookURL == "" || ev == nil {
		return nil
	}

	body, err := json.Marshal(buildMessage(ev))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification sent", "alert_id", ev.Alert.ID, "event", ev.Type)
	return nil
}

func buildMessage(ev *triage.Event) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(ev),
			{"type": "divider"},
			fieldsBlock(ev),
			locationBlock(ev),
			{"type": "divider"},
			contextBlock(ev),
		},
	}
}

func headerBlock(ev *triage.Event) map[string]any {
	text := fmt.Sprintf("%s %s %s: %s", severityEmoji(ev.Alert.Severity), kindTitle(ev.Alert.Kind), eventTitle(ev.Type), ev.Alert.ID)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(ev *triage.Event) map[string]any {
	a := &ev.Alert
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Kind:* %s", a.Kind),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Severity:* %s", a.Severity),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Status:* %s", a.Status),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Raised:* %s", a.RaisedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func locationBlock(ev *triage.Event) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Location*\n%s", truncate(ev.Alert.Location, maxLocationLen)),
		},
	}
}

func contextBlock(ev *triage.Event) map[string]any {
	ts := ev.At
	if ts.IsZero() {
		ts = ev.Alert.RaisedAt
	}

	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("beacon • alert %s • ref %s • %s", ev.Alert.ID, ev.Alert.Ref, ts.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func severityEmoji(severity triage.Severity) string {
	switch severity {
	case triage.SeverityHigh:
		return "\U0001f534" // red circle
	case triage.SeverityMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func kindTitle(k triage.Kind) string {
	switch k {
	case triage.KindFire:
		return "Fire"
	case triage.KindMedical:
		return "Medical"
	case triage.KindSecurity:
		return "Security"
	}
	return "Emergency"
}

func eventTitle(t triage.EventType) string {
	switch t {
	case triage.EventRaised:
		return "Alert Raised"
	case triage.EventDispatched:
		return "Alert Dispatched"
	case triage.EventResolved:
		return "Alert Resolved"
	}
	return "Alert Updated"
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
