// Package webhook posts follow-up run summaries to Slack via incoming webhooks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/nudge/internal/followup"
)

const (
	maxDigestLen = 3000
	httpTimeout  = 10 * time.Second
)

// Notifier sends run summaries to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new webhook notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts a finished run to the configured webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, run *followup.Run) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(run)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("webhook: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook: returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(run *followup.Run) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(run),
			{"type": "divider"},
			fieldsBlock(run),
			{"type": "divider"},
			digestBlock(run),
			{"type": "divider"},
			contextBlock(run),
		},
	}
}

func headerBlock(run *followup.Run) map[string]any {
	title := "Follow-up Run Complete"
	if run.Status == followup.StatusFailed {
		title = "Follow-up Run Failed"
	}
	text := fmt.Sprintf("%s %s: %d owner(s) nudged", runEmoji(run), title, len(run.Intents))

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(run *followup.Run) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Status:* %s", run.Status),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Cases:* %d", run.TotalCases),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Owners:* %d", run.OwnerCount),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Unresolved owners:* %d", len(run.UnresolvedOwners)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Delivered:* %d", countDelivery(run, followup.DeliverySent)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Failed:* %d", countDelivery(run, followup.DeliveryFailed)),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func digestBlock(run *followup.Run) map[string]any {
	text := truncate(run.Digest, maxDigestLen)
	if text == "" {
		text = "_No digest available._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Digest*\n\n%s", text),
		},
	}
}

func contextBlock(run *followup.Run) map[string]any {
	ts := run.CompletedAt
	if ts.IsZero() {
		ts = run.CreatedAt
	}

	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("nudge • run %s • %s", run.ID, ts.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func runEmoji(run *followup.Run) string {
	switch {
	case run.Status == followup.StatusFailed:
		return "\U0001f534" // red circle
	case countDelivery(run, followup.DeliveryFailed) > 0 || len(run.UnresolvedOwners) > 0:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func countDelivery(run *followup.Run, outcome string) int {
	n := 0
	for i := range run.Intents {
		if run.Intents[i].Delivery == outcome {
			n++
		}
	}
	return n
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
