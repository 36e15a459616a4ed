package payoutfraud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/richxcame/creator-payouts/pkg/httpclient"
	"github.com/richxcame/creator-payouts/pkg/logger"
)

const (
	alertColorHigh   = 0xFF0000
	alertColorNormal = 0xFFA500
)

// HTTPNotifier delivers evidence requests and fraud alerts over HTTP. Both
// calls are best-effort from the evaluator's perspective; this type only
// reports errors, the caller decides to ignore them.
type HTTPNotifier struct {
	evidence *httpclient.Client
	webhook  *httpclient.Client
}

// Ensure the notifier satisfies the service's requirements.
var _ Notifier = (*HTTPNotifier)(nil)

// NewHTTPNotifier creates a notifier. Empty URLs disable the corresponding
// channel: sends become no-ops with an info log.
func NewHTTPNotifier(evidenceBaseURL string, evidenceTimeout time.Duration, webhookURL string, webhookTimeout time.Duration) *HTTPNotifier {
	n := &HTTPNotifier{}
	if evidenceBaseURL != "" {
		n.evidence = httpclient.NewClient(evidenceBaseURL, evidenceTimeout)
	}
	if webhookURL != "" {
		n.webhook = httpclient.NewClient(webhookURL, webhookTimeout)
	}
	return n
}

// SendEvidenceRequest asks the notification service to request payout
// evidence from the creator
func (n *HTTPNotifier) SendEvidenceRequest(ctx context.Context, req EvidenceRequest) error {
	if n.evidence == nil {
		logger.Info("evidence notifier not configured, skipping evidence request")
		return nil
	}
	return n.evidence.PostJSON(ctx, "/send-evidence-request", req, nil)
}

// webhookEmbed is the message embed format expected by the alert webhook
type webhookEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Fields    []webhookField `json:"fields"`
	Timestamp string         `json:"timestamp"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// SendFraudAlert posts a formatted embed to the alerting webhook
func (n *HTTPNotifier) SendFraudAlert(ctx context.Context, alert FraudAlert) error {
	if n.webhook == nil {
		logger.Info("alert webhook not configured, skipping fraud alert")
		return nil
	}

	title := "Fraud Flag"
	color := alertColorNormal
	if alert.Priority == "high" {
		title = "HIGH PRIORITY Fraud Flag"
		color = alertColorHigh
	}

	flagLines := make([]string, 0, len(alert.Flags))
	for _, flag := range alert.Flags {
		flagLines = append(flagLines, fmt.Sprintf("- **%s**: %s", flag.Type, flag.Reason))
	}
	flagList := strings.Join(flagLines, "\n")
	if flagList == "" {
		flagList = "None"
	}

	payload := map[string]interface{}{
		"embeds": []webhookEmbed{{
			Title: title,
			Color: color,
			Fields: []webhookField{
				{Name: "Payout Amount", Value: fmt.Sprintf("$%.2f", alert.Amount), Inline: true},
				{Name: "Creator ID", Value: alert.CreatorID.String()[:8], Inline: true},
				{Name: "Flags", Value: flagList},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}

	return n.webhook.PostJSON(ctx, "", payload, nil)
}
