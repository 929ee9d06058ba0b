package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"sos_engine/internal/risk"
)

// Alert is the outbound notification for a Medium or High severity incident.
type Alert struct {
	Recipient  string
	Severity   risk.Severity
	Confidence float64
	Location   string
	MapLink    string
}

// Notifier dispatches alert notifications. Dispatch is best-effort and
// fire-and-forget: no retry, no delivery confirmation, and its failure must
// never fail the surrounding request.
type Notifier interface {
	Dispatch(ctx context.Context, a Alert) error
}

// Webhook posts alerts to a bot-style webhook endpoint.
type Webhook struct {
	URL    string
	BotID  string
	Client *http.Client
}

func NewWebhook(url, botID string) *Webhook {
	return &Webhook{URL: url, BotID: botID, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *Webhook) Dispatch(ctx context.Context, a Alert) error {
	payload := map[string]string{"text": BuildAlertBody(a)}
	if w.BotID != "" {
		payload["bot_id"] = w.BotID
	}
	buf, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewBuffer(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes alerts to the process log. It stands in when no webhook
// is configured so degraded deployments still surface dispatches somewhere.
type LogNotifier struct{}

func (LogNotifier) Dispatch(_ context.Context, a Alert) error {
	log.Printf("alert dispatch: to=%s severity=%s location=%s map=%s", a.Recipient, a.Severity, a.Location, a.MapLink)
	return nil
}

// BuildAlertBody renders the notification text.
func BuildAlertBody(a Alert) string {
	lines := []string{
		fmt.Sprintf("🚨 SOS ALERT – Severity %s (confidence %.2f)", a.Severity, a.Confidence),
		fmt.Sprintf("📧 To: %s", a.Recipient),
		fmt.Sprintf("📍 Location: %s", a.Location),
		fmt.Sprintf("🔗 Map: %s", a.MapLink),
	}
	return strings.Join(lines, "\n")
}
