// Package alert delivers operator notifications over Slack, email and plain
// webhooks. Delivery is best-effort: callers treat failures as log-only.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/slack-go/slack"
)

// Alert represents a single notification event.
type Alert struct {
	Title   string
	Message string
	Fields  map[string]string
}

// Alerter is the interface for sending alerts.
type Alerter interface {
	Send(ctx context.Context, a Alert) error
}

// Noop discards every alert. Used when no channel is configured.
type Noop struct{}

func (Noop) Send(context.Context, Alert) error { return nil }

// Multi fans an alert out to every configured channel. A channel failure is
// logged and does not stop delivery to the remaining channels; the first
// error is returned so callers can record it.
type Multi struct {
	channels []Alerter
}

func NewMulti(channels ...Alerter) *Multi {
	return &Multi{channels: channels}
}

func (m *Multi) Send(ctx context.Context, a Alert) error {
	var firstErr error
	for _, ch := range m.channels {
		if err := ch.Send(ctx, a); err != nil {
			log.Printf("alert channel %T failed: %v", ch, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SlackWebhook posts alerts to a Slack incoming-webhook URL.
type SlackWebhook struct {
	url string
}

func NewSlackWebhook(url string) *SlackWebhook {
	return &SlackWebhook{url: url}
}

func (s *SlackWebhook) Send(ctx context.Context, a Alert) error {
	attachment := slack.Attachment{
		Color: "danger",
		Text:  a.Message,
	}
	for _, k := range sortedKeys(a.Fields) {
		attachment.Fields = append(attachment.Fields, slack.AttachmentField{
			Title: k,
			Value: a.Fields[k],
			Short: true,
		})
	}

	msg := &slack.WebhookMessage{
		Text:        a.Title,
		Attachments: []slack.Attachment{attachment},
	}
	if err := slack.PostWebhookContext(ctx, s.url, msg); err != nil {
		return fmt.Errorf("error posting slack webhook: %w", err)
	}
	return nil
}

// Webhook posts alerts as JSON to arbitrary webhook URLs.
type Webhook struct {
	urls   []string
	client *http.Client
}

func NewWebhook(urls []string) *Webhook {
	return &Webhook{
		urls:   urls,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Send(ctx context.Context, a Alert) error {
	payload := map[string]interface{}{
		"title":     a.Title,
		"message":   a.Message,
		"fields":    a.Fields,
		"timestamp": time.Now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling webhook payload: %w", err)
	}

	for _, url := range w.urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("error building webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return fmt.Errorf("error sending webhook request: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook %s returned status %d", url, resp.StatusCode)
		}
	}
	return nil
}

// Email sends alerts via SendGrid.
type Email struct {
	client *sendgrid.Client
	from   string
	to     []string
}

func NewEmail(apiKey, from string, to []string) *Email {
	return &Email{
		client: sendgrid.NewSendClient(apiKey),
		from:   from,
		to:     to,
	}
}

func (e *Email) Send(ctx context.Context, a Alert) error {
	body := a.Message
	for _, k := range sortedKeys(a.Fields) {
		body += fmt.Sprintf("\n%s: %s", k, a.Fields[k])
	}

	from := mail.NewEmail("Snapshotter Alerts", e.from)
	for _, rcpt := range e.to {
		email := mail.NewSingleEmail(from, a.Title, mail.NewEmail("", rcpt), body, body)
		if _, err := e.client.SendWithContext(ctx, email); err != nil {
			return fmt.Errorf("error sending alert email: %w", err)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
