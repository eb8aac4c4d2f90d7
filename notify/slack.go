package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/hookwatch/hookwatch/errors"
	"github.com/hookwatch/hookwatch/internal/httpclient"
)

// SlackWebhook posts messages to a Slack incoming webhook.
// Posting is rate-limited to one message per second so a large maintenance
// sweep cannot trip Slack's abuse limits.
type SlackWebhook struct {
	client     *httpclient.SaferClient
	webhookURL string
	limiter    *rate.Limiter
}

// NewSlackWebhook creates a webhook poster.
func NewSlackWebhook(client *httpclient.SaferClient, webhookURL string) *SlackWebhook {
	return &SlackWebhook{
		client:     client,
		webhookURL: webhookURL,
		limiter:    rate.NewLimiter(rate.Limit(1), 3),
	}
}

// PostMessage sends one message to the configured webhook.
func (s *SlackWebhook) PostMessage(ctx context.Context, message string) error {
	if s.webhookURL == "" {
		return errors.New("slack webhook URL not configured")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "slack rate limiter")
	}

	payload, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return errors.Wrap(err, "failed to marshal slack payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to build slack request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "slack post failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Newf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}
