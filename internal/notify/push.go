// Package notify delivers push notifications to owners. Sends are fire and
// forget: a failed push is logged and counted and never reaches the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fleet-monitor/locintel/internal/errors"
	"fleet-monitor/locintel/internal/metrics"
)

// Sender is implemented by every push backend.
type Sender interface {
	SendPush(ctx context.Context, token, title, body string)
}

// Noop drops every push. Used when no gateway is configured.
type Noop struct{}

func (Noop) SendPush(context.Context, string, string, string) {}

// HTTPSender posts pushes to a gateway in the Expo push format.
type HTTPSender struct {
	url    string
	client *http.Client
	logger *zap.SugaredLogger
}

func NewHTTPSender(url string, timeout time.Duration, logger *zap.SugaredLogger) *HTTPSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("push"),
	}
}

type pushMessage struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound"`
}

// SendPush returns at once; delivery happens on its own goroutine and is not
// bound to ctx, which usually belongs to a finished request.
func (s *HTTPSender) SendPush(_ context.Context, token, title, body string) {
	if token == "" {
		return
	}
	go func() {
		if err := s.send(token, title, body); err != nil {
			metrics.PushFailures.Inc()
			s.logger.Warnw("Push send failed", "error", err)
		}
	}()
}

func (s *HTTPSender) send(token, title, body string) error {
	payload, err := json.Marshal(pushMessage{To: token, Title: title, Body: body, Sound: "default"})
	if err != nil {
		return errors.Wrap(err, "encode push")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build push request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Upstream(err, "push gateway")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Upstream(errors.Newf("status %d", resp.StatusCode), "push gateway")
	}
	return nil
}
