// Package judge calls the external judgment service (the Anthropic Messages
// API) that decides whether an escalated movement window is anomalous.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fleet-monitor/locintel/internal/config"
	"fleet-monitor/locintel/internal/errors"
	"fleet-monitor/locintel/internal/metrics"
)

const (
	// APIVersion is the required anthropic-version header.
	APIVersion = "2023-06-01"

	maxAttempts = 3
)

// errRetryable marks failures worth another attempt (transport errors, 429, 5xx).
var errRetryable = errors.New("retryable")

type Client struct {
	apiKey     string
	endpoint   string
	model      string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	retryDelay time.Duration
	logger     *zap.SugaredLogger
}

func NewClient(cfg *config.Config, logger *zap.SugaredLogger) *Client {
	perMinute := cfg.JudgeRatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Client{
		apiKey:     cfg.JudgeAPIKey,
		endpoint:   strings.TrimRight(cfg.JudgeBaseURL, "/") + "/v1/messages",
		model:      cfg.JudgeModel,
		maxTokens:  cfg.JudgeMaxTokens,
		httpClient: &http.Client{Timeout: cfg.JudgeTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		retryDelay: time.Second,
		logger:     logger.Named("judge"),
	}
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Judge sends the system prompt and the movement context and returns the
// service's raw text. Failures are marked ErrUpstreamUnavailable.
func (c *Client) Judge(ctx context.Context, systemPrompt, userContext string) (string, error) {
	if c.apiKey == "" {
		metrics.JudgeCalls.WithLabelValues("unconfigured").Inc()
		return "", errors.Upstream(errors.New("judge API key not configured"), "judge")
	}

	req := messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: userContext}},
	}

	var (
		resp *messagesResponse
		err  error
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			case <-ctx.Done():
				return "", errors.Upstream(ctx.Err(), "judge")
			}
		}
		if werr := c.limiter.Wait(ctx); werr != nil {
			return "", errors.Upstream(werr, "judge rate limit")
		}

		resp, err = c.createMessage(ctx, req)
		if err == nil {
			break
		}
		c.logger.Warnw("Judge request failed", "attempt", attempt+1, "error", err)
		if !errors.Is(err, errRetryable) {
			break
		}
	}
	if err != nil {
		metrics.JudgeCalls.WithLabelValues("error").Inc()
		return "", errors.Upstream(err, "judge")
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	metrics.JudgeCalls.WithLabelValues("ok").Inc()
	c.logger.Debugw("Judge responded", "input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
	return strings.TrimSpace(text.String()), nil
}

func (c *Client) createMessage(ctx context.Context, req messagesRequest) (*messagesResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && ctx.Err() == nil {
			return nil, errors.Mark(errors.Wrap(err, "send request"), errRetryable)
		}
		return nil, errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := errors.Newf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, errors.Mark(err, errRetryable)
		}
		return nil, err
	}

	var out messagesResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errors.Wrap(err, "unmarshal response")
	}
	return &out, nil
}
