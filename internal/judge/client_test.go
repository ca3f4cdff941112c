package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fleet-monitor/locintel/internal/config"
	"fleet-monitor/locintel/internal/errors"
)

func newTestClient(t *testing.T, url string) *Client {
	c := NewClient(&config.Config{
		JudgeAPIKey:        "test-key",
		JudgeBaseURL:       url,
		JudgeModel:         "test-model",
		JudgeMaxTokens:     256,
		JudgeRatePerMinute: 6000,
		JudgeTimeout:       5 * time.Second,
	}, zaptest.NewLogger(t).Sugar())
	c.retryDelay = time.Millisecond
	return c
}

func TestJudgeSendsMessagesRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "system prompt", req.System)
		if !assert.Len(t, req.Messages, 1) {
			return
		}
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "table", req.Messages[0].Content)

		w.Write([]byte(`{"content":[{"type":"text","text":"  {\"anomaly\": false} "}],"usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).Judge(context.Background(), "system prompt", "table")
	require.NoError(t, err)
	assert.Equal(t, `{"anomaly": false}`, out)
}

func TestJudgeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).Judge(context.Background(), "s", "c")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestJudgeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Judge(context.Background(), "s", "c")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUpstreamUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}

func TestJudgeWithoutKey(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	c.apiKey = ""
	_, err := c.Judge(context.Background(), "s", "c")
	assert.True(t, errors.Is(err, errors.ErrUpstreamUnavailable))
}

func TestJudgeMalformedResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"content":`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Judge(context.Background(), "system", "table")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUpstreamUnavailable))
	assert.Contains(t, err.Error(), "unmarshal response")
	assert.Equal(t, int32(1), calls.Load())
}
