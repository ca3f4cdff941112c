package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestHTTPSenderPostsMessage(t *testing.T) {
	got := make(chan pushMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg pushMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		got <- msg
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, time.Second, zaptest.NewLogger(t).Sugar())
	s.SendPush(context.Background(), "ExponentPushToken[abc]", "Geofence breach", "Van 1 left Home")

	select {
	case msg := <-got:
		assert.Equal(t, "ExponentPushToken[abc]", msg.To)
		assert.Equal(t, "Geofence breach", msg.Title)
		assert.Equal(t, "Van 1 left Home", msg.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("push not delivered")
	}
}

func TestHTTPSenderSkipsEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("gateway should not be called")
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, time.Second, zaptest.NewLogger(t).Sugar())
	s.SendPush(context.Background(), "", "t", "b")
	time.Sleep(50 * time.Millisecond)
}

func TestSendReportsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, time.Second, zaptest.NewLogger(t).Sugar())
	assert.Error(t, s.send("tok", "t", "b"))
}
