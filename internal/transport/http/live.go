package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fleet-monitor/locintel/internal/hub"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer
	pongWait = 60 * time.Second

	// Ping period when the hub heartbeat is slower than pongWait allows
	pingPeriod = 54 * time.Second

	// Subscribers only send control frames
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// writeSSE renders one event in text/event-stream framing.
func writeSSE(w io.Writer, ev hub.Event) error {
	var err error
	if ev.IsKeepAlive() {
		_, err = fmt.Fprintf(w, ": %s\n\n", ev.Comment)
	} else {
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data)
	}
	return err
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}

	ownerID := principalFrom(r.Context()).ID
	ch := s.hub.Subscribe(ownerID)
	defer s.hub.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev := <-ch.Events():
			if err := writeSSE(w, ev); err != nil {
				s.logger.Debugw("SSE write failed", "owner_id", ownerID, "error", err)
				return
			}
			flusher.Flush()
		case <-ch.Done():
			return
		case <-r.Context().Done():
			return
		}
	}
}

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ownerID := principalFrom(r.Context()).ID
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.Debugw("WebSocket upgrade failed", "owner_id", ownerID, "error", err)
		return
	}

	ch := s.hub.Subscribe(ownerID)
	go s.wsReadPump(conn, ch)
	s.wsWritePump(conn, ch)
}

// wsReadPump discards client frames and unsubscribes when the peer goes away.
func (s *Server) wsReadPump(conn *websocket.Conn, ch *hub.Channel) {
	defer s.hub.Unsubscribe(ch)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) wsWritePump(conn *websocket.Conn, ch *hub.Channel) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.hub.Unsubscribe(ch)
		conn.Close()
	}()

	for {
		select {
		case ev := <-ch.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			var err error
			if ev.IsKeepAlive() {
				err = conn.WriteMessage(websocket.PingMessage, nil)
			} else {
				err = conn.WriteJSON(wsFrame{Event: ev.Name, Data: ev.Data})
			}
			if err != nil {
				s.logger.Debugw("WebSocket write failed", "owner_id", ch.OwnerID(), "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ch.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
