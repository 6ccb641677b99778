package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// AlertStream forwards health alerts to websocket clients. An optional
// accountId query parameter restricts the stream to one account.
func (h *Handler) AlertStream(w http.ResponseWriter, r *http.Request) {
	if h.deps.Bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	accountID := strings.TrimSpace(r.URL.Query().Get("accountId"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	send := make(chan []byte, sendBuffer)

	sub, err := h.deps.Bus.Subscribe(ctx, domain.TopicHealthAlert, func(_ context.Context, msg *domain.Message) error {
		if accountID != "" {
			var alert domain.Alert
			if err := json.Unmarshal(msg.Payload, &alert); err != nil {
				return err
			}
			if alert.AccountID != accountID {
				return nil
			}
		}
		select {
		case send <- msg.Payload:
		case <-ctx.Done():
		default:
			slog.Warn("alert stream client too slow, dropping alert", "message_id", msg.ID)
		}
		return nil
	})
	if err != nil {
		cancel()
		slog.Error("failed to subscribe alert stream", "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"))
		_ = conn.Close()
		return
	}

	evaluator := GetEvaluator(r.Context())
	slog.Info("alert stream opened", "evaluator", evaluator, "account_id", accountID)

	go writePump(ctx, conn, send)
	go func() {
		readPump(conn)
		cancel()
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe alert stream", "error", err)
		}
		slog.Info("alert stream closed", "evaluator", evaluator)
	}()
}

// readPump discards client frames and returns when the connection ends.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("alert stream read error", "error", err)
			}
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case payload := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
