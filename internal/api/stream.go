package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamBuffer   = 64
	streamWrite    = 5 * time.Second
	streamPing     = 30 * time.Second
	streamPongWait = 2 * streamPing
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// stream pushes calendar change events to a websocket client until it disconnects.
// Clients reload the affected range; events carry no appointment payload.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "stream_unavailable", "change notifications are disabled")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	requestID := GetRequestID(r.Context())
	ch, unsubscribe := h.cfg.Notifier.SubscribeChan("ws:"+requestID, streamBuffer)
	defer unsubscribe()
	h.logger.Debug("calendar stream opened", "request_id", requestID)

	// The read loop only watches for close frames and pongs.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("calendar stream read error", "request_id", requestID, "error", err.Error())
				}
				return
			}
		}
	}()

	ping := time.NewTicker(streamPing)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			h.logger.Debug("calendar stream closed", "request_id", requestID)
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWrite))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWrite))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
