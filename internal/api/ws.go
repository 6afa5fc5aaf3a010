package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	statsPushInterval = 2 * time.Second
	wsWriteTimeout    = 10 * time.Second
	wsPongTimeout     = 60 * time.Second
)

// wsMessage is the envelope pushed to dashboard clients.
type wsMessage struct {
	Type      string    `json:"type"` // memory_stats, worm_state
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// handleWebSocket upgrades the connection and streams memory stats for the
// requested worm until the client disconnects.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wormID := r.URL.Query().Get("worm")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	if h.metrics != nil {
		h.metrics.WSClients.Inc()
	}
	h.logger.Debug("websocket client connected", zap.String("worm", wormID))

	ctx, cancel := context.WithCancel(r.Context())
	go h.wsReadPump(conn, cancel)
	h.wsPushLoop(ctx, conn, wormID)

	if h.metrics != nil {
		h.metrics.WSClients.Dec()
	}
	h.logger.Debug("websocket client disconnected", zap.String("worm", wormID))
}

// wsReadPump drains client frames so pong handlers run, cancelling the push
// loop when the peer goes away.
func (h *Handler) wsReadPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Handler) wsPushLoop(ctx context.Context, conn *websocket.Conn, wormID string) {
	defer conn.Close()

	ticker := time.NewTicker(statsPushInterval)
	defer ticker.Stop()

	// Push immediately so the dashboard does not wait a full interval.
	h.pushStats(ctx, conn, wormID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.pushStats(ctx, conn, wormID) {
				return
			}
		}
	}
}

func (h *Handler) pushStats(ctx context.Context, conn *websocket.Conn, wormID string) bool {
	// Without an explicit worm, follow whatever the demo runner is driving.
	id := wormID
	if id == "" {
		if st := h.runner.Status(); st.Running {
			id = st.WormID
		} else {
			id = "demo"
		}
	}

	statsCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	stats, err := h.mem.Stats(statsCtx, id)
	cancel()
	if err != nil {
		h.logger.Warn("stats push skipped",
			zap.String("worm", id),
			zap.Error(err))
		return true
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(wsMessage{
		Type:      "memory_stats",
		Data:      stats,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return false
	}

	// Follow with the latest simulation sample when one exists.
	if h.collector != nil {
		if samples := h.collector.Series(id, 1); len(samples) == 1 {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(wsMessage{
				Type:      "worm_state",
				Data:      map[string]any{"worm_id": id, "state": samples[0]},
				Timestamp: time.Now().UTC(),
			}); err != nil {
				return false
			}
		}
	}
	return true
}
