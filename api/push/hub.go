package push

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"transcriber/api/database"
)

const writeTimeout = 10 * time.Second

// TokenVerifier checks the access token presented on subscribe.
type TokenVerifier func(runID, token string) bool

// Hub bridges redis run-event channels onto websocket subscribers.
// Each subscriber gets its own pub/sub subscription scoped to one run;
// the stream closes after the first terminal event is forwarded.
type Hub struct {
	cache    *database.Cache
	verify   TokenVerifier
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewHub(cache *database.Cache, verify TokenVerifier, logger *zap.Logger) *Hub {
	return &Hub{
		cache:  cache,
		verify: verify,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe handles GET /runs/{ref}/events?access_token=...
// The handler blocks until the stream ends; returning earlier would cancel
// the request context and tear the connection down before any event flows.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request) {
	runID := runIDFromPath(r.URL.Path)
	token := r.URL.Query().Get("access_token")

	if runID == "" {
		http.Error(w, "run reference is required", http.StatusBadRequest)
		return
	}
	if h.verify != nil && !h.verify(runID, token) {
		http.Error(w, "invalid access token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return
	}

	h.stream(r.Context(), conn, runID)
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, runID string) {
	defer conn.Close()

	sub := h.cache.Client.Subscribe(ctx, EventChannel(runID))
	defer sub.Close()

	// Drain reads so client close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event RunEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				h.logger.Warn("malformed run event",
					zap.String("run_id", runID),
					zap.Error(err),
				)
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				h.logger.Debug("subscriber write failed",
					zap.String("run_id", runID),
					zap.Error(err),
				)
				return
			}

			if event.Terminal() {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeTimeout))
				return
			}
		}
	}
}

func runIDFromPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/runs/")
	trimmed = strings.TrimSuffix(trimmed, "/events")
	if trimmed == path || strings.Contains(trimmed, "/") {
		return ""
	}
	return trimmed
}
