package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
	corsmiddleware "github.com/noah-isme/edumatrix-api/pkg/middleware/cors"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPongWait   = 60 * time.Second
	eventsPingPeriod = eventsPongWait * 9 / 10
)

type eventSource interface {
	Subscribe(topics ...eventbus.Topic) *eventbus.Subscription
}

// EventsHandler streams bus notifications to signed-in clients so open
// views refresh when another session changes data.
type EventsHandler struct {
	bus      eventSource
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewEventsHandler constructs the handler. Upgrades are accepted from the
// same origins the CORS middleware allows.
func NewEventsHandler(bus eventSource, allowedOrigins []string, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || corsmiddleware.Allowed(allowedOrigins, origin)
			},
		},
	}
}

// Stream godoc
// @Summary Live change notifications
// @Description WebSocket. Pass the token as access_token. Each message is a JSON event with topic and key.
// @Tags Events
// @Param access_token query string true "JWT"
// @Success 101
// @Router /events [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close() //nolint:errcheck

	sub := h.bus.Subscribe()
	defer sub.Close()

	var user string
	if claims := claimsFromContext(c); claims != nil {
		user = claims.Username
	}
	h.logger.Debug("events stream opened", zap.String("username", user))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(eventsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(eventsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("events stream write failed", zap.String("username", user), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteWait)); err != nil {
				return
			}
		}
	}
}
