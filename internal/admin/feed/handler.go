// Package feed serves the live dispatch event feed: one WebSocket per
// observer, each independently subscribed to the in-process events
// publisher. There is no separate hub goroutine coalescing broadcasts —
// events.Publisher already fans out to every subscriber channel, so a
// client here is just a thin pump from its own subscription to its socket.
package feed

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gabrieleiannetti/cyclone/internal/events"
	"github.com/gabrieleiannetti/cyclone/internal/logger"
	"github.com/gabrieleiannetti/cyclone/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	subscribeDepth = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades admin feed requests to WebSocket connections.
type Handler struct {
	publisher *events.Publisher
}

// NewHandler wires a Handler to the dispatch loop's event publisher.
func NewHandler(publisher *events.Publisher) *Handler {
	return &Handler{publisher: publisher}
}

// ServeWS upgrades the request and streams every subsequent dispatch event
// to the caller as JSON text frames until the connection closes.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("admin feed: websocket upgrade failed")
		return
	}

	clientID := uuid.New().String()[:8]
	sub, cancel := h.publisher.Subscribe(subscribeDepth)

	metrics.WebSocketConnections.Inc()
	logger.Debug().Str("client_id", clientID).Str("remote_addr", r.RemoteAddr).Msg("admin feed client connected")

	go readPump(conn, clientID, cancel)
	writePump(conn, clientID, sub)
}

// readPump only exists to notice the peer going away — the feed is
// one-directional, so any inbound frame is discarded.
func readPump(conn *websocket.Conn, clientID string, cancel func()) {
	defer cancel()
	defer conn.Close()

	conn.SetReadLimit(512)
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

func writePump(conn *websocket.Conn, clientID string, sub <-chan *events.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		metrics.WebSocketConnections.Dec()
		logger.Debug().Str("client_id", clientID).Msg("admin feed client disconnected")
	}()

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			data, err := event.ToJSON()
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
