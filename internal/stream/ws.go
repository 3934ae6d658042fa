package stream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Observers connect from local dashboards.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSServer pushes hub updates to WebSocket observers.
type WSServer struct {
	hub *Hub
	log zerolog.Logger
}

// NewWSServer creates the WebSocket push surface over a hub.
func NewWSServer(hub *Hub, log zerolog.Logger) *WSServer {
	return &WSServer{
		hub: hub,
		log: log.With().Str("component", "ws").Logger(),
	}
}

// ServeHTTP upgrades the connection and streams updates until the
// client goes away or the hub evicts it.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	updates := s.hub.Subscribe(r.RemoteAddr)
	s.log.Info().Str("client", r.RemoteAddr).Msg("Observer connected")

	// Swallow client frames so control messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		s.hub.Unsubscribe(updates)
		conn.Close()
		s.log.Info().Str("client", r.RemoteAddr).Msg("Observer disconnected")
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "slow consumer"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
