package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"badgehub/internal/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 50 * time.Second
	wsSendBufferSize = 16
)

// UnlockStream pushes unlock, revoke and featured-badge notifications to
// websocket subscribers. It subscribes to the notification bus once and fans
// out to every connected client; a client that cannot keep up is dropped.
type UnlockStream struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan events.Notification
}

// NewUnlockStream creates the stream and subscribes it to the bus.
func NewUnlockStream(bus *events.Bus, logger *zap.Logger) (*UnlockStream, error) {
	s := &UnlockStream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The stream is broadcast-only and carries no per-user secrets.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}

	for _, notificationType := range []string{
		events.TypeAchievementUnlock,
		events.TypeAchievementRevoked,
		events.TypeFeaturedBadgeSet,
	} {
		if err := bus.Subscribe(notificationType, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// HandlerID implements events.Handler.
func (s *UnlockStream) HandlerID() string { return "ws-unlock-stream" }

// Handle implements events.Handler: fan the notification out to every
// connected client without blocking the bus.
func (s *UnlockStream) Handle(ctx context.Context, n events.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		select {
		case client.send <- n:
		default:
			// Slow consumer; closing send makes its write pump exit.
			delete(s.clients, client)
			close(client.send)
		}
	}
	return nil
}

// ServeHTTP upgrades the connection and streams notifications until the
// client disconnects.
func (s *UnlockStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan events.Notification, wsSendBufferSize),
	}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("Websocket client connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Int("clients", total),
	)

	go s.writePump(client)
	s.readPump(client)
}

// Close disconnects every client.
func (s *UnlockStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		delete(s.clients, client)
		close(client.send)
	}
}

// readPump discards inbound frames and notices disconnects.
func (s *UnlockStream) readPump(client *wsClient) {
	defer s.drop(client)

	client.conn.SetReadLimit(512)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *UnlockStream) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case n, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(n); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *UnlockStream) drop(client *wsClient) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
	s.mu.Unlock()
	_ = client.conn.Close()
}
