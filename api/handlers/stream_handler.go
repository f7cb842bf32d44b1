package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/kiwix-monitor-go/internal/app"
)

const (
	streamClientBuffer = 64
	pingInterval       = 30 * time.Second
	writeTimeout       = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// OperationStream fans applied mutations out to websocket clients.
// Broadcast never blocks; a client that falls behind is dropped.
type OperationStream struct {
	logger  *zap.Logger
	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	send chan app.OperationChange
	once sync.Once
}

func (sc *streamClient) close() {
	sc.once.Do(func() { close(sc.send) })
}

// NewOperationStream creates a stream hub
func NewOperationStream(log *zap.Logger) *OperationStream {
	return &OperationStream{
		logger:  log,
		clients: make(map[*streamClient]struct{}),
	}
}

// Broadcast is an app.MutationObserver
func (s *OperationStream) Broadcast(change app.OperationChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		select {
		case client.send <- change:
		default:
			s.logger.Warn("Dropping slow stream client")
			delete(s.clients, client)
			client.close()
		}
	}
}

// ClientCount returns the number of connected clients
func (s *OperationStream) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client
func (s *OperationStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		delete(s.clients, client)
		client.close()
	}
}

func (s *OperationStream) register() *streamClient {
	client := &streamClient{send: make(chan app.OperationChange, streamClientBuffer)}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()
	return client
}

func (s *OperationStream) unregister(client *streamClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		client.close()
	}
}

// HandleWebSocket handles GET /api/v1/operations/stream
func (s *OperationStream) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	client := s.register()
	defer s.unregister(client)

	s.logger.Info("Stream client connected", zap.String("remote_addr", c.Request.RemoteAddr))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case change, ok := <-client.send:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(change); err != nil {
				s.logger.Debug("Failed to send operation change", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
