package handler

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sheet-tracker/backend/internal/domain"
	"github.com/sheet-tracker/backend/internal/infrastructure"
)

const (
	streamBuffer     = 16
	streamPingPeriod = 30 * time.Second
	streamWriteWait  = 10 * time.Second
)

type streamMessage struct {
	Type    string               `json:"type"`
	Payload *domain.CatalogEvent `json:"payload,omitempty"`
}

type streamClient struct {
	send chan domain.CatalogEvent
}

// StreamHub pushes catalog change notifications to websocket clients so open
// views know to refetch. It is registered as a catalog observer.
type StreamHub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *infrastructure.TelemetryMetrics

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

// NewStreamHub creates a hub accepting upgrades from the given origins ("*" allows any)
func NewStreamHub(allowedOrigins []string, logger *zap.Logger, metrics *infrastructure.TelemetryMetrics) *StreamHub {
	allowAny := slices.Contains(allowedOrigins, "*")
	return &StreamHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowAny || slices.Contains(allowedOrigins, origin)
			},
		},
		logger:  logger,
		metrics: metrics,
		clients: make(map[*streamClient]struct{}),
	}
}

// OnCatalogEvent fans the event out. A client whose buffer is full misses it.
func (h *StreamHub) OnCatalogEvent(_ context.Context, event domain.CatalogEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			h.logger.Debug("Dropped catalog event for slow stream client", zap.String("event", string(event.Type)))
		}
	}
}

// Clients returns the number of connected clients
func (h *StreamHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *StreamHub) register(c *gin.Context, client *streamClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.metrics.StreamClients.Add(c.Request.Context(), 1)
}

func (h *StreamHub) unregister(c *gin.Context, client *streamClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	h.metrics.StreamClients.Add(context.WithoutCancel(c.Request.Context()), -1)
}

// ServeWS upgrades the request and streams catalog events until the client goes away
// GET /api/catalog/stream
func (h *StreamHub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := &streamClient{send: make(chan domain.CatalogEvent, streamBuffer)}
	h.register(c, client)
	defer h.unregister(c, client)

	// the reader only notices the peer closing; clients send nothing
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(streamMessage{Type: "hello"}); err != nil {
		return
	}

	for {
		select {
		case event := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(streamMessage{Type: "catalog", Payload: &event}); err != nil {
				h.logger.Debug("Stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
