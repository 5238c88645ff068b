package hub

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/live-tickers/pkg/models"
)

var (
	ErrSendBufferFull = errors.New("client send buffer full")
	ErrClientClosed   = errors.New("client closed")
)

type ClientInterface interface {
	ID() string
	SendJSON(v interface{}) error
	SendBytes(b []byte) error
	Close()
}

// SnapshotSource yields the current instrument set for tickers:init.
type SnapshotSource interface {
	Instruments() []models.Instrument
}

// Hub is the list of connected channels. It keeps no per-client subscription state:
// every registered client receives every broadcast.
type Hub struct {
	clients map[ClientInterface]struct{}

	source SnapshotSource
	logger *zap.Logger
	mu     sync.RWMutex
}

func NewHub(source SnapshotSource, logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[ClientInterface]struct{}),
		source:  source,
		logger:  logger,
	}
}

func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	h.logger.Debug("Client registered", zap.String("client", client.ID()), zap.Int("clients", len(h.clients)))
}

func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		h.logger.Debug("Client unregistered", zap.String("client", client.ID()), zap.Int("clients", len(h.clients)))
	}
	client.Close()
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest) {
	switch req.Action {
	case protocol.ActionSnapshot:
		if err := h.SendSnapshot(client); err != nil {
			h.logger.Warn("Snapshot send failed", zap.String("client", client.ID()), zap.Error(err))
		}
	default:
		h.sendError(client, req.ID, "Unknown action: "+req.Action)
	}
}

// SendSnapshot pushes the full instrument set to a single client.
func (h *Hub) SendSnapshot(client ClientInterface) error {
	msg, err := protocol.Encode(models.EventInit, h.source.Instruments())
	if err != nil {
		return err
	}
	return client.SendBytes(msg)
}

// Broadcast encodes data once and offers it to every client. A failing client is logged
// and skipped; it never blocks delivery to the rest. Returns the number of clients reached.
func (h *Hub) Broadcast(event string, data interface{}) int {
	msg, err := protocol.Encode(event, data)
	if err != nil {
		h.logger.Error("Broadcast encode failed", zap.String("event", event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients {
		if err := client.SendBytes(msg); err != nil {
			h.logger.Warn("Broadcast to client failed",
				zap.String("client", client.ID()),
				zap.String("event", event),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// Shutdown closes and forgets every client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.Close()
	}
	h.clients = make(map[ClientInterface]struct{})
}

func (h *Hub) sendError(c ClientInterface, id, msg string) {
	if err := c.SendJSON(protocol.WSResponse{Type: "error", ID: id, Status: "error", Message: msg}); err != nil {
		h.logger.Debug("Error response dropped", zap.String("client", c.ID()), zap.Error(err))
	}
}
