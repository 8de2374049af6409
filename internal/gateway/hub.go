// Package gateway serves the streaming WebSocket surface: candle fan-out to
// clients, strategy control, and signal push.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"signal-systemv1/internal/marketdata/distributor"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/strategy"
)

// Hub manages WebSocket clients and routes between them, the distributor
// and the strategy manager.
type Hub struct {
	dist *distributor.Distributor
	mgr  *strategy.Manager

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a hub over the given collaborators.
func NewHub(dist *distributor.Distributor, mgr *strategy.Manager) *Hub {
	return &Hub{
		dist:    dist,
		mgr:     mgr,
		clients: make(map[*Client]bool),
	}
}

// HandleConn registers an upgraded WebSocket connection and starts its
// read/write pumps.
func (h *Hub) HandleConn(conn *websocket.Conn) {
	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[model.SubscriptionKey]context.CancelFunc),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("[gateway] client %s connected (%d total)", client.id, count)

	client.enqueueJSON(ConnectionMessage{
		Type:    "connection",
		Message: "connected",
		TS:      time.Now().UTC(),
	})

	go client.writePump()
	go client.readPump()
}

// BroadcastSignal pushes a signal-generated event to every client.
func (h *Hub) BroadcastSignal(sig model.Signal) {
	payload, err := json.Marshal(SignalMessage{Type: "signal-generated", Signal: sig})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// slow client loses the push; it can re-fetch over REST
		}
	}
}

// removeClient drops a client and releases its distributor subscriptions.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()

	c.releaseSubscriptions()
	close(c.send)
	log.Printf("[gateway] client %s disconnected", c.id)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// control applies a strategy-control action and builds the response.
func (h *Hub) control(ctx context.Context, msg ClientMessage) ControlResponseMessage {
	resp := ControlResponseMessage{
		Type:       "strategy-control-response",
		StrategyID: msg.StrategyID,
		Action:     msg.Action,
	}

	var err error
	switch msg.Action {
	case "start":
		err = h.mgr.Start(ctx, msg.StrategyID)
	case "stop":
		err = h.mgr.Stop(msg.StrategyID)
	case "pause":
		err = h.mgr.Pause(msg.StrategyID)
	case "resume":
		err = h.mgr.Resume(msg.StrategyID)
	default:
		resp.Error = "unknown action: " + msg.Action
		return resp
	}

	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.OK = true
	}
	if in, gerr := h.mgr.Get(msg.StrategyID); gerr == nil {
		resp.State = string(in.State())
	}
	return resp
}
