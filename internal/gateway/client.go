package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signal-systemv1/internal/model"
)

const (
	writeWait  = 10 * time.Second
	readWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single WebSocket peer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Per-client stream subscriptions: one forwarder goroutine per key.
	subMu sync.Mutex
	subs  map[model.SubscriptionKey]context.CancelFunc
}

func (c *Client) enqueueJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[gateway] client %s send buffer full, dropping message", c.id)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.enqueueJSON(ErrorMessage{Type: "error", Message: "malformed message"})
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		c.subscribe(msg)
	case "unsubscribe":
		c.unsubscribe(msg)
	case "strategy-control":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		resp := c.hub.control(ctx, msg)
		cancel()
		c.enqueueJSON(resp)
	default:
		c.enqueueJSON(ErrorMessage{Type: "error", Message: "unknown message type: " + msg.Type})
	}
}

// subscribe attaches the client to a distributor stream: an immediate full
// snapshot, then forwarded live updates until unsubscribe or disconnect.
func (c *Client) subscribe(msg ClientMessage) {
	if msg.Symbol == "" || msg.Timeframe == "" {
		c.enqueueJSON(ErrorMessage{Type: "error", Message: "subscribe requires symbol and timeframe"})
		return
	}
	key := model.SubscriptionKey{Symbol: msg.Symbol, Timeframe: msg.Timeframe}

	c.subMu.Lock()
	if _, exists := c.subs[key]; exists {
		c.subMu.Unlock()
		c.enqueueJSON(ErrorMessage{Type: "error", Message: "already subscribed to " + key.String()})
		return
	}
	c.subMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	snapshot, updates, err := c.hub.dist.Subscribe(ctx, key, c.subscriberID(key))
	if err != nil {
		cancel()
		c.enqueueJSON(ErrorMessage{Type: "error", Message: err.Error()})
		return
	}

	c.subMu.Lock()
	c.subs[key] = cancel
	c.subMu.Unlock()

	c.enqueueJSON(newOHLCV(key, model.UpdateFull, snapshot))

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				if upd.Type == model.UpdateIncremental {
					c.enqueueJSON(newOHLCV(key, upd.Type, upd.Last()))
				} else {
					c.enqueueJSON(newOHLCV(key, upd.Type, upd.Candles))
				}
			}
		}
	}()
}

func (c *Client) unsubscribe(msg ClientMessage) {
	key := model.SubscriptionKey{Symbol: msg.Symbol, Timeframe: msg.Timeframe}

	c.subMu.Lock()
	cancel, exists := c.subs[key]
	if exists {
		delete(c.subs, key)
	}
	c.subMu.Unlock()

	// Idempotent: unknown subscriptions are a silent no-op on the
	// distributor side as well.
	c.hub.dist.Unsubscribe(key, c.subscriberID(key))
	if exists {
		cancel()
	}
}

// releaseSubscriptions drops all distributor subscriptions on disconnect.
func (c *Client) releaseSubscriptions() {
	c.subMu.Lock()
	subs := c.subs
	c.subs = make(map[model.SubscriptionKey]context.CancelFunc)
	c.subMu.Unlock()

	for key, cancel := range subs {
		c.hub.dist.Unsubscribe(key, c.subscriberID(key))
		cancel()
	}
}

func (c *Client) subscriberID(key model.SubscriptionKey) string {
	return "ws:" + c.id + ":" + key.String()
}
