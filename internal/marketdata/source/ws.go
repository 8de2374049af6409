package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"signal-systemv1/internal/model"
)

const (
	defaultDialTimeout = 8 * time.Second
	pongWait           = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// WSConfig configures the upstream websocket feed.
type WSConfig struct {
	URL        string
	APIKey     string
	TOTPSecret string // session code generated per connection attempt
	History    HistoryFunc
	DialTO     time.Duration
}

// WSSource streams candles for one key from the upstream websocket feed.
// One instance per subscription key; the distributor owns its lifecycle.
type WSSource struct {
	key  model.SubscriptionKey
	cfg  WSConfig
	conn *websocket.Conn
}

// NewWSSource creates a websocket source adapter for the given key.
func NewWSSource(key model.SubscriptionKey, cfg WSConfig) *WSSource {
	if cfg.DialTO <= 0 {
		cfg.DialTO = defaultDialTimeout
	}
	return &WSSource{key: key, cfg: cfg}
}

// wsTick is the upstream per-candle message shape.
type wsTick struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	TS        int64   `json:"ts"` // unix millis, bucket start
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Confirm   bool    `json:"confirm"`
}

// Run dials the upstream, subscribes to the key's stream, and pushes
// normalized candles into sink until the connection fails or ctx ends.
func (s *WSSource) Run(ctx context.Context, sink chan<- model.Candle) error {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTO)
	defer cancel()

	header := http.Header{}
	if s.cfg.APIKey != "" {
		header.Set("x-api-key", s.cfg.APIKey)
	}
	if s.cfg.TOTPSecret != "" {
		code, err := totp.GenerateCode(s.cfg.TOTPSecret, time.Now())
		if err != nil {
			return fmt.Errorf("ws source %s: totp: %w", s.key, err)
		}
		header.Set("x-session-code", code)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(dctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("ws source %s: dial: %w (status %s)", s.key, err, resp.Status)
		}
		return fmt.Errorf("ws source %s: dial: %w", s.key, err)
	}
	s.conn = conn
	defer conn.Close()

	sub := map[string]interface{}{
		"op":        "subscribe",
		"symbol":    s.key.Symbol,
		"timeframe": s.key.Timeframe,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("ws source %s: subscribe: %w", s.key, err)
	}
	log.Printf("[source] %s connected and subscribed", s.key)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Keepalive pings; the read loop below owns the connection lifetime.
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Unblock ReadMessage on cancellation.
	go func() {
		<-pingCtx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ws source %s: read: %w", s.key, err)
		}
		var tick wsTick
		if err := json.Unmarshal(raw, &tick); err != nil {
			log.Printf("[source] %s: skipping malformed message: %v", s.key, err)
			continue
		}
		if tick.TS == 0 {
			continue // ack or heartbeat frame
		}
		c := s.normalize(tick)
		select {
		case sink <- c:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *WSSource) normalize(t wsTick) model.Candle {
	return model.Candle{
		Symbol:    s.key.Symbol,
		Timeframe: s.key.Timeframe,
		TS:        time.UnixMilli(t.TS).UTC(),
		Open:      t.Open,
		High:      t.High,
		Low:       t.Low,
		Close:     t.Close,
		Volume:    t.Volume,
		Final:     t.Confirm,
	}
}

// History delegates to the configured history collaborator.
func (s *WSSource) History(ctx context.Context, limit int) ([]model.Candle, error) {
	if s.cfg.History == nil {
		return nil, nil
	}
	return s.cfg.History(ctx, s.key, limit)
}

// Close tears down the current connection, if any. Idempotent.
func (s *WSSource) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
