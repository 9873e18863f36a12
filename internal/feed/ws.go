// Package feed maintains the mark price cache from the CLOB real-time
// WebSocket feed. Marks feed the unrealized side of the ledger; the feed is
// best-effort and positions without a fresh mark are reported unpriced
// rather than guessed.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// LastTrade is a trade print from the CLOB feed.
type LastTrade struct {
	TokenID string
	Price   float64
	TradeAt time.Time
}

// LastTradeHandler is called for every last trade price message.
type LastTradeHandler func(LastTrade)

// wsCommand is the subscription envelope the CLOB WebSocket expects.
type wsCommand struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Assets  []string `json:"assets_ids"`
}

// wsClient is a minimal WebSocket client for the CLOB market channel. It
// subscribes to last_trade_price for a set of token IDs and dispatches each
// print to a handler. Reconnection is the caller's concern; on any read
// error the client closes and the read loop exits.
type wsClient struct {
	wsURL   string
	conn    *websocket.Conn
	handler LastTradeHandler

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newWSClient(wsURL string, handler LastTradeHandler) *wsClient {
	return &wsClient{
		wsURL:   wsURL,
		handler: handler,
		done:    make(chan struct{}),
	}
}

// connect dials the feed and starts the read and ping loops.
func (w *wsClient) connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("feed: client closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	return nil
}

// subscribe asks for last trade prints on the given token IDs.
func (w *wsClient) subscribe(tokenIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("feed: not connected")
	}

	cmd := wsCommand{
		Type:    "subscribe",
		Channel: "last_trade_price",
		Assets:  tokenIDs,
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("feed: marshal subscribe: %w", err)
	}

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	return nil
}

// close shuts the connection down. Safe to call more than once.
func (w *wsClient) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		_ = w.conn.Close()
	}
}

// wait blocks until the connection dies or is closed.
func (w *wsClient) wait() {
	<-w.done
}

func (w *wsClient) readLoop() {
	defer w.close()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		_, message, err := w.conn.ReadMessage()
		if err != nil {
			return
		}
		w.handleMessage(message)
	}
}

func (w *wsClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			conn := w.conn
			w.mu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses one feed message and dispatches trade prints.
// Messages that are not last trade prints, or that fail to parse, are
// dropped silently.
func (w *wsClient) handleMessage(raw []byte) {
	var msg struct {
		EventType string `json:"event_type"`
		AssetID   string `json:"asset_id"`
		Price     string `json:"price"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.EventType != "last_trade_price" || msg.AssetID == "" {
		return
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil {
		return
	}

	tradeAt := time.Now().UTC()
	if ms, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil && ms > 0 {
		tradeAt = time.UnixMilli(ms).UTC()
	}

	w.handler(LastTrade{
		TokenID: msg.AssetID,
		Price:   price,
		TradeAt: tradeAt,
	})
}
