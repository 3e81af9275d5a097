// ws.go implements per-token order-book WebSocket subscription sessions:
// connect, send a subscribe frame naming the token, iterate messages,
// invoke the caller's callback on every book update, and maintain a ping
// loop for liveness. On any error the session sleeps with exponential
// backoff from 1s to 30s and retries while running; backoff resets on a
// successful reconnect.
package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"polyarb/pkg/types"
)

const (
	bookPingInterval     = 50 * time.Second
	bookReadTimeout      = 90 * time.Second
	bookMaxReconnectWait = 30 * time.Second
	bookWriteTimeout     = 10 * time.Second
)

// bookSession is a single long-lived WS subscription for one token.
type bookSession struct {
	tokenID  string
	url      string
	callback func(*types.OrderBook)
	logger   *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	cancel context.CancelFunc
	done   chan struct{}
}

func (s *bookSession) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

func (s *bookSession) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()
	if s.done != nil {
		<-s.done
	}
}

func (s *bookSession) run(ctx context.Context) {
	backoff := time.Second
	for {
		connected, err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = time.Second
		}
		s.logger.Warn("book session disconnected, reconnecting", "token_id", s.tokenID, "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > bookMaxReconnectWait {
			backoff = bookMaxReconnectWait
		}
	}
}

// connectAndRead runs one session and reports whether the dial succeeded.
func (s *bookSession) connectAndRead(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, types.NewClobWebSocketError("connect", err)
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	sub := wireSubscribeMsg{Type: "market", AssetIDs: []string{s.tokenID}}
	conn.SetWriteDeadline(time.Now().Add(bookWriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return true, fmt.Errorf("subscribe: %w", err)
	}

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go s.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(bookReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		s.handleMessage(msg)
	}
}

func (s *bookSession) handleMessage(data []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return
	}
	if envelope.EventType != "book" {
		return
	}
	var evt wireBookEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		s.logger.Error("unmarshal book event", "error", err)
		return
	}
	book := &types.OrderBook{TokenID: s.tokenID, Timestamp: time.Now()}
	for _, l := range evt.Buys {
		book.Bids = append(book.Bids, toLevel(l))
	}
	for _, l := range evt.Sells {
		book.Asks = append(book.Asks, toLevel(l))
	}
	s.callback(book)
}

func (s *bookSession) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(bookPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			s.connMu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(bookWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				return
			}
		}
	}
}

// bookSessionManager owns one bookSession per subscribed token.
type bookSessionManager struct {
	url    string
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*bookSession
}

func newBookSessionManager(url string, logger *slog.Logger) *bookSessionManager {
	return &bookSessionManager{
		url:      url,
		logger:   logger.With("component", "book_session"),
		sessions: make(map[string]*bookSession),
	}
}

func (m *bookSessionManager) subscribe(ctx context.Context, tokenID string, callback func(*types.OrderBook)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[tokenID]; exists {
		return nil
	}
	s := &bookSession{tokenID: tokenID, url: m.url, callback: callback, logger: m.logger}
	s.start(ctx)
	m.sessions[tokenID] = s
	return nil
}

func (m *bookSessionManager) unsubscribe(tokenID string) {
	m.mu.Lock()
	s, ok := m.sessions[tokenID]
	if ok {
		delete(m.sessions, tokenID)
	}
	m.mu.Unlock()
	if ok {
		s.stop()
	}
}

func (m *bookSessionManager) closeAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*bookSession)
	m.mu.Unlock()
	for _, s := range sessions {
		s.stop()
	}
}
