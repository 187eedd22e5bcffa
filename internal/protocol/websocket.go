// internal/protocol/websocket.go
package protocol

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The engine is driven by local tooling; origins are not restricted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket is a Channel over one websocket connection, one JSON message per frame.
type WebSocket struct {
	conn   *websocket.Conn
	logger *zap.Logger

	wmu       sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Channel = (*WebSocket)(nil)

// NewWebSocket wraps conn and starts its keepalive pinger.
func NewWebSocket(conn *websocket.Conn, logger *zap.Logger) *WebSocket {
	if logger == nil {
		logger = zap.NewNop()
	}
	ws := &WebSocket{conn: conn, logger: logger.Named("websocket"), done: make(chan struct{})}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	ws.wg.Add(1)
	go ws.ping()
	return ws
}

func (ws *WebSocket) ping() {
	defer ws.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ws.done:
			return
		case <-ticker.C:
			ws.wmu.Lock()
			err := ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			ws.wmu.Unlock()
			if err != nil {
				ws.logger.Debug("Ping failed.", zap.Error(err))
				return
			}
		}
	}
}

func (ws *WebSocket) Receive(ctx context.Context) (Request, error) {
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	kind, raw, err := ws.conn.ReadMessage()
	if err != nil {
		select {
		case <-ws.done:
			return Request{}, ErrClosed
		default:
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			ws.logger.Warn("WebSocket closed unexpectedly.", zap.Error(err))
			return Request{}, err
		}
		return Request{}, ErrClosed
	}
	if kind != websocket.TextMessage {
		return Request{}, fmt.Errorf("%w: binary frame", ErrMalformed)
	}
	return Decode(raw)
}

func (ws *WebSocket) Send(ctx context.Context, resp Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := wire.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	ws.wmu.Lock()
	defer ws.wmu.Unlock()
	if err := ws.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.conn.WriteMessage(websocket.TextMessage, raw)
}

// Close sends a close frame, stops the pinger and closes the connection.
func (ws *WebSocket) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		close(ws.done)
		ws.wmu.Lock()
		_ = ws.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		ws.wmu.Unlock()
		err = ws.conn.Close()
		ws.wg.Wait()
	})
	return err
}

// WebSocketHandler upgrades HTTP requests and serves the router over each connection until it closes.
func WebSocketHandler(r *Router, opts ServeOptions, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("websocket")
	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			// Upgrade already answered with an HTTP error.
			logger.Error("Failed to upgrade connection to WebSocket.", zap.Error(err))
			return
		}
		logger.Info("WebSocket connection established.", zap.String("remoteAddr", req.RemoteAddr))
		if err := Serve(req.Context(), NewWebSocket(conn, logger), r, opts); err != nil {
			logger.Warn("WebSocket session ended with error.", zap.Error(err))
		}
		logger.Debug("WebSocket connection closed.", zap.String("remoteAddr", req.RemoteAddr))
	}
}
