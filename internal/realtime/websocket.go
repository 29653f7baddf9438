package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"qdamono/server/internal/auth"
	"qdamono/server/internal/util"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocketHandler upgrades HTTP requests into protocol connections served by
// an Engine.
type WebSocketHandler struct {
	engine          *Engine
	upgrader        websocket.Upgrader
	sendBuffer      int
	maxMessageBytes int64
	logger          *zap.Logger
}

// NewWebSocketHandler accepts upgrades from allowedOrigin only; "*" lets any
// origin through.
func NewWebSocketHandler(engine *Engine, sendBuffer int, maxMessageBytes int64, allowedOrigin string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigin),
		},
		sendBuffer:      sendBuffer,
		maxMessageBytes: maxMessageBytes,
		logger:          logger,
	}
}

// connSink queues frames for the connection's writer. Send never blocks; a
// full queue drops the frame.
type connSink struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newConnSink(size int) *connSink {
	return &connSink{frames: make(chan []byte, size), closed: make(chan struct{})}
}

func (s *connSink) Send(frame []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.frames <- frame:
		return true
	default:
		return false
	}
}

func (s *connSink) close() {
	s.once.Do(func() { close(s.closed) })
}

// originChecker matches the Origin header against allowed. Requests without
// an Origin header come from non-browser clients and pass.
func originChecker(allowed string) func(*http.Request) bool {
	allowed = strings.TrimRight(strings.TrimSpace(allowed), "/")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed == "*" {
			return true
		}
		return strings.EqualFold(strings.TrimRight(origin, "/"), allowed)
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.upgrader.CheckOrigin(r) {
		h.logger.Info("websocket origin rejected", zap.String("origin", r.Header.Get("Origin")))
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	connID := util.NewID("conn")
	sink := newConnSink(h.sendBuffer)

	sess, err := h.engine.Connect(r.Context(), connID, connectionToken(r), sink)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.logger.Error("connect", zap.String("conn_id", connID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("conn_id", connID), zap.Error(err))
		h.engine.Disconnect(context.WithoutCancel(r.Context()), sess)
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(conn, sink, connID)
	}()

	h.readLoop(r.Context(), conn, sess)

	sink.close()
	<-done
	h.engine.Disconnect(context.WithoutCancel(r.Context()), sess)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *Session) {
	conn.SetReadLimit(h.maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read", zap.String("conn_id", sess.ConnID), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		// Handle reports failures on the connection itself.
		_ = h.engine.Handle(ctx, sess, raw)
	}
}

func (h *WebSocketHandler) writePump(conn *websocket.Conn, sink *connSink, connID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame := <-sink.frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Debug("websocket write", zap.String("conn_id", connID), zap.Error(err))
				sink.close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sink.close()
				return
			}
		case <-sink.closed:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// connectionToken reads the credential from the token query parameter or an
// Authorization header.
func connectionToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("Authorization"))
}
