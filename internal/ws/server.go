package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatrelay/internal/relay"
)

// Options carries the transport tuning knobs from the config layer.
type Options struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration // must be < PongWait
	ReadLimit  int64
}

type WsServer struct {
	registry relay.RegistryHandle
	upgrader websocket.Upgrader
	opts     Options
	// Session actors must outlive the upgrade request, so they run under the
	// process context rather than the request context.
	ctx context.Context
}

func NewWsServer(ctx context.Context, registry relay.RegistryHandle, opts Options) *WsServer {
	return &WsServer{
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true }, // dev-only
		},
		opts: opts,
		ctx:  ctx,
	}
}

// Handle is the Gin entry-point for GET /messages/:name. It resolves the user
// aggregator, upgrades the connection, and attaches a fresh session bridge.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	name := ginCtx.Param("name")
	if name == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	user, err := s.registry.GetOrInsert(ginCtx.Request.Context(), name)
	if err != nil {
		zap.L().Error("ws.get_or_insert", zap.String("user", name), zap.Error(err))
		ginCtx.JSON(http.StatusServiceUnavailable, gin.H{"error": "registry unavailable"})
		return
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}

	// ─────────────────── Session joined ───────────────────────
	wsConn := newWSConn(rawConn, s.opts)
	if _, err := relay.NewSession(s.ctx, wsConn, user); err != nil {
		// The aggregator terminated between get-or-insert and now (its last
		// session vanished in the meantime); treat as a failed connect.
		zap.L().Warn("ws.attach_session", zap.String("user", name), zap.Error(err))
		_ = wsConn.Close()
		return
	}

	go s.pinger(wsConn)
}

func (s *WsServer) pinger(conn *wsConn) {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
