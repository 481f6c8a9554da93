// Package gateway is the protocol multiplexer: one HTTP listener serving
// the web UI, a health probe, the external event bridge, and the WebSocket
// endpoint every client speaks the frame protocol over.
package gateway

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/agent/registry"
	"github.com/arosstale/pi-builder-sub000/internal/common/config"
	"github.com/arosstale/pi-builder-sub000/internal/common/httpmw"
	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
	"github.com/arosstale/pi-builder-sub000/internal/events"
	"github.com/arosstale/pi-builder-sub000/internal/events/bus"
	"github.com/arosstale/pi-builder-sub000/internal/gateway/websocket"
	"github.com/arosstale/pi-builder-sub000/internal/pty"
	"github.com/arosstale/pi-builder-sub000/internal/rpc"
	"github.com/arosstale/pi-builder-sub000/internal/session"
	"github.com/arosstale/pi-builder-sub000/internal/teams"
	"github.com/arosstale/pi-builder-sub000/internal/threads"
	"github.com/arosstale/pi-builder-sub000/pkg/protocol"
)

//go:embed web/index.html
var indexHTML []byte

// closeUnauthorized is the WebSocket close code for failed auth.
const closeUnauthorized = 4001

// Deps carries every component the gateway fronts.
type Deps struct {
	Session  *session.Service
	Registry *registry.Registry
	Pty      *pty.Manager
	RPC      *rpc.Manager
	Threads  *threads.Engine
	Teams    *teams.Driver
	Bus      bus.EventBus
}

// Server is the gateway HTTP/WebSocket listener.
type Server struct {
	cfg         *config.Config
	hub         *websocket.Hub
	handlers    *handlers
	broadcaster *broadcaster
	session     *session.Service
	bus         bus.EventBus
	logger      *logger.Logger

	httpServer *http.Server
	listener   net.Listener
	cancelHub  context.CancelFunc

	upgrader gorillaws.Upgrader
}

// NewServer wires the gateway against its components.
func NewServer(cfg *config.Config, deps Deps, log *logger.Logger) *Server {
	hub := websocket.NewHub(log)
	h := &handlers{
		session:   deps.Session,
		registry:  deps.Registry,
		pty:       deps.Pty,
		rpc:       deps.RPC,
		threads:   deps.Threads,
		teams:     deps.Teams,
		workDir:   cfg.Server.WorkDir,
		logger:    log.WithComponent("ws_handlers"),
		broadcast: hub.Broadcast,
	}
	return &Server{
		cfg:         cfg,
		hub:         hub,
		handlers:    h,
		broadcaster: newBroadcaster(hub, deps.Bus, cfg.Server.WorkDir, log),
		session:     deps.Session,
		bus:         deps.Bus,
		logger:      log.WithComponent("gateway"),
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway is local-first; token auth is the boundary.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start binds the listener and begins serving. The port is bound before
// Start returns, so callers may connect immediately.
func (s *Server) Start(ctx context.Context) error {
	hubCtx, cancel := context.WithCancel(context.Background())
	s.cancelHub = cancel
	go s.hub.Run(hubCtx)

	if err := s.broadcaster.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start broadcaster: %w", err)
	}

	listener, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		s.broadcaster.Stop()
		cancel()
		return fmt.Errorf("failed to bind %s: %w", s.cfg.Server.Addr(), err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway serve failed", zap.Error(err))
		}
	}()

	s.logger.Info("gateway listening", zap.String("addr", s.Addr()))
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Server.Addr()
	}
	return s.listener.Addr().String()
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

// Shutdown stops the listener and disconnects every client.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.broadcaster.Stop()
	if s.cancelHub != nil {
		s.cancelHub()
	}
	return err
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmw.RequestLogger(s.logger, "gateway"))
	r.Use(httpmw.OtelTracing("gateway"))

	// The WebSocket endpoint handles its own auth so it can answer with a
	// close code instead of a status line.
	r.GET("/ws", s.handleWS)

	authed := r.Group("/", s.authMiddleware())
	authed.GET("", s.handleIndex)
	authed.GET("/health", s.handleHealth)
	authed.POST("/bridge", s.handleBridge)

	return r
}

// authMiddleware enforces bearer-token auth when a token is configured.
// Loopback peers bypass the check unless TrustLocalhost is off.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.authorized(c.Request) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

func (s *Server) authorized(r *http.Request) bool {
	token := s.cfg.Server.AuthToken
	if token == "" {
		return true
	}
	if s.cfg.Server.TrustLocalhost && isLoopback(r.RemoteAddr) {
		return true
	}
	if r.Header.Get("Authorization") == "Bearer "+token {
		return true
	}
	// WS upgrades may carry the token in the query string.
	if r.URL.Query().Get("token") == token {
		return true
	}
	return false
}

// isLoopback reports whether the remote address is 127.0.0.1, ::1, or the
// v4-mapped ::ffff:127.0.0.1.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}

// handleIndex serves the embedded web UI. The COOP/COEP headers allow the
// UI to use shared memory.
func (s *Server) handleIndex(c *gin.Context) {
	if gorillaws.IsWebSocketUpgrade(c.Request) {
		s.handleWS(c)
		return
	}
	c.Header("Cross-Origin-Opener-Policy", "same-origin")
	c.Header("Cross-Origin-Embedder-Policy", "require-corp")
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"clients": s.hub.ClientCount(),
	})
}

// handleBridge re-broadcasts an external event to every WebSocket client.
func (s *Server) handleBridge(c *gin.Context) {
	var body map[string]interface{}
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": protocol.MsgInvalidJSON})
		return
	}

	data := map[string]interface{}{}
	for k, v := range body {
		if k == "type" {
			data["event"] = v
			continue
		}
		data[k] = v
	}

	event := bus.NewEvent(events.BridgeEvent, "bridge", data)
	if err := s.bus.Publish(c.Request.Context(), events.BridgeEvent, event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleWS upgrades the connection and attaches the client to the hub.
// Unauthorized peers are upgraded and immediately closed with 4001 so
// clients can tell auth failure from network failure.
func (s *Server) handleWS(c *gin.Context) {
	authorized := s.authorized(c.Request)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	if !authorized {
		msg := gorillaws.FormatCloseMessage(closeUnauthorized, "unauthorized")
		_ = conn.WriteControl(gorillaws.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	client := websocket.NewClient(uuid.New().String()[:8], conn, s.hub, s.handlers, s.logger)

	// Queue hello before the pumps start so it is the first frame out.
	client.Send(protocol.Hello(s.session.ID()))
	s.hub.Register(client)

	go client.WritePump()
	// The request context dies when this handler returns; the connection
	// outlives it.
	go client.ReadPump(context.Background())
}
