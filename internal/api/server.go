// Package api serves the admin HTTP endpoints and the WebSocket bridge to
// the board.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tacboard/internal/hub"
	"tacboard/internal/logger"
	"tacboard/internal/transport"
	"tacboard/pkg/interfaces"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// Attacher adopts a stream as a new board connection.
type Attacher interface {
	Attach(stream transport.Stream) (*transport.Connection, error)
}

var upgrader = websocket.Upgrader{
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

type Server struct {
	board    interfaces.Board
	events   interfaces.EventStore
	attacher Attacher
	log      *logger.Logger
	engine   *gin.Engine
}

// NewServer builds the router. events and attacher may be nil, which
// disables /api/events and /ws respectively.
func NewServer(board interfaces.Board, events interfaces.EventStore, attacher Attacher, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		board:    board,
		events:   events,
		attacher: attacher,
		log:      log,
		engine:   gin.New(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(requestIDMiddleware())
	s.engine.Use(s.loggingMiddleware())

	s.engine.GET("/health", s.healthCheck)
	s.engine.GET("/ws", s.handleWebSocket)

	api := s.engine.Group("/api")
	api.GET("/stats", s.getStats)
	api.GET("/snapshot", s.getSnapshot)
	api.GET("/events", s.listEvents)
	api.POST("/connections/:id/resync", s.resyncConnection)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("request_id", reqID)
		c.Header("X-Request-Id", reqID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("%s %s %d %s [%s]",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), c.GetString("request_id"))
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	database := "disabled"
	if s.events != nil {
		if err := s.events.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}
		database = "healthy"
	}

	stats := s.board.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"database":      database,
		"authenticated": stats.Authenticated,
		"pending":       stats.Pending,
		"timestamp":     time.Now().UTC(),
	})
}

func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.board.Stats())
}

func (s *Server) getSnapshot(c *gin.Context) {
	snapshot, err := s.board.Snapshot(c.Request.Context())
	if err != nil {
		s.sendError(c, http.StatusServiceUnavailable, "board unavailable")
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) resyncConnection(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		s.sendError(c, http.StatusBadRequest, "invalid connection id")
		return
	}

	switch err := s.board.Resync(c.Request.Context(), id); {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "resync sent"})
	case errors.Is(err, hub.ErrNotAuthenticated):
		s.sendError(c, http.StatusNotFound, "no authenticated connection with that id")
	default:
		s.sendError(c, http.StatusServiceUnavailable, "board unavailable")
	}
}

func (s *Server) listEvents(c *gin.Context) {
	if s.events == nil {
		s.sendError(c, http.StatusNotFound, "journal disabled")
		return
	}

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := s.events.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("Failed to read journal: %v", err)
		s.sendError(c, http.StatusInternalServerError, "failed to read journal")
		return
	}
	total, err := s.events.CountEvents(c.Request.Context())
	if err != nil {
		s.log.Error("Failed to count journal: %v", err)
		s.sendError(c, http.StatusInternalServerError, "failed to read journal")
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "total": total})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	if s.attacher == nil {
		s.sendError(c, http.StatusNotFound, "websocket bridge disabled")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed: %v", err)
		return
	}

	board, err := s.attacher.Attach(transport.NewWebSocketStream(conn))
	if err != nil {
		s.log.Warn("WebSocket client %s refused: %v", conn.RemoteAddr(), err)
		return
	}
	s.log.Info("WebSocket client attached as %s", board)
}

func (s *Server) sendError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "status": status})
}
