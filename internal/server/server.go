// Package server exposes the view-model's interaction surface over
// HTTP/JSON. It renders nothing: it relays user intents into the
// view-model and mirrors its three observable surfaces back out.
package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/e-tracker/tasktrack/internal/clock"
	"github.com/e-tracker/tasktrack/internal/repository"
	"github.com/e-tracker/tasktrack/internal/viewmodel"
)

type Server struct {
	engine *gin.Engine
	vm     *viewmodel.TaskViewModel
	repo   *repository.TaskRepository
	logger zerolog.Logger
	now    clock.Clock

	// vmMu serializes handlers that drive the view-model's single form
	// buffer and criteria. The view-model has one logical owner; gin
	// runs handlers concurrently, so the owner role is enforced here.
	vmMu sync.Mutex
}

func New(vm *viewmodel.TaskViewModel, repo *repository.TaskRepository, logger zerolog.Logger, now clock.Clock) *Server {
	if now == nil {
		now = clock.System
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	srv := &Server{
		engine: router,
		vm:     vm,
		repo:   repo,
		logger: logger,
		now:    now,
	}

	router.Use(srv.requestLogger())
	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)
		api.GET("/events", s.handleEvents)

		tasks := api.Group("/tasks")
		{
			tasks.GET("", s.handleListTasks)
			tasks.GET("/summary", s.handleSummary)
			tasks.POST("", s.handleCreateTask)
			tasks.PUT(":id", s.handleUpdateTask)
			tasks.DELETE(":id", s.handleDeleteTask)
		}
	}
}

// requestLogger tags every request with an id and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

func (s *Server) respondError(c *gin.Context, status int, err error) {
	if err != nil {
		s.logger.Error().Str("path", c.FullPath()).Err(err).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
