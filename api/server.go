package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"liquorbot/services"
	"liquorbot/storage"
	"liquorbot/utils"
)

// Server exposes the ranking query and cache insights over HTTP.
type Server struct {
	engine   *gin.Engine
	handlers *Handlers
	logger   *utils.Logger
}

// NewServer builds the gin engine and registers every route.
func NewServer(
	ranker *services.Ranker,
	store storage.ListingStore,
	locations *services.LocationDirectory,
	insights *services.InsightService,
	logger *utils.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:   gin.New(),
		handlers: NewHandlers(ranker, store, locations, insights, logger),
		logger:   logger,
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.loggingMiddleware())
	s.engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	s.registerRoutes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// HTTPServer wraps the engine with the timeouts used in production.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handlers.Health)
	s.engine.GET("/listings", s.handlers.Listings)
	s.engine.GET("/locations", s.handlers.Locations)
	s.engine.GET("/insights", s.handlers.Insights)
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Debug("[api] %s %s -> %d (%dms) from %s",
			method, path, c.Writer.Status(), time.Since(start).Milliseconds(), c.ClientIP())
	}
}
