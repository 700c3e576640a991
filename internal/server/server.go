package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ridwanfathin/receipt-sync-service/docs"
	"github.com/ridwanfathin/receipt-sync-service/internal/config"
	"github.com/ridwanfathin/receipt-sync-service/internal/handler"
	"github.com/ridwanfathin/receipt-sync-service/internal/middleware"
)

// Handlers groups the HTTP handlers mounted under /v1. Drive is optional.
type Handlers struct {
	Receipt *handler.ReceiptHandler
	Sync    *handler.SyncHandler
	Drive   *handler.DriveHandler
}

// Server represents the HTTP server for the receipt sync service
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     *config.Config
}

// NewServer creates and configures a new server instance. Request logs go to logOutput.
func NewServer(cfg *config.Config, handlers Handlers, logOutput io.Writer) *Server {
	// Create router
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestResponseLogger(middleware.LoggerConfig{
		Format:    cfg.LogFormat,
		Output:    logOutput,
		SkipPaths: []string{"/health", "/metrics"},
	}))

	// Create server
	server := &Server{
		router: router,
		config: cfg,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}

	// Configure routes
	server.setupRoutes(handlers)

	return server
}

// GetRouter returns the gin router instance
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// setupRoutes configures all application routes
func (s *Server) setupRoutes(handlers Handlers) {
	// Health check endpoint
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API documentation endpoints
	// Access the Swagger UI at http://localhost:8080/api-docs/index.html
	swaggerHandler := ginSwagger.WrapHandler(swaggerFiles.Handler)
	s.router.GET("/api-docs/*any", swaggerHandler)

	s.router.GET("/api-docs", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/api-docs/index.html")
	})

	public := s.router.Group("/v1")
	protected := s.router.Group("/v1", middleware.APITokenAuth(s.config.APIToken))

	if handlers.Receipt != nil {
		handlers.Receipt.RegisterRoutes(protected)
	}
	if handlers.Sync != nil {
		handlers.Sync.RegisterRoutes(protected)
	}
	if handlers.Drive != nil {
		handlers.Drive.RegisterRoutes(public, protected)
	}
}

// Start begins listening for requests and blocks until SIGINT/SIGTERM,
// then shuts down gracefully
func (s *Server) Start() error {
	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	errCh := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		log.Printf("Server listening on port %d", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal or a listen failure
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Println("Shutting down server...")

	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server exited gracefully")
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}
