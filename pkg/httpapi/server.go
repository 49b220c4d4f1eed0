// Package httpapi serves the session router, the role dashboards and the live
// alert screen over HTTP and websockets.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/internal/config"
	"github.com/jakechorley/donornet/pkg/auth"
	"github.com/jakechorley/donornet/pkg/core/services"
	"github.com/jakechorley/donornet/pkg/gateway"
	"github.com/jakechorley/donornet/pkg/session"
)

const shutdownTimeout = 5 * time.Second

// Store is the backend the API serves from
type Store interface {
	gateway.Roles
	gateway.AlertStore
	session.Lookup
	services.ProfileStore
	services.DashboardStore
	services.CampStore
}

// Server holds the dependencies shared by every handler
type Server struct {
	cfg      *config.Config
	store    Store
	feed     gateway.AlertFeed
	auth     *auth.Service
	logger   *zap.Logger
	sessions *session.TokenSessions
	upgrader websocket.Upgrader
	now      func() time.Time
}

// accessGateway pairs bearer-token sessions with the store's role lookup
type accessGateway struct {
	*session.TokenSessions
	gateway.Roles
}

func New(cfg *config.Config, store Store, feed gateway.AlertFeed, authService *auth.Service, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		feed:     feed,
		auth:     authService,
		logger:   logger,
		sessions: session.NewTokenSessions(store),
		now:      time.Now,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) gateway() accessGateway {
	return accessGateway{TokenSessions: s.sessions, Roles: s.store}
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), bearerToken())

	if len(s.cfg.Server.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.cfg.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/auth/signup", s.signUp)
		api.POST("/auth/login", s.login)
		api.POST("/auth/logout", s.logout)

		api.GET("/route", s.route)
	}

	protected := api.Group("")
	protected.Use(s.requireSession())
	{
		protected.GET("/dashboard", s.dashboard)

		protected.GET("/profile", s.getProfile)
		protected.PUT("/profile", s.completeProfile)

		protected.GET("/alerts", s.listAlerts)
		protected.POST("/alerts", s.submitAlert)
		protected.DELETE("/alerts/:id", s.deleteAlert)
		protected.GET("/alerts/live", s.liveAlerts)

		protected.GET("/camps", s.listCamps)
		protected.POST("/camps", s.createCamps)
		protected.PATCH("/camps/:id", s.editCamp)
		protected.DELETE("/camps/:id", s.deleteCamp)
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// checkOrigin accepts same-origin requests, and any configured origin
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.Server.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}
