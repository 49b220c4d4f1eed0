package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jakechorley/donornet/pkg/auth"
	"github.com/jakechorley/donornet/pkg/core/access"
	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
	"github.com/jakechorley/donornet/pkg/session"
)

type credentialsRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type sessionResponse struct {
	Token       string            `json:"token"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	Destination model.Destination `json:"destination"`
	Path        string            `json:"path"`
}

type destinationResponse struct {
	Destination model.Destination `json:"destination"`
	Path        string            `json:"path"`
}

func newDestinationResponse(d model.Destination) destinationResponse {
	return destinationResponse{Destination: d, Path: d.Path()}
}

func (s *Server) signUp(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", gateway.ErrInvalidInput, err))
		return
	}

	sess, err := s.auth.SignUp(c.Request.Context(), req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.sessionResponse(c, sess))
}

func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", gateway.ErrInvalidInput, err))
		return
	}

	sess, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sessionResponse(c, sess))
}

// sessionResponse routes the freshly issued session the same way /api/route would
func (s *Server) sessionResponse(c *gin.Context, sess auth.Session) sessionResponse {
	ctx := session.WithToken(c.Request.Context(), sess.Token)
	dest := access.ResolveDestination(ctx, s.gateway(), s.logger)
	return sessionResponse{
		Token:       sess.Token,
		ExpiresAt:   sess.ExpiresAt,
		Destination: dest,
		Path:        dest.Path(),
	}
}

func (s *Server) logout(c *gin.Context) {
	if err := s.auth.Logout(c.Request.Context(), session.TokenFrom(c.Request.Context())); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// route answers where the caller should land. It never fails: any problem
// resolving the session or role is itself a destination.
func (s *Server) route(c *gin.Context) {
	dest := access.ResolveDestination(c.Request.Context(), s.gateway(), s.logger)
	c.JSON(http.StatusOK, newDestinationResponse(dest))
}
