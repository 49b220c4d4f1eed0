package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/access"
	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// statusFor maps backend sentinels to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, gateway.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrPermissionDenied), errors.Is(err, gateway.ErrRoleUnresolved):
		return http.StatusForbidden
	case errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request error", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// deny answers a request the access gate refused. The body names where the
// client should go instead.
func deny(c *gin.Context, d access.Decision) {
	status := http.StatusForbidden
	if d.Redirect == model.DestinationLogin {
		status = http.StatusUnauthorized
	}
	body := gin.H{"error": "access denied"}
	if d.Redirect != "" {
		body["destination"] = d.Redirect
		body["path"] = d.Redirect.Path()
	}
	c.AbortWithStatusJSON(status, body)
}
