package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jakechorley/donornet/pkg/core/access"
	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/core/services"
	"github.com/jakechorley/donornet/pkg/gateway"
)

func (s *Server) dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	d := access.CheckAccess(ctx, s.gateway(), s.logger)
	if !d.Allowed {
		deny(c, d)
		return
	}

	view, err := services.BuildDashboard(ctx, s.store, s.logger, d.Identity, d.Role, services.DashboardOptions{
		OrganizationQuery: c.Query("q"),
		Now:               s.now(),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) getProfile(c *gin.Context) {
	profile, err := services.GetProfile(c.Request.Context(), s.sessions, s.store, s.logger)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type profileRequest struct {
	FullName         string `json:"fullName"`
	Role             string `json:"role"`
	BloodGroup       string `json:"bloodGroup"`
	OrganizationID   string `json:"organizationId"`
	OrganizationName string `json:"organizationName"`
}

func (s *Server) completeProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", gateway.ErrInvalidInput, err))
		return
	}

	dest, err := services.CompleteProfile(c.Request.Context(), s.sessions, s.store, s.logger, model.ProfileUpdate{
		FullName:         req.FullName,
		Role:             model.Role(strings.ToLower(strings.TrimSpace(req.Role))),
		BloodGroup:       req.BloodGroup,
		OrganizationID:   model.Identity(req.OrganizationID),
		OrganizationName: req.OrganizationName,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newDestinationResponse(dest))
}
