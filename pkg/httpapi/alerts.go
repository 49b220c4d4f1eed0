package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jakechorley/donornet/pkg/core/alertsync"
	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// alertView is an alert as shown to one viewer
type alertView struct {
	model.Alert
	CanDelete bool `json:"canDelete"`
}

func alertViews(alerts []model.Alert, viewer model.Identity) []alertView {
	views := make([]alertView, len(alerts))
	for i, a := range alerts {
		views[i] = alertView{Alert: a, CanDelete: a.DeletableBy(viewer)}
	}
	return views
}

type alertRequest struct {
	BloodType string `json:"bloodType"`
	Location  string `json:"location"`
	Message   string `json:"message"`
}

func (r alertRequest) fields() model.AlertFields {
	return model.AlertFields{BloodType: r.BloodType, Location: r.Location, Message: r.Message}
}

// synchronizer returns an inactive synchronizer for one-shot submit and delete
func (s *Server) synchronizer() *alertsync.Synchronizer {
	return alertsync.New(s.sessions, s.store, s.feed, s.logger)
}

func (s *Server) listAlerts(c *gin.Context) {
	alerts, err := s.store.ListAlerts(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alertViews(alerts, identityFrom(c))})
}

func (s *Server) submitAlert(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", gateway.ErrInvalidInput, err))
		return
	}

	alert, err := s.synchronizer().Submit(c.Request.Context(), req.fields())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, alertView{Alert: alert, CanDelete: true})
}

func (s *Server) deleteAlert(c *gin.Context) {
	if err := s.synchronizer().Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
