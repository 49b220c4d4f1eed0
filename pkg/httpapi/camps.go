package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jakechorley/donornet/pkg/core/access"
	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/core/services"
	"github.com/jakechorley/donornet/pkg/gateway"
)

const dateLayout = "2006-01-02"

type campRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Date     string `json:"date"`
	RRule    string `json:"rrule"`
}

type campPatch struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
	Date     *string `json:"date"`
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", gateway.ErrInvalidInput, field)
	}
	return t, nil
}

// organization admits only organization accounts and returns the acting identity
func (s *Server) organization(c *gin.Context) (model.Identity, bool) {
	d, ok := access.Authorize(c.Request.Context(), s.gateway(), s.logger, model.RoleOrganization)
	if ok {
		return d.Identity, true
	}
	if !d.Allowed {
		deny(c, d)
		return "", false
	}
	s.fail(c, fmt.Errorf("%w: only organizations manage camps", gateway.ErrPermissionDenied))
	return "", false
}

func (s *Server) listCamps(c *gin.Context) {
	org, ok := s.organization(c)
	if !ok {
		return
	}

	var from time.Time
	if q := c.Query("from"); q != "" {
		var err error
		if from, err = parseDate("from", q); err != nil {
			s.fail(c, err)
			return
		}
	}

	camps, err := services.ListCamps(c.Request.Context(), s.store, s.logger, org, from)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"camps": camps})
}

func (s *Server) createCamps(c *gin.Context) {
	org, ok := s.organization(c)
	if !ok {
		return
	}

	var req campRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", gateway.ErrInvalidInput, err))
		return
	}

	var date time.Time
	if req.Date != "" {
		var err error
		if date, err = parseDate("date", req.Date); err != nil {
			s.fail(c, err)
			return
		}
	}

	rule := req.RRule
	if rule == "" {
		rule = s.cfg.CampDefaults.RRule
	}

	camps, err := services.CreateCamps(c.Request.Context(), s.store, s.logger, org, services.NewCamp{
		Name:     req.Name,
		Location: req.Location,
		Date:     date,
		RRule:    rule,
	}, s.cfg.CampDefaults.MaxOccurrences)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"camps": camps})
}

func (s *Server) editCamp(c *gin.Context) {
	org, ok := s.organization(c)
	if !ok {
		return
	}

	var req campPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", gateway.ErrInvalidInput, err))
		return
	}

	fields := model.CampFields{Name: req.Name, Location: req.Location}
	if req.Date != nil {
		date, err := parseDate("date", *req.Date)
		if err != nil {
			s.fail(c, err)
			return
		}
		fields.Date = &date
	}

	camp, err := services.EditCamp(c.Request.Context(), s.store, s.logger, org, c.Param("id"), fields)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, camp)
}

func (s *Server) deleteCamp(c *gin.Context) {
	org, ok := s.organization(c)
	if !ok {
		return
	}

	if err := services.DeleteCamp(c.Request.Context(), s.store, s.logger, org, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
