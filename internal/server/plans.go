package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	plandomain "github.com/monstrox/monstro/internal/plan/domain"
)

func (s *Server) ListLocationPlans(c *gin.Context) {
	locationID, ok := pathID(c, "locationId")
	if !ok {
		return
	}

	plans, err := s.planSvc.List(c.Request.Context(), locationID.String(), plandomain.StatusActive)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plans})
}

func (s *Server) AdminListPlans(c *gin.Context) {
	plans, err := s.planSvc.List(c.Request.Context(), c.Param("locationId"), strings.TrimSpace(c.Query("status")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plans})
}

func (s *Server) AdminCreatePlan(c *gin.Context) {
	var req plandomain.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan, err := s.planSvc.Create(c.Request.Context(), c.Param("locationId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": plan})
}

func (s *Server) AdminUpdatePlan(c *gin.Context) {
	plan, ok := s.locationPlan(c)
	if !ok {
		return
	}

	var req plandomain.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	updated, err := s.planSvc.Update(c.Request.Context(), plan.ID.String(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) AdminArchivePlan(c *gin.Context) {
	plan, ok := s.locationPlan(c)
	if !ok {
		return
	}

	archived, err := s.planSvc.Archive(c.Request.Context(), plan.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": archived})
}

func (s *Server) locationPlan(c *gin.Context) (*plandomain.Plan, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	plan, err := s.planSvc.Get(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if !inLocation(c, plan.LocationID) {
		AbortWithError(c, plandomain.ErrNotFound)
		return nil, false
	}
	return plan, true
}
