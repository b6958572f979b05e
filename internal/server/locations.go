package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
)

type createLocationRequest struct {
	locationdomain.CreateLocationRequest
	// OwnerID is required when a service token creates the location.
	OwnerID string `json:"owner_id"`
}

func (s *Server) ListLocations(c *gin.Context) {
	var req locationdomain.ListLocationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Status = locationdomain.StatusActive

	resp, err := s.locationSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Locations, "page_info": resp.PageInfo})
}

func (s *Server) JoinLocation(c *gin.Context) {
	locationID, ok := pathID(c, "locationId")
	if !ok {
		return
	}

	member, err := s.currentMember(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	membership, err := s.memberSvc.JoinLocation(c.Request.Context(), member.ID.String(), locationID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": membership})
}

// AdminListLocations lists the locations a staff user works at. Service
// tokens see every location.
func (s *Server) AdminListLocations(c *gin.Context) {
	var req locationdomain.ListLocationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.StaffUserID = userIDFromContext(c)

	resp, err := s.locationSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Locations, "page_info": resp.PageInfo})
}

func (s *Server) AdminCreateLocation(c *gin.Context) {
	var req createLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	creatorID := userIDFromContext(c)
	if creatorID == "" {
		creatorID = strings.TrimSpace(req.OwnerID)
	}
	if _, err := parseOptionalSnowflakeID(creatorID); err != nil || creatorID == "" {
		AbortWithError(c, newValidationError("owner_id", "invalid_owner_id", "invalid owner id"))
		return
	}

	location, err := s.locationSvc.Create(c.Request.Context(), creatorID, req.CreateLocationRequest)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": location})
}

func (s *Server) AdminGetLocation(c *gin.Context) {
	location, err := s.locationSvc.Get(c.Request.Context(), c.Param("locationId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": location})
}

func (s *Server) AdminUpdateLocation(c *gin.Context) {
	var req locationdomain.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	location, err := s.locationSvc.Update(c.Request.Context(), c.Param("locationId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": location})
}

func (s *Server) AdminListStaff(c *gin.Context) {
	staff, err := s.locationSvc.ListStaff(c.Request.Context(), c.Param("locationId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": staff})
}

func (s *Server) AdminAddStaff(c *gin.Context) {
	var req locationdomain.AddStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	staff, err := s.locationSvc.AddStaff(c.Request.Context(), c.Param("locationId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": staff})
}

func (s *Server) AdminRemoveStaff(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	if err := s.locationSvc.RemoveStaff(c.Request.Context(), c.Param("locationId"), userID.String()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
