package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	achievementdomain "github.com/monstrox/monstro/internal/achievement/domain"
)

func (s *Server) ListMyAchievements(c *gin.Context) {
	locationID, ok := pathID(c, "locationId")
	if !ok {
		return
	}

	member, err := s.currentMember(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	progress, err := s.achievementSvc.ListForMember(c.Request.Context(), locationID.String(), member.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": progress})
}

func (s *Server) AdminListAchievements(c *gin.Context) {
	achievements, err := s.achievementSvc.List(c.Request.Context(), c.Param("locationId"), strings.TrimSpace(c.Query("status")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": achievements})
}

func (s *Server) AdminCreateAchievement(c *gin.Context) {
	var req achievementdomain.CreateAchievementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	achievement, err := s.achievementSvc.Create(c.Request.Context(), c.Param("locationId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": achievement})
}

func (s *Server) AdminArchiveAchievement(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	achievement, err := s.achievementSvc.Get(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !inLocation(c, achievement.LocationID) {
		AbortWithError(c, achievementdomain.ErrNotFound)
		return
	}

	archived, err := s.achievementSvc.Archive(c.Request.Context(), achievement.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": archived})
}
