package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
)

func (s *Server) AdminListMembers(c *gin.Context) {
	var req memberdomain.ListMemberRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.memberSvc.ListByLocation(c.Request.Context(), c.Param("locationId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Members, "page_info": resp.PageInfo})
}

func (s *Server) AdminCreateMember(c *gin.Context) {
	var req memberdomain.CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.memberSvc.Create(c.Request.Context(), c.Param("locationId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": member})
}

func (s *Server) AdminArchiveMember(c *gin.Context) {
	memberID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.memberSvc.Archive(c.Request.Context(), c.Param("locationId"), memberID.String()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
