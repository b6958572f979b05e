package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	socialdomain "github.com/monstrox/monstro/internal/social/domain"
	"github.com/monstrox/monstro/pkg/db/pagination"
)

// -------- Chats --------

func (s *Server) ListChats(c *gin.Context) {
	chats, err := s.socialSvc.ListChats(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": chats})
}

func (s *Server) CreateChat(c *gin.Context) {
	var req socialdomain.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	chat, err := s.socialSvc.CreateChat(c.Request.Context(), userIDFromContext(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": chat})
}

func (s *Server) ListChatMessages(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.socialSvc.ListMessages(c.Request.Context(), userIDFromContext(c), c.Param("id"), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Messages, "page_info": resp.PageInfo})
}

func (s *Server) SendChatMessage(c *gin.Context) {
	var req socialdomain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	message, err := s.socialSvc.SendMessage(c.Request.Context(), userIDFromContext(c), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": message})
}

func (s *Server) MarkChatRead(c *gin.Context) {
	if err := s.socialSvc.MarkRead(c.Request.Context(), userIDFromContext(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) DeleteChatMessage(c *gin.Context) {
	if err := s.socialSvc.DeleteMessage(c.Request.Context(), userIDFromContext(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// -------- Groups --------

func (s *Server) ListGroups(c *gin.Context) {
	groups, err := s.socialSvc.ListGroups(c.Request.Context(), userIDFromContext(c), c.Param("locationId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": groups})
}

func (s *Server) CreateGroup(c *gin.Context) {
	var req socialdomain.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	group, err := s.socialSvc.CreateGroup(c.Request.Context(), userIDFromContext(c), c.Param("locationId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": group})
}

func (s *Server) JoinGroup(c *gin.Context) {
	membership, err := s.socialSvc.JoinGroup(c.Request.Context(), userIDFromContext(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": membership})
}

func (s *Server) LeaveGroup(c *gin.Context) {
	if err := s.socialSvc.LeaveGroup(c.Request.Context(), userIDFromContext(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListMoments(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.socialSvc.ListMoments(c.Request.Context(), userIDFromContext(c), c.Param("id"), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Moments, "page_info": resp.PageInfo})
}

func (s *Server) PostMoment(c *gin.Context) {
	var req socialdomain.PostMomentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	moment, err := s.socialSvc.PostMoment(c.Request.Context(), userIDFromContext(c), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": moment})
}

func (s *Server) DeleteMoment(c *gin.Context) {
	if err := s.socialSvc.DeleteMoment(c.Request.Context(), userIDFromContext(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// -------- Reactions --------

func (s *Server) ListReactions(c *gin.Context) {
	counts, err := s.socialSvc.ListReactions(c.Request.Context(), userIDFromContext(c), c.Query("target_type"), c.Query("target_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": counts})
}

func (s *Server) React(c *gin.Context) {
	var req socialdomain.ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reaction, err := s.socialSvc.React(c.Request.Context(), userIDFromContext(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": reaction})
}

func (s *Server) Unreact(c *gin.Context) {
	var req socialdomain.ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.socialSvc.Unreact(c.Request.Context(), userIDFromContext(c), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
