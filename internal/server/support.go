package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	supportdomain "github.com/monstrox/monstro/internal/support/domain"
)

func (s *Server) StartSupportConversation(c *gin.Context) {
	locationID, ok := pathID(c, "locationId")
	if !ok {
		return
	}

	conversation, err := s.supportSvc.StartConversation(c.Request.Context(), userIDFromContext(c), locationID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": conversation})
}

func (s *Server) ListSupportMessages(c *gin.Context) {
	messages, err := s.supportSvc.ListMessages(c.Request.Context(), userIDFromContext(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": messages})
}

// SendSupportMessage answers 429 with Retry-After once the member runs out
// of chatbot messages.
func (s *Server) SendSupportMessage(c *gin.Context) {
	var req supportdomain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.supportSvc.SendMessage(c.Request.Context(), userIDFromContext(c), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) AdminGetAssistant(c *gin.Context) {
	assistant, err := s.supportSvc.GetAssistant(c.Request.Context(), c.Param("locationId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": assistant})
}

func (s *Server) AdminUpsertAssistant(c *gin.Context) {
	var req supportdomain.UpsertAssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	assistant, err := s.supportSvc.UpsertAssistant(c.Request.Context(), c.Param("locationId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": assistant})
}

func (s *Server) AdminListConversations(c *gin.Context) {
	var req supportdomain.ListConversationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.supportSvc.ListConversations(c.Request.Context(), c.Param("locationId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Conversations, "page_info": resp.PageInfo})
}

func (s *Server) AdminConversationMessages(c *gin.Context) {
	messages, err := s.supportSvc.ConversationMessages(c.Request.Context(), c.Param("locationId"), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": messages})
}

func (s *Server) AdminReplyConversation(c *gin.Context) {
	var req supportdomain.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	message, err := s.supportSvc.Reply(c.Request.Context(), c.Param("locationId"), c.Param("id"), userIDFromContext(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": message})
}

func (s *Server) AdminCloseConversation(c *gin.Context) {
	conversation, err := s.supportSvc.Close(c.Request.Context(), c.Param("locationId"), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": conversation})
}
