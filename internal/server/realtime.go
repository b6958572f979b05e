package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/monstrox/monstro/internal/authorization"
	"github.com/monstrox/monstro/internal/realtime"
	supportdomain "github.com/monstrox/monstro/internal/support/domain"
)

// StreamChannel serves a realtime channel as server-sent events after
// checking the caller may read it.
func (s *Server) StreamChannel(c *gin.Context) {
	if s.hub == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	channel := strings.TrimSpace(c.Param("channel"))
	if err := s.authorizeChannel(c, channel); err != nil {
		AbortWithError(c, err)
		return
	}

	subscription, backlog, err := s.hub.Subscribe(channel)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer subscription.Close()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}

	for _, event := range backlog {
		if err := writeRealtimeEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if err := writeRealtimeEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) authorizeChannel(c *gin.Context, channel string) error {
	kind, id, found := strings.Cut(channel, ":")
	if !found || strings.TrimSpace(id) == "" {
		return realtime.ErrInvalidChannel
	}

	ctx := c.Request.Context()
	userID := userIDFromContext(c)

	switch kind {
	case "chat":
		return s.socialSvc.CheckChatAccess(ctx, userID, id)
	case "group":
		return s.socialSvc.CheckGroupAccess(ctx, userID, id)
	case "support":
		conversation, err := s.supportSvc.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		member, err := s.currentMember(c)
		if err == nil && member.ID == conversation.MemberID {
			return nil
		}
		// Staff watching the inbox for that location.
		err = s.authorizeAt(c, conversation.LocationID.String(), authorization.ObjectSupportConversation, authorization.ActionView)
		if errors.Is(err, authorization.ErrForbidden) {
			return supportdomain.ErrConversationNotFound
		}
		return err
	default:
		return realtime.ErrInvalidChannel
	}
}

func writeRealtimeEvent(w io.Writer, event realtime.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
