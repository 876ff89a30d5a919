package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/ArowuTest/tutorbot-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// Broadcaster sends an announcement to opted-in chats
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) (*services.BroadcastResult, error)
}

// BroadcastHandler exposes broadcasts to operators
type BroadcastHandler struct {
	broadcaster Broadcaster
}

// NewBroadcastHandler creates a new BroadcastHandler
func NewBroadcastHandler(broadcaster Broadcaster) *BroadcastHandler {
	return &BroadcastHandler{broadcaster: broadcaster}
}

type broadcastRequest struct {
	Text string `json:"text" binding:"required"`
}

// Send handles POST /broadcast. The request blocks until every chat was
// attempted.
func (h *BroadcastHandler) Send(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat transport is disabled"})
		return
	}
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	result, err := h.broadcaster.Broadcast(c.Request.Context(), req.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}
