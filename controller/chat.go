package controller

import (
	"errors"
	"net/http"

	"gochat/service"

	"github.com/gin-gonic/gin"
)

type ChatController struct{}

var chatService = service.NewChatService(&service.CompletionGateway{})

// Send accepts a user message, generates an assistant reply and returns
// the reply descriptor. It persists nothing; the client owns persistence.
func (ch ChatController) Send(c *gin.Context) {
	var input struct {
		Message string `json:"message" binding:"required,min=1"`
		Model   string `json:"model" binding:"required"`
		UserId  string `json:"userId" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message cannot be empty"})
		return
	}

	reply, err := chatService.Send(c.Request.Context(), input.Message, input.Model, input.UserId)
	if err != nil {
		if errors.Is(err, service.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message cannot be empty"})
			return
		}
		logger.Warnf("[%s] Failed to generate response: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate response. Please try again."})
		return
	}

	logger.Infof("[%s] Generated response for user %s, length %d", c.GetString("requestId"), input.UserId, len(reply.Content))
	c.JSON(http.StatusOK, reply)
}
