package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ModelsController struct{}

// ModelInfo describes one selectable completion model.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

var availableModels = []ModelInfo{
	{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Provider: "OpenAI"},
	{ID: "gpt-4", Name: "GPT-4", Provider: "OpenAI"},
	{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", Provider: "OpenAI"},
	{ID: "claude-3-sonnet", Name: "Claude 3 Sonnet", Provider: "OpenAI"},
}

func (m ModelsController) GetAvailable(c *gin.Context) {
	c.JSON(http.StatusOK, availableModels)
}
