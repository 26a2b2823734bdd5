package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gochat/model"

	"github.com/google/uuid"
)

var (
	// ErrEmptyMessage rejects a send before any network call is made.
	ErrEmptyMessage = errors.New("message cannot be empty")
	// ErrGenerationFailed reports that the completion backend failed outright
	// instead of returning its fallback reply.
	ErrGenerationFailed = errors.New("failed to generate response")
)

// ChatService turns a user message into an assistant reply descriptor. It
// persists nothing; storing the reply is the caller's responsibility.
type ChatService struct {
	gateway Completer
}

func NewChatService(gateway Completer) *ChatService {
	return &ChatService{gateway: gateway}
}

func (s *ChatService) Send(ctx context.Context, message, mdl, userID string) (model.Message, error) {
	if strings.TrimSpace(message) == "" {
		return model.Message{}, ErrEmptyMessage
	}

	logger.Infof("chat send: user=%s model=%s len=%d", userID, mdl, len(message))

	content, err := s.gateway.Complete(ctx, message, mdl)
	if err != nil {
		logger.Warnf("completion failed for user %s: %s", userID, err)
		return model.Message{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	return model.Message{
		ID:        uuid.New().String(),
		Content:   content,
		Role:      model.RoleAssistant,
		Model:     mdl,
		CreatedAt: time.Now(),
		UserID:    userID,
	}, nil
}
