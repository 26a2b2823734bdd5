package service

import (
	"context"
	"fmt"
	"os"

	"gochat/platform"

	"github.com/openai/openai-go"
)

var logger = platform.Logger

// Completer produces assistant text for a prompt against a named model.
type Completer interface {
	Complete(ctx context.Context, prompt string, mdl string) (string, error)
}

// fallbackReply is the deterministic reply used whenever no live completion
// backend is configured or the request fails. It is part of the gateway
// contract: callers treat it as a normal assistant reply, not an error.
func fallbackReply(prompt string) string {
	return fmt.Sprintf(`I am AI assistant."You said: "%s". Since no API key is configured, the system is returning this fallback message. Please set up your OpenAI API key to get real responses."`, prompt)
}

// CompletionGateway issues a single chat-completion request per call and
// falls back to the canned reply on any non-success response or transport
// failure. It never retries.
type CompletionGateway struct{}

func (g *CompletionGateway) Complete(ctx context.Context, prompt string, mdl string) (string, error) {
	if os.Getenv("LLM_API_KEY") == "" || platform.LLMClient == nil {
		return fallbackReply(prompt), nil
	}

	params := openai.ChatCompletionNewParams{
		Messages:    openai.F([]openai.ChatCompletionMessageParamUnion{}),
		Model:       openai.F(mdl),
		Temperature: openai.F(0.7),
		MaxTokens:   openai.F(int64(500)),
	}
	var content any = prompt
	params.Messages.Value = append(params.Messages.Value, openai.ChatCompletionMessageParam{
		Role:    openai.F(openai.ChatCompletionMessageParamRoleUser),
		Content: openai.F(content),
	})

	completion, err := platform.LLMClient.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Warnf("completion request failed, using fallback: %s", err)
		return fallbackReply(prompt), nil
	}
	if len(completion.Choices) == 0 {
		logger.Warnf("completion returned no choices, using fallback")
		return fallbackReply(prompt), nil
	}
	return completion.Choices[0].Message.Content, nil
}
