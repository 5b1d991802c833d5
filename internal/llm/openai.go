package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type chatCompletionAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient implements Client using the OpenAI chat completions API.
type OpenAIClient struct {
	api     chatCompletionAPI
	modelID string
}

// NewOpenAIClient creates a new OpenAI-backed LLM client.
func NewOpenAIClient(apiKey, modelID string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: openai api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = openai.GPT4oMini
	}
	return &OpenAIClient{
		api:     openai.NewClient(apiKey),
		modelID: modelID,
	}, nil
}

// NewOpenAIClientWithAPI wires a pre-built chat API, used by tests.
func NewOpenAIClientWithAPI(api chatCompletionAPI, modelID string) *OpenAIClient {
	if api == nil {
		panic("llm: chat API cannot be nil")
	}
	return &OpenAIClient{api: api, modelID: modelID}
}

// Complete sends a completion request to OpenAI and returns the response.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = c.modelID
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.System)+len(req.Messages))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: block,
		})
	}

	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}

		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case ChatRoleSystem:
			role = openai.ChatMessageRoleSystem
		case ChatRoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: content,
		})
	}

	if len(messages) == 0 {
		return Response{}, errors.New("llm: openai requires at least one message")
	}

	request := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		request.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature >= 0 {
		request.Temperature = req.Temperature
	}
	if req.TopP > 0 {
		request.TopP = req.TopP
	}

	resp, err := c.api.CreateChatCompletion(ctx, request)
	if err != nil {
		return Response{}, fmt.Errorf("llm: openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("llm: openai returned no choices")
	}

	choice := resp.Choices[0]
	return Response{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: string(choice.FinishReason),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}
