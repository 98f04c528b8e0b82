package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hausgeist/hausgeist/internal/config"
)

// OpenAIClient talks to the OpenAI chat completions API (or any
// compatible endpoint via base_url).
type OpenAIClient struct {
	client             *openai.Client
	model              string
	transcribeModel    string
	transcribeLanguage string
	logger             *slog.Logger
}

// NewOpenAIClient creates a provider client from config.
func NewOpenAIClient(cfg config.OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:             openai.NewClientWithConfig(clientCfg),
		model:              cfg.Model,
		transcribeModel:    cfg.TranscribeModel,
		transcribeLanguage: cfg.TranscribeLanguage,
		logger:             logger,
	}
}

// Chat implements [Client].
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toWireMessages(messages),
		Tools:    toWireTools(tools),
	}

	if c.logger.Enabled(ctx, config.LevelTrace) {
		if payload, err := json.Marshal(req); err == nil {
			c.logger.Log(ctx, config.LevelTrace, "chat request", "payload", string(payload))
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choice list")
	}

	if c.logger.Enabled(ctx, config.LevelTrace) {
		if payload, err := json.Marshal(resp); err == nil {
			c.logger.Log(ctx, config.LevelTrace, "chat response", "payload", string(payload))
		}
	}

	return &ChatResponse{
		Model:        resp.Model,
		Message:      fromWireMessage(resp.Choices[0].Message),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Transcribe converts a voice recording to text. The filename hint
// tells the API the container format (e.g. "voice.ogg").
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcribeModel,
		Reader:   bytes.NewReader(audio),
		FilePath: filename,
		Language: c.transcribeLanguage,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return resp.Text, nil
}

// --- Wire conversion ---

func toWireMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		wire := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if m.Role == RoleTool {
			wire.Name = m.Name
		}
		for _, tc := range m.ToolCalls {
			wire.ToolCalls = append(wire.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, wire)
	}
	return out
}

// toWireTools converts the registry's advertised schemas (OpenAI
// function-tool maps) to typed request structs.
func toWireTools(tools []map[string]any) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: desc,
				Parameters:  fn["parameters"],
			},
		})
	}
	return out
}

func fromWireMessage(m openai.ChatCompletionMessage) Message {
	msg := Message{
		Role:    m.Role,
		Content: m.Content,
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return msg
}
