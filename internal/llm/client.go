package llm

import "context"

// Client is the interface every model provider must implement.
type Client interface {
	// Chat sends the full transcript plus the advertised tool schemas
	// and returns one assistant message: either a final text or one
	// carrying tool calls.
	Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error)
}
