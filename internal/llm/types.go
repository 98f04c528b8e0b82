// Package llm provides the model-completion provider abstraction.
package llm

// Message roles as they appear in a transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents one transcript entry. Assistant messages may carry
// tool calls; tool messages answer exactly one of them, correlated via
// ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"` // tool name on tool messages
}

// ToolCall is a model-issued request to invoke a named tool.
type ToolCall struct {
	// ID is opaque and unique within the turn; the matching tool
	// message echoes it back.
	ID   string `json:"id"`
	Name string `json:"name"`
	// Arguments is the raw JSON argument payload. It must parse as a
	// complete object before the tool may be executed.
	Arguments string `json:"arguments"`
}

// ChatResponse is the provider-neutral result of one completion call.
type ChatResponse struct {
	Model   string
	Message Message

	InputTokens  int
	OutputTokens int
}

// SystemMessage is a convenience constructor.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage is a convenience constructor.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// ToolResult builds the tool message answering call with the given text.
func ToolResult(call ToolCall, text string) Message {
	return Message{
		Role:       RoleTool,
		Content:    text,
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}
