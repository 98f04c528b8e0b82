package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hausgeist/hausgeist/internal/llm"
)

// Failure marker texts fed back to the model as observations. They
// stay generic; diagnostic detail goes to the log, not the
// conversation.
const (
	unknownToolText   = "Error: no tool named %q is available."
	malformedArgsText = "Error: tool %q received malformed arguments."
	executionFailText = "Error: tool %q failed to produce a result."
)

// Dispatcher resolves and executes model-requested tool calls. Execute
// never returns an error and never panics: every failure mode becomes
// a tool-result message so the conversation turn can continue.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. timeout bounds each tool
// invocation; zero means 30 seconds.
func NewDispatcher(registry *Registry, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		registry: registry,
		timeout:  timeout,
		logger:   logger,
	}
}

// ParseArguments parses a raw tool-call argument payload. An empty
// payload is treated as a complete, empty argument object.
func ParseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// Execute runs one tool call on behalf of userID and returns the
// tool-result message for the transcript.
func (d *Dispatcher) Execute(ctx context.Context, call llm.ToolCall, userID string) llm.Message {
	args, err := ParseArguments(call.Arguments)
	if err != nil {
		d.logger.Warn("malformed tool arguments",
			"tool", call.Name,
			"user_id", userID,
			"error", err,
		)
		return llm.ToolResult(call, fmt.Sprintf(malformedArgsText, call.Name))
	}

	tool, err := d.registry.Resolve(call.Name)
	if err != nil {
		if !errors.Is(err, ErrUnknownTool) {
			d.logger.Error("tool resolution failed", "tool", call.Name, "error", err)
		}
		d.logger.Warn("model requested unknown tool", "tool", call.Name, "user_id", userID)
		return llm.ToolResult(call, fmt.Sprintf(unknownToolText, call.Name))
	}

	// The authenticated identity always wins over whatever the model
	// put in the arguments.
	if tool.IdentityParam != "" {
		args[tool.IdentityParam] = userID
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	result, err := d.invoke(callCtx, tool, args)
	if err != nil {
		d.logger.Error("tool execution failed",
			"tool", call.Name,
			"user_id", userID,
			"duration", time.Since(start),
			"error", err,
		)
		return llm.ToolResult(call, fmt.Sprintf(executionFailText, call.Name))
	}

	d.logger.Debug("tool executed",
		"tool", call.Name,
		"user_id", userID,
		"duration", time.Since(start),
	)
	return llm.ToolResult(call, result)
}

// invoke runs the handler and converts panics into errors so a
// misbehaving tool cannot take down the engine.
func (d *Dispatcher) invoke(ctx context.Context, tool *Tool, args map[string]any) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Handler(ctx, args)
}
