// Package agent implements the tool-augmented conversation engine.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hausgeist/hausgeist/internal/llm"
	"github.com/hausgeist/hausgeist/internal/session"
	"github.com/hausgeist/hausgeist/internal/tools"
)

// ErrProviderUnavailable is the only error Respond surfaces to its
// caller: the model provider kept failing after bounded retries. The
// session transcript up to that point is preserved, so the next prompt
// continues the conversation instead of losing history.
var ErrProviderUnavailable = errors.New("model provider unavailable")

// TruncationNote is appended to the answer when a turn hits the
// tool-round limit.
const TruncationNote = "(Note: I reached my tool-call limit while working on this, so the answer may be incomplete.)"

const (
	truncationFallback  = "I couldn't finish working through my tools for that request."
	budgetExhaustedText = "Error: tool-call budget for this request is exhausted; the call was not executed."
)

// maxArgumentFragments bounds how many argument fragments are folded
// into a single call's buffer before it is handed to the dispatcher
// as-is (and fails the complete-parse check there).
const maxArgumentFragments = 8

// Options tune the engine loop.
type Options struct {
	// MaxToolRounds caps model/tool round-trips per turn (default 6).
	MaxToolRounds int
	// ProviderRetries is how often a failed model call is retried
	// before the turn fails with ErrProviderUnavailable.
	ProviderRetries int
	// RetryDelay is the initial backoff between retries; it doubles
	// per attempt (default 2s).
	RetryDelay time.Duration
	// ModelTimeout bounds each individual model call (default 2m).
	ModelTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxToolRounds < 1 {
		o.MaxToolRounds = 6
	}
	if o.ProviderRetries < 0 {
		o.ProviderRetries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.ModelTimeout <= 0 {
		o.ModelTimeout = 2 * time.Minute
	}
	return o
}

// Engine runs the ask/act/observe loop. It is the only component that
// mutates a session's transcript, and it only does so while holding
// that user's turn lock.
type Engine struct {
	client     llm.Client
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	sessions   *session.Store
	logger     *slog.Logger
	opts       Options

	turns    atomic.Int64
	lastTurn atomic.Int64 // unix nanos of last completed turn
}

// New creates a conversation engine.
func New(client llm.Client, registry *tools.Registry, dispatcher *tools.Dispatcher, sessions *session.Store, opts Options, logger *slog.Logger) *Engine {
	return &Engine{
		client:     client,
		registry:   registry,
		dispatcher: dispatcher,
		sessions:   sessions,
		logger:     logger,
		opts:       opts.withDefaults(),
	}
}

// Respond runs one full turn for userID: append the prompt, ask the
// model, execute any requested tool calls, feed the results back, and
// repeat until the model produces a final text or the round budget is
// exhausted. Turns for the same user are serialized; turns for
// different users run in parallel.
func (e *Engine) Respond(ctx context.Context, userID, prompt string) (string, error) {
	unlock := e.sessions.LockUser(userID)
	defer unlock()

	sess := e.sessions.GetOrCreate(userID)
	sess.Transcript = append(sess.Transcript, llm.UserMessage(prompt))

	log := e.logger.With("user_id", userID, "request_id", shortID())
	log.Debug("turn started", "prompt_length", len(prompt))

	defer func() {
		e.turns.Add(1)
		e.lastTurn.Store(time.Now().UnixNano())
	}()

	var lastText string
	for round := 1; ; round++ {
		resp, err := e.chat(ctx, sess.Transcript)
		if err != nil {
			log.Error("model provider unavailable, transcript preserved", "error", err)
			return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		sess.Transcript = append(sess.Transcript, resp.Message)

		calls := coalesceCalls(resp.Message.ToolCalls)
		if len(calls) == 0 {
			log.Info("turn completed",
				"rounds", round,
				"input_tokens", resp.InputTokens,
				"output_tokens", resp.OutputTokens,
			)
			return resp.Message.Content, nil
		}
		if resp.Message.Content != "" {
			lastText = resp.Message.Content
		}

		if round > e.opts.MaxToolRounds {
			// Close out the dangling calls so every request still has
			// a matching result before the next model invocation, then
			// return the best text we have.
			for _, call := range calls {
				sess.Transcript = append(sess.Transcript, llm.ToolResult(call, budgetExhaustedText))
			}
			log.Warn("turn truncated at tool-round limit", "rounds", round, "limit", e.opts.MaxToolRounds)
			text := lastText
			if text == "" {
				text = truncationFallback
			}
			return text + "\n\n" + TruncationNote, nil
		}

		for _, call := range calls {
			log.Debug("dispatching tool call", "tool", call.Name, "call_id", call.ID)
			sess.Transcript = append(sess.Transcript, e.dispatcher.Execute(ctx, call, userID))
		}
	}
}

// ResetSession discards the user's history. The reset takes the same
// turn lock as Respond, so it cannot interleave with a running turn.
func (e *Engine) ResetSession(userID string) {
	unlock := e.sessions.LockUser(userID)
	defer unlock()
	e.sessions.Reset(userID)
}

// TurnsServed returns the number of completed turns since start.
func (e *Engine) TurnsServed() int64 {
	return e.turns.Load()
}

// LastTurnTime returns when the most recent turn finished, or the zero
// time if none has.
func (e *Engine) LastTurnTime() time.Time {
	n := e.lastTurn.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// chat calls the provider with bounded per-call timeout and bounded
// retry with doubling backoff.
func (e *Engine) chat(ctx context.Context, transcript []llm.Message) (*llm.ChatResponse, error) {
	schemas := e.registry.List()

	var lastErr error
	delay := e.opts.RetryDelay
	for attempt := 0; attempt <= e.opts.ProviderRetries; attempt++ {
		if attempt > 0 {
			e.logger.Warn("model call failed, retrying",
				"attempt", attempt,
				"max_retries", e.opts.ProviderRetries,
				"error", lastErr,
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, e.opts.ModelTimeout)
		resp, err := e.client.Chat(callCtx, transcript, schemas)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

// coalesceCalls folds incremental argument fragments into their call.
// In practice the chat completions API delivers each call's arguments
// as one complete JSON string, but some providers split them: a
// fragment without id and name continues the preceding call.
func coalesceCalls(calls []llm.ToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, 0, len(calls))
	fragments := 0
	for _, c := range calls {
		if c.ID == "" && c.Name == "" && len(out) > 0 {
			if fragments < maxArgumentFragments {
				out[len(out)-1].Arguments += c.Arguments
				fragments++
			}
			continue
		}
		out = append(out, c)
		fragments = 1
	}
	return out
}

func shortID() string {
	return uuid.NewString()[:8]
}
