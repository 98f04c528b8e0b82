package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hausgeist/hausgeist/internal/llm"
	"github.com/hausgeist/hausgeist/internal/session"
	"github.com/hausgeist/hausgeist/internal/tools"
)

type step struct {
	resp *llm.ChatResponse
	err  error
}

// scriptedClient replays a fixed sequence of completion results and
// records the transcript it saw on each call.
type scriptedClient struct {
	mu          sync.Mutex
	script      []step
	calls       int
	transcripts [][]llm.Message
}

func (c *scriptedClient) Chat(_ context.Context, messages []llm.Message, _ []map[string]any) (*llm.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.transcripts = append(c.transcripts, append([]llm.Message(nil), messages...))
	if len(c.script) == 0 {
		return nil, errors.New("script exhausted")
	}
	s := c.script[0]
	c.script = c.script[1:]
	return s.resp, s.err
}

func assistantText(text string) *llm.ChatResponse {
	return &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: text}}
}

func assistantCalls(calls ...llm.ToolCall) *llm.ChatResponse {
	return &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, ToolCalls: calls}}
}

type memDirectory struct {
	mu  sync.Mutex
	ids []string
}

func (d *memDirectory) Add(userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.ids {
		if id == userID {
			return nil
		}
	}
	d.ids = append(d.ids, userID)
	return nil
}

func (d *memDirectory) All() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...), nil
}

func newTestEngine(t *testing.T, client llm.Client, opts Options) (*Engine, *session.Store) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	reg := tools.NewRegistry()
	reg.Register(&tools.Tool{
		Name:        "get_weather",
		Description: "Current weather at home.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(context.Context, map[string]any) (string, error) {
			return "Sunny, 22 degrees.", nil
		},
	})
	reg.Register(&tools.Tool{
		Name:        "noop",
		Description: "Does nothing.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(context.Context, map[string]any) (string, error) {
			return "ok", nil
		},
	})

	sessions := session.NewStore(&memDirectory{}, "", time.UTC, logger)
	dispatcher := tools.NewDispatcher(reg, time.Second, logger)
	return New(client, reg, dispatcher, sessions, opts, logger), sessions
}

// checkPairing verifies that every tool call an assistant message
// requested has exactly one tool result in the transcript.
func checkPairing(t *testing.T, transcript []llm.Message) {
	t.Helper()
	results := make(map[string]int)
	for _, m := range transcript {
		if m.Role == llm.RoleTool {
			results[m.ToolCallID]++
		}
	}
	for _, m := range transcript {
		if m.Role != llm.RoleAssistant {
			continue
		}
		for _, call := range m.ToolCalls {
			if results[call.ID] != 1 {
				t.Errorf("call %s has %d results, want exactly 1", call.ID, results[call.ID])
			}
		}
	}
}

func TestRespondWithOneToolRound(t *testing.T) {
	client := &scriptedClient{script: []step{
		{resp: assistantCalls(llm.ToolCall{ID: "call-1", Name: "get_weather", Arguments: "{}"})},
		{resp: assistantText("It's sunny and 22 degrees at home.")},
	}}
	e, sessions := newTestEngine(t, client, Options{})

	answer, err := e.Respond(context.Background(), "alice", "how is the weather?")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if answer != "It's sunny and 22 degrees at home." {
		t.Errorf("answer = %q", answer)
	}
	if client.calls != 2 {
		t.Errorf("model calls = %d, want 2", client.calls)
	}

	sess := sessions.GetOrCreate("alice")
	roles := make([]string, len(sess.Transcript))
	for i, m := range sess.Transcript {
		roles[i] = m.Role
	}
	want := []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleTool, llm.RoleAssistant}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles = %v, want %v", roles, want)
		}
	}
	if got := sess.Transcript[3].Content; got != "Sunny, 22 degrees." {
		t.Errorf("tool result = %q", got)
	}
	checkPairing(t, sess.Transcript)

	// The second model call must already include the tool result.
	second := client.transcripts[1]
	if second[len(second)-1].Role != llm.RoleTool {
		t.Errorf("last message of second call = %q, want tool", second[len(second)-1].Role)
	}
}

func TestRespondRecoversFromUnknownTool(t *testing.T) {
	client := &scriptedClient{script: []step{
		{resp: assistantCalls(llm.ToolCall{ID: "call-1", Name: "open_pod_bay_doors", Arguments: "{}"})},
		{resp: assistantText("I'm afraid I can't do that.")},
	}}
	e, sessions := newTestEngine(t, client, Options{})

	answer, err := e.Respond(context.Background(), "alice", "open the doors")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if answer != "I'm afraid I can't do that." {
		t.Errorf("answer = %q", answer)
	}

	sess := sessions.GetOrCreate("alice")
	checkPairing(t, sess.Transcript)

	var result *llm.Message
	for i := range sess.Transcript {
		if sess.Transcript[i].Role == llm.RoleTool {
			result = &sess.Transcript[i]
		}
	}
	if result == nil {
		t.Fatal("no tool result in transcript")
	}
	if !strings.Contains(result.Content, "no tool named") {
		t.Errorf("diagnostic = %q, want unknown-tool marker", result.Content)
	}
}

func TestRespondTruncatesAtRoundLimit(t *testing.T) {
	// The model never stops asking for tools.
	var n int
	endless := clientFunc(func() (*llm.ChatResponse, error) {
		n++
		return assistantCalls(llm.ToolCall{
			ID: fmt.Sprintf("call-%d", n), Name: "noop", Arguments: "{}",
		}), nil
	})
	e, sessions := newTestEngine(t, endless, Options{MaxToolRounds: 2})

	answer, err := e.Respond(context.Background(), "alice", "loop forever")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !strings.Contains(answer, TruncationNote) {
		t.Errorf("answer = %q, want truncation note", answer)
	}
	// maxRounds tool rounds plus the final over-budget ask.
	if n != 3 {
		t.Errorf("model calls = %d, want 3", n)
	}

	// Even the dangling calls of the final round got results.
	checkPairing(t, sessions.GetOrCreate("alice").Transcript)
}

type clientFunc func() (*llm.ChatResponse, error)

func (f clientFunc) Chat(context.Context, []llm.Message, []map[string]any) (*llm.ChatResponse, error) {
	return f()
}

func TestRespondRetriesTransientFailure(t *testing.T) {
	client := &scriptedClient{script: []step{
		{err: errors.New("upstream 503")},
		{resp: assistantText("back again")},
	}}
	e, _ := newTestEngine(t, client, Options{ProviderRetries: 2, RetryDelay: time.Millisecond})

	answer, err := e.Respond(context.Background(), "alice", "hello?")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if answer != "back again" {
		t.Errorf("answer = %q", answer)
	}
	if client.calls != 2 {
		t.Errorf("model calls = %d, want 2", client.calls)
	}
}

func TestRespondProviderUnavailablePreservesTranscript(t *testing.T) {
	down := clientFunc(func() (*llm.ChatResponse, error) {
		return nil, errors.New("connection refused")
	})
	e, sessions := newTestEngine(t, down, Options{ProviderRetries: 1, RetryDelay: time.Millisecond})

	_, err := e.Respond(context.Background(), "alice", "anyone home?")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}

	// The prompt stays in the transcript so the next turn has context,
	// and no assistant message dangles after the failed ask.
	sess := sessions.GetOrCreate("alice")
	if len(sess.Transcript) != 2 {
		t.Fatalf("len(Transcript) = %d, want 2", len(sess.Transcript))
	}
	last := sess.Transcript[len(sess.Transcript)-1]
	if last.Role != llm.RoleUser || last.Content != "anyone home?" {
		t.Errorf("last message = %+v, want the user prompt", last)
	}
}

func TestRespondSerializesTurnsPerUser(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	slow := clientFunc(func() (*llm.ChatResponse, error) {
		cur := inFlight.Add(1)
		for {
			seen := maxInFlight.Load()
			if cur <= seen || maxInFlight.CompareAndSwap(seen, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return assistantText("done"), nil
	})
	e, _ := newTestEngine(t, slow, Options{})

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Respond(context.Background(), "alice", "hi"); err != nil {
				t.Errorf("Respond: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Errorf("max concurrent model calls for one user = %d, want 1", maxInFlight.Load())
	}
}

func TestRespondDifferentUsersRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)
	gated := clientFunc(func() (*llm.ChatResponse, error) {
		started <- "x"
		<-release
		return assistantText("ok"), nil
	})
	e, _ := newTestEngine(t, gated, Options{})

	var wg sync.WaitGroup
	for _, user := range []string{"alice", "bob"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Respond(context.Background(), user, "hi")
		}()
	}

	// Both turns must reach the model before either finishes.
	for range 2 {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("turns for different users did not run concurrently")
		}
	}
	close(release)
	wg.Wait()
}

func TestResetSessionDropsHistory(t *testing.T) {
	client := &scriptedClient{script: []step{
		{resp: assistantText("hello alice")},
	}}
	e, sessions := newTestEngine(t, client, Options{})

	if _, err := e.Respond(context.Background(), "alice", "hi"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	e.ResetSession("alice")

	sess := sessions.GetOrCreate("alice")
	if len(sess.Transcript) != 1 {
		t.Errorf("len(Transcript) = %d, want single system message", len(sess.Transcript))
	}
}

func TestTurnCounters(t *testing.T) {
	client := &scriptedClient{script: []step{
		{resp: assistantText("one")},
		{resp: assistantText("two")},
	}}
	e, _ := newTestEngine(t, client, Options{})

	if e.TurnsServed() != 0 || !e.LastTurnTime().IsZero() {
		t.Fatal("counters not zero before first turn")
	}
	e.Respond(context.Background(), "alice", "hi")
	e.Respond(context.Background(), "alice", "hi again")

	if e.TurnsServed() != 2 {
		t.Errorf("TurnsServed = %d, want 2", e.TurnsServed())
	}
	if time.Since(e.LastTurnTime()) > time.Minute {
		t.Errorf("LastTurnTime = %v, want recent", e.LastTurnTime())
	}
}

func TestCoalesceCalls(t *testing.T) {
	tests := []struct {
		name string
		in   []llm.ToolCall
		want []llm.ToolCall
	}{
		{
			name: "complete calls pass through",
			in: []llm.ToolCall{
				{ID: "a", Name: "one", Arguments: "{}"},
				{ID: "b", Name: "two", Arguments: `{"x":1}`},
			},
			want: []llm.ToolCall{
				{ID: "a", Name: "one", Arguments: "{}"},
				{ID: "b", Name: "two", Arguments: `{"x":1}`},
			},
		},
		{
			name: "fragments merge into preceding call",
			in: []llm.ToolCall{
				{ID: "a", Name: "one", Arguments: `{"city":`},
				{Arguments: `"Berlin"`},
				{Arguments: `}`},
			},
			want: []llm.ToolCall{
				{ID: "a", Name: "one", Arguments: `{"city":"Berlin"}`},
			},
		},
		{
			name: "leading fragment without a call is dropped",
			in: []llm.ToolCall{
				{Arguments: `{"orphan":true}`},
			},
			want: []llm.ToolCall{},
		},
		{
			name: "empty",
			in:   nil,
			want: []llm.ToolCall{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := coalesceCalls(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("call %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
