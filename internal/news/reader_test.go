package news

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hausgeist/hausgeist/internal/llm"
)

// fakeAnalyst records the prompts it is asked to condense.
type fakeAnalyst struct {
	reply string
	err   error
	calls [][]llm.Message
}

func (f *fakeAnalyst) Chat(_ context.Context, messages []llm.Message, _ []map[string]any) (*llm.ChatResponse, error) {
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{
		Message: llm.Message{Role: llm.RoleAssistant, Content: f.reply},
	}, nil
}

func rssServer(t *testing.T, title string, items ...string) *httptest.Server {
	t.Helper()
	xml := fmt.Sprintf(`<rss version="2.0"><channel><title>%s</title>%s</channel></rss>`,
		title, strings.Join(items, ""))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(xml))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func rssItemXML(title string, published time.Time) string {
	return fmt.Sprintf(`<item><title>%s</title><link>https://example.com/x</link><pubDate>%s</pubDate></item>`,
		title, published.Format(time.RFC1123Z))
}

func newTestReader(sources []Source, interests []string, analyst llm.Client) *Reader {
	return NewReader(sources, interests, 24*time.Hour, 5, analyst, slog.New(slog.DiscardHandler))
}

func TestDigestCondensesFreshHeadlines(t *testing.T) {
	now := time.Now()
	srv := rssServer(t, "Wire",
		rssItemXML("Fresh Story", now.Add(-time.Hour)),
		rssItemXML("Ancient Story", now.Add(-72*time.Hour)),
	)

	analyst := &fakeAnalyst{reply: "* [Fresh Story](https://example.com/x)"}
	r := newTestReader(
		[]Source{{Name: "wire", URL: srv.URL}},
		[]string{"Space Travel"},
		analyst,
	)

	got, err := r.Digest(context.Background())
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if got != analyst.reply {
		t.Errorf("Digest = %q, want the model's reply", got)
	}

	if len(analyst.calls) != 1 {
		t.Fatalf("model called %d times, want 1", len(analyst.calls))
	}
	prompt := analyst.calls[0][len(analyst.calls[0])-1].Content
	if !strings.Contains(prompt, "Fresh Story") {
		t.Errorf("prompt is missing the fresh headline: %q", prompt)
	}
	if strings.Contains(prompt, "Ancient Story") {
		t.Errorf("prompt contains a stale headline: %q", prompt)
	}
	if !strings.Contains(prompt, "Space Travel") {
		t.Errorf("prompt is missing the interests: %q", prompt)
	}
}

func TestDigestSkipsFailingSource(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)
	good := rssServer(t, "Wire", rssItemXML("Only Story", time.Now()))

	analyst := &fakeAnalyst{reply: "digest"}
	r := newTestReader([]Source{
		{Name: "broken", URL: broken.URL},
		{Name: "wire", URL: good.URL},
	}, nil, analyst)

	got, err := r.Digest(context.Background())
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if got != "digest" {
		t.Errorf("Digest = %q", got)
	}
}

func TestDigestAllSourcesFail(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	r := newTestReader([]Source{{Name: "broken", URL: broken.URL}}, nil, &fakeAnalyst{})
	if _, err := r.Digest(context.Background()); err == nil {
		t.Fatal("Digest succeeded with every source failing")
	}
}

func TestDigestWithoutFreshNewsSkipsModel(t *testing.T) {
	srv := rssServer(t, "Wire", rssItemXML("Ancient Story", time.Now().Add(-72*time.Hour)))

	analyst := &fakeAnalyst{reply: "should not be asked"}
	r := newTestReader([]Source{{Name: "wire", URL: srv.URL}}, nil, analyst)

	got, err := r.Digest(context.Background())
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if !strings.Contains(got, "No news") {
		t.Errorf("Digest = %q, want a no-news answer", got)
	}
	if len(analyst.calls) != 0 {
		t.Errorf("model was called %d times for an empty digest", len(analyst.calls))
	}
}

func TestFreshEntriesCapsPerSource(t *testing.T) {
	now := time.Now()
	var entries []Entry
	for i := 0; i < maxEntriesPerSource+4; i++ {
		entries = append(entries, Entry{Title: fmt.Sprintf("e%d", i), Published: now})
	}
	// An undated entry is kept rather than discarded.
	entries = append([]Entry{{Title: "undated"}}, entries...)

	got := freshEntries(entries, now.Add(-time.Hour))
	if len(got) != maxEntriesPerSource {
		t.Errorf("kept %d entries, want %d", len(got), maxEntriesPerSource)
	}
	if got[0].Title != "undated" {
		t.Errorf("undated entry was dropped")
	}
}
