package news

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hausgeist/hausgeist/internal/httpkit"
	"github.com/hausgeist/hausgeist/internal/llm"
)

// Source is one configured news feed.
type Source struct {
	Name string
	URL  string
}

const (
	// defaultMaxAge filters headlines to roughly one news cycle.
	defaultMaxAge = 24 * time.Hour
	// defaultTopCount is how many headlines the digest asks for.
	defaultTopCount = 12
	// maxEntriesPerSource caps how many fresh headlines of one feed go
	// into the summarization prompt.
	maxEntriesPerSource = 8
)

const analystSystemPrompt = "You are a news analyst preparing headlines for your user."

// Reader fetches the configured feeds and condenses the fresh
// headlines into a single digest via the model.
type Reader struct {
	sources   []Source
	interests []string
	maxAge    time.Duration
	topCount  int

	client llm.Client
	http   *http.Client
	logger *slog.Logger

	now func() time.Time // test hook
}

// NewReader creates a news reader over the given sources. maxAge and
// topCount fall back to defaults when zero.
func NewReader(sources []Source, interests []string, maxAge time.Duration, topCount int, client llm.Client, logger *slog.Logger) *Reader {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	if topCount <= 0 {
		topCount = defaultTopCount
	}
	return &Reader{
		sources:   sources,
		interests: interests,
		maxAge:    maxAge,
		topCount:  topCount,
		client:    client,
		http: httpkit.NewClient(
			httpkit.WithTimeout(15*time.Second),
			httpkit.WithRetry(1, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
		logger: logger,
		now:    time.Now,
	}
}

// Digest fetches every source, keeps the headlines younger than the
// configured age, and asks the model for an interest-ranked bullet
// list. Sources that fail to fetch are logged and skipped; only a
// fully empty fetch is an error.
func (r *Reader) Digest(ctx context.Context) (string, error) {
	type fetched struct {
		source Source
		feed   *Feed
	}

	var (
		mu      sync.Mutex
		results []fetched
		failed  int
	)
	var wg sync.WaitGroup
	for _, src := range r.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			feed, err := fetchFeed(ctx, r.http, src.URL)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				r.logger.Warn("news feed unavailable", "feed", src.Name, "url", src.URL, "error", err)
				return
			}
			results = append(results, fetched{source: src, feed: feed})
		}(src)
	}
	wg.Wait()

	if len(results) == 0 {
		return "", fmt.Errorf("all %d news feeds failed", failed)
	}

	cutoff := r.now().Add(-r.maxAge)
	var b strings.Builder
	fresh := 0
	for _, res := range results {
		entries := freshEntries(res.feed.Entries, cutoff)
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n", res.source.Name)
		for _, e := range entries {
			fresh++
			fmt.Fprintf(&b, "- %s (%s)", e.Title, e.Link)
			if s := strings.TrimSpace(e.Summary); s != "" {
				fmt.Fprintf(&b, ": %s", s)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if fresh == 0 {
		return fmt.Sprintf("No news in the last %d hours.", int(r.maxAge.Hours())), nil
	}

	resp, err := r.client.Chat(ctx, []llm.Message{
		llm.SystemMessage(analystSystemPrompt),
		llm.UserMessage(r.digestPrompt(b.String())),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("condense news: %w", err)
	}

	r.logger.Debug("news digest built", "sources", len(results), "headlines", fresh)
	return resp.Message.Content, nil
}

// freshEntries filters to entries published after cutoff, capped at
// maxEntriesPerSource. Entries without a parseable date are kept, as
// the feed was fetched live.
func freshEntries(entries []Entry, cutoff time.Time) []Entry {
	var out []Entry
	for _, e := range entries {
		if !e.Published.IsZero() && e.Published.Before(cutoff) {
			continue
		}
		out = append(out, e)
		if len(out) == maxEntriesPerSource {
			break
		}
	}
	return out
}

func (r *Reader) digestPrompt(headlines string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Select the top %d most relevant headlines from the newsfeed below", r.topCount)
	if len(r.interests) > 0 {
		b.WriteString(", ranked by these interests in descending order:\n\n")
		for _, interest := range r.interests {
			fmt.Fprintf(&b, "* %s\n", interest)
		}
	} else {
		b.WriteString(".\n")
	}
	b.WriteString("\nNewsfeed:\n")
	b.WriteString(headlines)
	b.WriteString("\nAnswer with a bullet list only, no heading or introduction, one line per story:\n")
	b.WriteString("* [short summary of title and description](link to the article)\n")
	b.WriteString("Keep each summary short and to the point.")
	return b.String()
}
