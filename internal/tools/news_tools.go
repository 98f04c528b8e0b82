package tools

import (
	"context"

	"github.com/hausgeist/hausgeist/internal/news"
)

// SetNewsTools adds the news digest tool.
func (r *Registry) SetNewsTools(reader *news.Reader) {
	if reader == nil {
		return
	}

	r.Register(&Tool{
		Name:        "get_news",
		Description: "Recent news headlines from the configured feeds, selected and ranked by the household's interests. Present the result as a bullet list with links.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			return reader.Digest(ctx)
		},
	})
}
