package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hausgeist/hausgeist/internal/trash"
)

// SetTrashTools adds the bin collection tools. check_trash_tomorrow is
// also usable as a scheduler precheck: it answers empty when no bin
// goes out.
func (r *Registry) SetTrashTools(cal *trash.Calendar, loc *time.Location) {
	if cal == nil {
		return
	}
	if loc == nil {
		loc = time.Local
	}

	r.Register(&Tool{
		Name:        "get_trash_collection",
		Description: "Which bins are collected today, tomorrow and in the coming days.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(_ context.Context, _ map[string]any) (string, error) {
			now := time.Now().In(loc)
			var b strings.Builder

			if bins := cal.BinsOn(now); len(bins) > 0 {
				fmt.Fprintf(&b, "Today: %s.\n", strings.Join(bins, ", "))
			}
			if bins := cal.BinsOn(now.AddDate(0, 0, 1)); len(bins) > 0 {
				fmt.Fprintf(&b, "Tomorrow: %s.\n", strings.Join(bins, ", "))
			}
			for _, p := range cal.Upcoming(now.AddDate(0, 0, 2), 12) {
				fmt.Fprintf(&b, "%s: %s.\n", p.Date.Format("Mon 02.01"), p.Bin)
			}

			if b.Len() == 0 {
				return "No bin collections in the next two weeks.", nil
			}
			return b.String(), nil
		},
	})

	r.Register(&Tool{
		Name:        "check_trash_tomorrow",
		Description: "Check whether any bin must be put out for tomorrow. Answers with the bin names, or nothing when no collection is due.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(_ context.Context, _ map[string]any) (string, error) {
			tomorrow := time.Now().In(loc).AddDate(0, 0, 1)
			bins := cal.BinsOn(tomorrow)
			if len(bins) == 0 {
				return "", nil
			}
			return fmt.Sprintf("Tomorrow (%s): %s",
				tomorrow.Format("Mon 02.01"), strings.Join(bins, ", ")), nil
		},
	})
}
