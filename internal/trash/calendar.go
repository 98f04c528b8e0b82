// Package trash answers "which bin goes out when" from the municipal
// collection calendar, distributed as an .ics file.
package trash

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// Pickup is one collection date for one bin type.
type Pickup struct {
	Date time.Time
	Bin  string
}

// Calendar holds the parsed collection schedule.
type Calendar struct {
	pickups []Pickup
	loc     *time.Location
}

// Load parses the .ics file at path. Event times are interpreted in
// loc when the calendar does not carry its own zone.
func Load(path string, loc *time.Location) (*Calendar, error) {
	if loc == nil {
		loc = time.Local
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calendar: %w", err)
	}
	defer f.Close()

	cal, err := ical.NewDecoder(f).Decode()
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	var pickups []Pickup
	for _, event := range cal.Events() {
		start, err := event.DateTimeStart(loc)
		if err != nil {
			continue
		}
		summary, err := event.Props.Text(ical.PropSummary)
		if err != nil || summary == "" {
			continue
		}
		pickups = append(pickups, Pickup{
			Date: start.In(loc),
			Bin:  classifyBin(summary),
		})
	}
	sort.Slice(pickups, func(i, j int) bool { return pickups[i].Date.Before(pickups[j].Date) })

	return &Calendar{pickups: pickups, loc: loc}, nil
}

// BinsOn returns the bins collected on the given calendar day.
func (c *Calendar) BinsOn(date time.Time) []string {
	day := date.In(c.loc).Format("2006-01-02")
	var bins []string
	for _, p := range c.pickups {
		if p.Date.Format("2006-01-02") == day {
			bins = append(bins, p.Bin)
		}
	}
	return bins
}

// Upcoming returns all pickups within days of from, earliest first.
func (c *Calendar) Upcoming(from time.Time, days int) []Pickup {
	f := from.In(c.loc)
	start := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, c.loc)
	end := start.AddDate(0, 0, days)
	var out []Pickup
	for _, p := range c.pickups {
		if !p.Date.Before(start) && p.Date.Before(end) {
			out = append(out, p)
		}
	}
	return out
}

// Municipal calendars label pickups inconsistently; classifyBin
// normalizes the summary to the household bin names.
func classifyBin(summary string) string {
	s := strings.ToLower(summary)
	switch {
	case strings.Contains(s, "gelb"):
		return "Gelbe Tonne"
	case strings.Contains(s, "rest"):
		return "Restmüll"
	case strings.Contains(s, "bio"):
		return "Biotonne"
	case strings.Contains(s, "papier") || strings.Contains(s, "altpapier"):
		return "Papiertonne"
	default:
		return strings.TrimSpace(summary)
	}
}
