package tools

import (
	"context"

	"github.com/hausgeist/hausgeist/internal/weather"
)

// SetWeatherTools adds the local forecast tools.
func (r *Registry) SetWeatherTools(c *weather.Client) {
	if c == nil {
		return
	}

	r.Register(&Tool{
		Name:        "get_weather_today",
		Description: "Today's local weather in 3-hour steps, with sunrise and sunset times.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			return c.Today(ctx)
		},
	})

	r.Register(&Tool{
		Name:        "get_weather_week",
		Description: "Day-by-day local forecast for the next five days: temperature range, conditions and rain.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			return c.Week(ctx)
		},
	})
}
