// Package weather reports the local forecast from OpenWeatherMap's
// 5-day/3-hour endpoint.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hausgeist/hausgeist/internal/httpkit"
)

const defaultBaseURL = "https://api.openweathermap.org"

// forecastResponse is the OWM /data/2.5/forecast payload, reduced.
type forecastResponse struct {
	List []entry `json:"list"`
	City struct {
		Name     string `json:"name"`
		Sunrise  int64  `json:"sunrise"`
		Sunset   int64  `json:"sunset"`
		Timezone int    `json:"timezone"` // seconds east of UTC
	} `json:"city"`
}

type entry struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Pop  float64 `json:"pop"` // precipitation probability 0..1
	Rain struct {
		ThreeH float64 `json:"3h"`
	} `json:"rain"`
}

// Client fetches forecasts for one fixed home location.
type Client struct {
	baseURL string
	apiKey  string
	lat     float64
	lon     float64
	loc     *time.Location
	http    *http.Client
	logger  *slog.Logger

	now func() time.Time // test hook
}

// NewClient creates an OWM client for the given coordinates.
func NewClient(apiKey string, lat, lon float64, loc *time.Location, logger *slog.Logger) *Client {
	if loc == nil {
		loc = time.Local
	}
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		lat:     lat,
		lon:     lon,
		loc:     loc,
		http: httpkit.NewClient(
			httpkit.WithTimeout(15*time.Second),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// Today renders the remaining 3-hour slots of the current day plus
// sunrise and sunset.
func (c *Client) Today(ctx context.Context) (string, error) {
	fc, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}

	now := c.clock()
	today := now.In(c.loc).Format("2006-01-02")

	var b strings.Builder
	fmt.Fprintf(&b, "Weather today in %s:\n", fc.City.Name)
	fmt.Fprintf(&b, "Sunrise %s, sunset %s.\n",
		time.Unix(fc.City.Sunrise, 0).In(c.loc).Format("15:04"),
		time.Unix(fc.City.Sunset, 0).In(c.loc).Format("15:04"),
	)

	slots := 0
	for _, e := range fc.List {
		at := time.Unix(e.Dt, 0).In(c.loc)
		if at.Format("2006-01-02") != today {
			continue
		}
		fmt.Fprintf(&b, "%s: %.0f°C (feels %.0f°C), %s, wind %.0f m/s, rain chance %.0f%%\n",
			at.Format("15:04"), e.Main.Temp, e.Main.FeelsLike,
			description(e), e.Wind.Speed, e.Pop*100,
		)
		slots++
	}
	if slots == 0 {
		b.WriteString("No remaining forecast slots for today.\n")
	}
	return b.String(), nil
}

// Week renders a per-day summary over the full forecast horizon
// (about five days).
func (c *Client) Week(ctx context.Context) (string, error) {
	fc, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}

	type daily struct {
		min, max float64
		rain     float64
		maxPop   float64
		descs    map[string]int
	}
	days := make(map[string]*daily)
	var order []string

	for _, e := range fc.List {
		day := time.Unix(e.Dt, 0).In(c.loc).Format("2006-01-02")
		d, ok := days[day]
		if !ok {
			d = &daily{min: e.Main.Temp, max: e.Main.Temp, descs: make(map[string]int)}
			days[day] = d
			order = append(order, day)
		}
		if e.Main.Temp < d.min {
			d.min = e.Main.Temp
		}
		if e.Main.Temp > d.max {
			d.max = e.Main.Temp
		}
		if e.Pop > d.maxPop {
			d.maxPop = e.Pop
		}
		d.rain += e.Rain.ThreeH
		d.descs[description(e)]++
	}
	sort.Strings(order)

	var b strings.Builder
	fmt.Fprintf(&b, "Forecast for %s:\n", fc.City.Name)
	for _, day := range order {
		d := days[day]
		date, _ := time.ParseInLocation("2006-01-02", day, c.loc)
		fmt.Fprintf(&b, "%s: %.0f to %.0f°C, %s, rain chance %.0f%%",
			date.Format("Mon 02.01"), d.min, d.max, dominant(d.descs), d.maxPop*100)
		if d.rain > 0 {
			fmt.Fprintf(&b, ", %.1f mm rain", d.rain)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (c *Client) fetch(ctx context.Context) (*forecastResponse, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", c.lat))
	q.Set("lon", fmt.Sprintf("%.4f", c.lon))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	u := c.baseURL + "/data/2.5/forecast?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch forecast: %s: %s",
			resp.Status, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var fc forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}
	return &fc, nil
}

func (c *Client) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func description(e entry) string {
	if len(e.Weather) == 0 {
		return "unknown"
	}
	return e.Weather[0].Description
}

// dominant picks the most frequent description of the day.
func dominant(descs map[string]int) string {
	best, bestCount := "unknown", 0
	for d, n := range descs {
		if n > bestCount || (n == bestCount && d < best) {
			best, bestCount = d, n
		}
	}
	return best
}
