// Package energy reads the household energy picture from an evcc
// instance: grid, PV, battery, and the wallbox loadpoint.
package energy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hausgeist/hausgeist/internal/httpkit"
)

// ChargeModes accepted by evcc for a loadpoint.
var ChargeModes = []string{"off", "now", "minpv", "pv"}

// Loadpoint is one charging point in the evcc state.
type Loadpoint struct {
	Title         string  `json:"title"`
	Mode          string  `json:"mode"`
	Connected     bool    `json:"connected"`
	Charging      bool    `json:"charging"`
	ChargePower   float64 `json:"chargePower"`
	ChargedEnergy float64 `json:"chargedEnergy"`
	VehicleSoc    float64 `json:"vehicleSoc"`
}

// State is the evcc site state, reduced to what the tools report.
type State struct {
	GridPower    float64     `json:"gridPower"`
	PvPower      float64     `json:"pvPower"`
	HomePower    float64     `json:"homePower"`
	BatterySoc   float64     `json:"batterySoc"`
	BatteryPower float64     `json:"batteryPower"`
	Loadpoints   []Loadpoint `json:"loadpoints"`
}

// Rate is one grid tariff slot.
type Rate struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// Price is the unit price in the currency configured in evcc,
	// typically EUR/kWh.
	Price float64 `json:"price"`
}

// Client talks to the evcc REST API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates an evcc client for baseURL (e.g. http://evcc:7070).
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: httpkit.NewClient(
			httpkit.WithTimeout(10*time.Second),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// State fetches the current site state.
func (c *Client) State(ctx context.Context) (*State, error) {
	var state State
	if err := c.get(ctx, "/api/state", &state); err != nil {
		return nil, fmt.Errorf("evcc state: %w", err)
	}
	return &state, nil
}

// GridRates fetches the upcoming grid tariff slots.
func (c *Client) GridRates(ctx context.Context) ([]Rate, error) {
	var tariff struct {
		Rates []Rate `json:"rates"`
	}
	if err := c.get(ctx, "/api/tariff/grid", &tariff); err != nil {
		return nil, fmt.Errorf("evcc grid tariff: %w", err)
	}
	return tariff.Rates, nil
}

// SetLoadpointMode switches a loadpoint's charge mode. Loadpoints are
// numbered from 1 as in the evcc API.
func (c *Client) SetLoadpointMode(ctx context.Context, loadpoint int, mode string) error {
	if !validMode(mode) {
		return fmt.Errorf("invalid charge mode %q (valid: %s)", mode, strings.Join(ChargeModes, ", "))
	}

	url := fmt.Sprintf("%s/api/loadpoints/%d/mode/%s", c.baseURL, loadpoint, mode)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("evcc set mode: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("evcc set mode: %s: %s",
			resp.Status, httpkit.ReadErrorBody(resp.Body, 512))
	}
	httpkit.DrainAndClose(resp.Body, 4096)

	c.logger.Info("wallbox charge mode set", "loadpoint", loadpoint, "mode", mode)
	return nil
}

// get performs a GET and unwraps evcc's {"result": ...} envelope.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return json.Unmarshal(envelope.Result, out)
}

func validMode(mode string) bool {
	for _, m := range ChargeModes {
		if m == mode {
			return true
		}
	}
	return false
}
