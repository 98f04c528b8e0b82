// Package appliance infers washer and dryer state from the power draw
// reported by the Shelly plugs they are connected to.
package appliance

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

// Status is the inferred appliance state.
type Status string

const (
	StatusOff     Status = "off"
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
)

// Power thresholds in watts. A plugged-in but finished machine idles
// below 10 W; anything above means a program is running.
const (
	offThreshold  = 1.0
	idleThreshold = 10.0
)

// Monitor reads one appliance's Shelly Gen2 plug.
type Monitor struct {
	name    string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewMonitor creates a monitor for the named appliance behind the
// plug at baseURL.
func NewMonitor(name, baseURL string, logger *slog.Logger) *Monitor {
	return &Monitor{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: httpkit.NewClient(
			httpkit.WithTimeout(5*time.Second),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// Name returns the appliance name.
func (m *Monitor) Name() string {
	return m.name
}

// Power returns the plug's current active power in watts.
func (m *Monitor) Power(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/rpc/Shelly.GetStatus", nil)
	if err != nil {
		return 0, err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s plug: %w", m.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%s plug: %s: %s",
			m.name, resp.Status, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var status struct {
		Switch struct {
			APower float64 `json:"apower"`
		} `json:"switch:0"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return 0, fmt.Errorf("%s plug: decode status: %w", m.name, err)
	}
	return status.Switch.APower, nil
}

// Check reads the plug and classifies the appliance state.
func (m *Monitor) Check(ctx context.Context) (Status, float64, error) {
	power, err := m.Power(ctx)
	if err != nil {
		return "", 0, err
	}
	return Classify(power), power, nil
}

// Classify maps a power reading to an appliance status.
func Classify(watts float64) Status {
	switch {
	case watts < offThreshold:
		return StatusOff
	case watts < idleThreshold:
		return StatusIdle
	default:
		return StatusRunning
	}
}
