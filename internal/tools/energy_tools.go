package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/hausgeist/hausgeist/internal/energy"
)

// SetEnergyTools adds the evcc-backed energy and wallbox tools.
func (r *Registry) SetEnergyTools(c *energy.Client) {
	if c == nil {
		return
	}

	r.Register(&Tool{
		Name:        "get_energy_house_data",
		Description: "Current energy picture of the house: grid import/export, solar production, house consumption and battery charge.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			state, err := c.State(ctx)
			if err != nil {
				return "", err
			}
			return formatHouseData(state), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_energy_prices",
		Description: "Upcoming electricity prices per hour, including the cheapest slot. Useful for deciding when to run big consumers.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			rates, err := c.GridRates(ctx)
			if err != nil {
				return "", err
			}
			return formatRates(rates), nil
		},
	})

	r.Register(&Tool{
		Name:        "set_or_get_wallbox_mode",
		Description: "Get or change the wallbox charge mode. Without a mode argument the current mode is returned. Modes: off, now (fast charge), minpv (minimum + solar), pv (solar only).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"mode": map[string]any{
					"type":        "string",
					"enum":        energy.ChargeModes,
					"description": "New charge mode. Omit to only read the current mode.",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			mode := stringArg(args, "mode")
			if mode == "" {
				state, err := c.State(ctx)
				if err != nil {
					return "", err
				}
				if len(state.Loadpoints) == 0 {
					return "No wallbox is configured.", nil
				}
				return fmt.Sprintf("The wallbox charge mode is %q.", state.Loadpoints[0].Mode), nil
			}
			if err := c.SetLoadpointMode(ctx, 1, mode); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wallbox charge mode set to %q.", mode), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_wallbox_status",
		Description: "Wallbox status: whether a car is connected, whether it is charging, charge power and vehicle battery level.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			state, err := c.State(ctx)
			if err != nil {
				return "", err
			}
			if len(state.Loadpoints) == 0 {
				return "No wallbox is configured.", nil
			}
			return formatWallbox(state.Loadpoints[0]), nil
		},
	})
}

func formatHouseData(s *energy.State) string {
	var b strings.Builder
	if s.GridPower >= 0 {
		fmt.Fprintf(&b, "Importing %.0f W from the grid. ", s.GridPower)
	} else {
		fmt.Fprintf(&b, "Exporting %.0f W to the grid. ", -s.GridPower)
	}
	fmt.Fprintf(&b, "Solar production %.0f W, house consumption %.0f W.", s.PvPower, s.HomePower)
	if s.BatterySoc > 0 {
		fmt.Fprintf(&b, " Home battery at %.0f%%", s.BatterySoc)
		switch {
		case s.BatteryPower > 0:
			fmt.Fprintf(&b, ", discharging %.0f W.", s.BatteryPower)
		case s.BatteryPower < 0:
			fmt.Fprintf(&b, ", charging %.0f W.", -s.BatteryPower)
		default:
			b.WriteString(".")
		}
	}
	return b.String()
}

func formatRates(rates []energy.Rate) string {
	if len(rates) == 0 {
		return "No price data is available right now."
	}

	cheapest := rates[0]
	var b strings.Builder
	b.WriteString("Electricity prices:\n")
	for i, r := range rates {
		if r.Price < cheapest.Price {
			cheapest = r
		}
		if i < 12 {
			fmt.Fprintf(&b, "%s: %.2f ct/kWh\n", r.Start.Local().Format("Mon 15:04"), r.Price*100)
		}
	}
	fmt.Fprintf(&b, "Cheapest slot: %s at %.2f ct/kWh.",
		cheapest.Start.Local().Format("Mon 15:04"), cheapest.Price*100)
	return b.String()
}

func formatWallbox(lp energy.Loadpoint) string {
	if !lp.Connected {
		return "No car is connected to the wallbox."
	}
	var b strings.Builder
	b.WriteString("A car is connected")
	if lp.Charging {
		fmt.Fprintf(&b, " and charging with %.1f kW", lp.ChargePower/1000)
	} else {
		b.WriteString(" but not charging")
	}
	fmt.Fprintf(&b, " (mode %q", lp.Mode)
	if lp.VehicleSoc > 0 {
		fmt.Fprintf(&b, ", vehicle battery %.0f%%", lp.VehicleSoc)
	}
	b.WriteString(").")
	return b.String()
}
