package tools

import (
	"context"
	"fmt"

	"github.com/hausgeist/hausgeist/internal/appliance"
)

// SetApplianceTools adds the washer and dryer status tools. Either
// monitor may be nil when the plug is not configured.
func (r *Registry) SetApplianceTools(washer, dryer *appliance.Monitor) {
	if washer != nil {
		r.Register(&Tool{
			Name:        "get_washing_machine_status",
			Description: "Whether the washing machine is off, idle (finished, waiting to be emptied) or running, based on its power draw.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: applianceHandler(washer),
		})
	}
	if dryer != nil {
		r.Register(&Tool{
			Name:        "get_dryer_machine_status",
			Description: "Whether the dryer is off, idle (finished) or running, based on its power draw.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: applianceHandler(dryer),
		})
	}
}

func applianceHandler(m *appliance.Monitor) func(context.Context, map[string]any) (string, error) {
	return func(ctx context.Context, _ map[string]any) (string, error) {
		status, power, err := m.Check(ctx)
		if err != nil {
			return "", err
		}
		switch status {
		case appliance.StatusRunning:
			return fmt.Sprintf("The %s is running (%.0f W).", m.Name(), power), nil
		case appliance.StatusIdle:
			return fmt.Sprintf("The %s has finished and is waiting to be emptied (%.1f W standby).", m.Name(), power), nil
		default:
			return fmt.Sprintf("The %s is off.", m.Name()), nil
		}
	}
}
