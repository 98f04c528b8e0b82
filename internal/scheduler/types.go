// Package scheduler fires configured triggers on cron schedules. It
// only decides WHEN something happens; what happens is the notifier's
// business.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts standard five-field cron expressions (minute, hour,
// day of month, month, day of week).
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Trigger is one scheduled prompt injection.
type Trigger struct {
	// Name identifies the trigger in logs. Must be unique.
	Name string
	// Spec is the five-field cron expression the trigger fires on.
	Spec string
	// Prompt is handed to the conversation engine on fire.
	Prompt string
	// Precheck optionally names a registered tool that gates delivery.
	Precheck string
	// MisfireGrace is how late a firing may run and still be delivered.
	// Later than this (after a suspend, say) the occurrence is skipped.
	// Zero means no grace limit.
	MisfireGrace time.Duration

	schedule cron.Schedule
}

// NewTrigger builds a trigger, validating the cron spec.
func NewTrigger(name, spec, prompt string) (*Trigger, error) {
	if name == "" {
		return nil, fmt.Errorf("trigger needs a name")
	}
	if prompt == "" {
		return nil, fmt.Errorf("trigger %q needs a prompt", name)
	}
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("trigger %q: parse cron spec %q: %w", name, spec, err)
	}
	return &Trigger{
		Name:     name,
		Spec:     spec,
		Prompt:   prompt,
		schedule: schedule,
	}, nil
}

// Next returns the first scheduled occurrence strictly after t.
func (tr *Trigger) Next(t time.Time) time.Time {
	return tr.schedule.Next(t)
}
