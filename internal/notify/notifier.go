// Package notify fans scheduled trigger firings out to every known
// user through the conversation engine.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hausgeist/hausgeist/internal/scheduler"
	"github.com/hausgeist/hausgeist/internal/tools"
)

// Responder produces the user-facing text for a prompt. Satisfied by
// agent.Engine.
type Responder interface {
	Respond(ctx context.Context, userID, prompt string) (string, error)
}

// Deliverer sends a finished text to a user. Satisfied by the chat
// transport.
type Deliverer interface {
	Deliver(ctx context.Context, userID, text string) error
}

// UserSource lists every user the notifier should reach. Satisfied by
// session.Store.
type UserSource interface {
	KnownUserIDs() ([]string, error)
}

const precheckTimeout = 30 * time.Second

// Notifier turns a fired trigger into one engine turn and delivery per
// known user.
type Notifier struct {
	users     UserSource
	registry  *tools.Registry
	responder Responder
	deliverer Deliverer
	loc       *time.Location
	logger    *slog.Logger

	now func() time.Time // test hook
}

// New creates a notifier.
func New(users UserSource, registry *tools.Registry, responder Responder, deliverer Deliverer, loc *time.Location, logger *slog.Logger) *Notifier {
	if loc == nil {
		loc = time.Local
	}
	return &Notifier{
		users:     users,
		registry:  registry,
		responder: responder,
		deliverer: deliverer,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
	}
}

// Fire delivers one trigger occurrence. If the trigger carries a
// precheck tool, a negative or failed check skips every user. A
// failure for one user never aborts the remaining users.
func (n *Notifier) Fire(ctx context.Context, tr *scheduler.Trigger, scheduledAt time.Time) {
	prompt := tr.Prompt
	if tr.Precheck != "" {
		result, ok := n.precheck(ctx, tr)
		if !ok {
			return
		}
		prompt = fmt.Sprintf("%s\n\nContext from %s: %s", prompt, tr.Precheck, result)
	}
	prompt = fmt.Sprintf("[Scheduled reminder, %s] %s",
		n.now().In(n.loc).Format("Mon 2006-01-02 15:04"), prompt)

	ids, err := n.users.KnownUserIDs()
	if err != nil {
		n.logger.Error("cannot list users for trigger", "trigger", tr.Name, "error", err)
		return
	}

	delivered := 0
	for _, userID := range ids {
		text, err := n.responder.Respond(ctx, userID, prompt)
		if err != nil {
			n.logger.Warn("scheduled turn failed",
				"trigger", tr.Name, "user_id", userID, "error", err)
			continue
		}
		if err := n.deliverer.Deliver(ctx, userID, text); err != nil {
			n.logger.Warn("scheduled delivery failed",
				"trigger", tr.Name, "user_id", userID, "error", err)
			continue
		}
		delivered++
	}

	n.logger.Info("trigger delivered",
		"trigger", tr.Name,
		"scheduled_at", scheduledAt,
		"users", len(ids),
		"delivered", delivered,
	)
}

// precheck runs the trigger's gate tool. It reports the tool's result
// text and whether delivery should proceed.
func (n *Notifier) precheck(ctx context.Context, tr *scheduler.Trigger) (string, bool) {
	tool, err := n.registry.Resolve(tr.Precheck)
	if err != nil {
		n.logger.Error("precheck tool not registered", "trigger", tr.Name, "tool", tr.Precheck)
		return "", false
	}

	checkCtx, cancel := context.WithTimeout(ctx, precheckTimeout)
	defer cancel()

	result, err := tool.Handler(checkCtx, map[string]any{})
	if err != nil {
		n.logger.Warn("precheck failed, skipping trigger",
			"trigger", tr.Name, "tool", tr.Precheck, "error", err)
		return "", false
	}
	if isNegative(result) {
		n.logger.Debug("precheck negative, skipping trigger",
			"trigger", tr.Name, "tool", tr.Precheck)
		return "", false
	}
	return result, true
}

// isNegative reports whether a precheck result means "nothing to
// announce".
func isNegative(result string) bool {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "", "no", "false", "nothing", "none":
		return true
	}
	return false
}
