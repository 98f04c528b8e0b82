package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FireFunc is called when a trigger's occurrence comes due.
type FireFunc func(ctx context.Context, trigger *Trigger, scheduledAt time.Time)

// fireTimeout bounds one trigger delivery, fan-out included.
const fireTimeout = 5 * time.Minute

// Scheduler arms one timer per trigger and re-arms it after every
// firing. Triggers are fixed at construction; there is no runtime
// mutation beyond Start and Stop.
type Scheduler struct {
	logger *slog.Logger
	fire   FireFunc
	loc    *time.Location

	mu       sync.Mutex
	triggers []*Trigger
	timers   map[string]*time.Timer
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	now func() time.Time // test hook
}

// New creates a scheduler over the given triggers.
func New(triggers []*Trigger, loc *time.Location, fire FireFunc, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		logger:   logger,
		fire:     fire,
		loc:      loc,
		triggers: triggers,
		timers:   make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Start arms every trigger.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	triggers := s.triggers
	s.mu.Unlock()

	for _, tr := range triggers {
		s.arm(tr)
	}

	s.logger.Info("scheduler started", "triggers", len(triggers))
}

// Stop cancels all timers and waits for in-flight firings to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false

	for name, timer := range s.timers {
		timer.Stop()
		delete(s.timers, name)
	}

	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// arm sets the trigger's timer for its next occurrence.
func (s *Scheduler) arm(tr *Trigger) {
	next := tr.Next(s.now().In(s.loc))
	if next.IsZero() {
		s.logger.Warn("trigger has no future occurrence", "trigger", tr.Name)
		return
	}

	delay := next.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	if timer, exists := s.timers[tr.Name]; exists {
		timer.Stop()
	}
	s.timers[tr.Name] = time.AfterFunc(delay, func() {
		s.onFire(tr, next)
	})

	s.logger.Debug("trigger armed", "trigger", tr.Name, "next", next, "delay", delay)
}

// onFire runs when a trigger's timer goes off.
func (s *Scheduler) onFire(tr *Trigger, scheduledAt time.Time) {
	// wg.Add must happen under mu, paired with the running check, so
	// Stop's Wait cannot race a fresh Add.
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	delete(s.timers, tr.Name)
	s.mu.Unlock()
	defer s.wg.Done()

	// Each occurrence fires at most once, and always re-arms for the
	// next one regardless of what happens below.
	defer s.arm(tr)

	late := s.now().Sub(scheduledAt)
	if tr.MisfireGrace > 0 && late > tr.MisfireGrace {
		s.logger.Warn("skipping stale trigger occurrence",
			"trigger", tr.Name,
			"scheduled_at", scheduledAt,
			"late", late,
		)
		return
	}

	s.logger.Info("trigger fired", "trigger", tr.Name, "scheduled_at", scheduledAt)

	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()
	s.fire(ctx, tr, scheduledAt)
}
