package utils

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase is one timed step of a larger operation, such as the count phase of a
// collection pass.
type Phase struct {
	Name     string
	Start    time.Time
	Duration time.Duration
	done     bool
}

// PhaseTimer stops a single phase; it is meant to be used with defer.
type PhaseTimer struct {
	timer *Timer
	name  string
}

// Stop records the phase duration. Only the first call has an effect.
func (pt *PhaseTimer) Stop() time.Duration {
	if pt == nil || pt.timer == nil {
		return 0
	}
	return pt.timer.stop(pt.name)
}

// Timer records named phases in the order they were started. A disabled
// timer turns every call into a no-op.
type Timer struct {
	mu      sync.Mutex
	name    string
	enabled bool
	clock   Clock
	logger  Logger
	started time.Time
	phases  []*Phase
}

// TimerOption configures a Timer instance.
type TimerOption func(*Timer)

// WithLogger makes PrintSummary write to logger at debug level.
func WithLogger(logger Logger) TimerOption {
	return func(t *Timer) {
		t.logger = logger
	}
}

// WithEnabled sets whether the timer records anything.
func WithEnabled(enabled bool) TimerOption {
	return func(t *Timer) {
		t.enabled = enabled
	}
}

// WithClock sets a custom clock for testability.
func WithClock(clock Clock) TimerOption {
	return func(t *Timer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// NewTimer creates a new Timer with the given name and options.
func NewTimer(name string, opts ...TimerOption) *Timer {
	t := &Timer{
		name:    name,
		enabled: true,
		clock:   NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.started = t.clock.Now()
	return t
}

// Enabled reports whether the timer records phases.
func (t *Timer) Enabled() bool {
	return t != nil && t.enabled
}

// Start begins timing phaseName. Starting a phase that is already running
// restarts it.
func (t *Timer) Start(phaseName string) *PhaseTimer {
	if !t.Enabled() {
		return &PhaseTimer{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	for _, p := range t.phases {
		if p.Name == phaseName && !p.done {
			p.Start = now
			return &PhaseTimer{timer: t, name: phaseName}
		}
	}
	t.phases = append(t.phases, &Phase{Name: phaseName, Start: now})
	return &PhaseTimer{timer: t, name: phaseName}
}

func (t *Timer) stop(phaseName string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.phases) - 1; i >= 0; i-- {
		p := t.phases[i]
		if p.Name != phaseName {
			continue
		}
		if !p.done {
			p.Duration = t.clock.Since(p.Start)
			p.done = true
		}
		return p.Duration
	}
	return 0
}

// Duration returns the accumulated duration of every completed phase named
// phaseName.
func (t *Timer) Duration(phaseName string) time.Duration {
	if !t.Enabled() {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var total time.Duration
	for _, p := range t.phases {
		if p.Name == phaseName && p.done {
			total += p.Duration
		}
	}
	return total
}

// Total returns the time elapsed since the timer was created.
func (t *Timer) Total() time.Duration {
	if !t.Enabled() {
		return 0
	}
	return t.clock.Since(t.started)
}

// Phases returns a copy of the completed phases in start order.
func (t *Timer) Phases() []Phase {
	if !t.Enabled() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Phase, 0, len(t.phases))
	for _, p := range t.phases {
		if p.done {
			out = append(out, *p)
		}
	}
	return out
}

// Summary renders "name: phase=dur phase=dur (total dur)".
func (t *Timer) Summary() string {
	if !t.Enabled() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(t.name)
	sb.WriteString(":")
	for _, p := range t.Phases() {
		fmt.Fprintf(&sb, " %s=%s", p.Name, p.Duration)
	}
	fmt.Fprintf(&sb, " (total %s)", t.Total())
	return sb.String()
}

// PrintSummary writes Summary to the configured logger.
func (t *Timer) PrintSummary() {
	if !t.Enabled() || t.logger == nil {
		return
	}
	t.logger.Debug("%s", t.Summary())
}
