package utils

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockTimer(t *testing.T) (*Timer, *MockClock) {
	t.Helper()
	clock := NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewTimer("pass", WithClock(clock)), clock
}

func TestTimer_PhasesInOrder(t *testing.T) {
	timer, clock := newMockTimer(t)

	tag := timer.Start("tag")
	clock.Advance(2 * time.Millisecond)
	tag.Stop()

	count := timer.Start("count")
	clock.Advance(5 * time.Millisecond)
	count.Stop()

	phases := timer.Phases()
	require.Len(t, phases, 2)
	assert.Equal(t, "tag", phases[0].Name)
	assert.Equal(t, 2*time.Millisecond, phases[0].Duration)
	assert.Equal(t, "count", phases[1].Name)
	assert.Equal(t, 5*time.Millisecond, phases[1].Duration)
	assert.Equal(t, 7*time.Millisecond, timer.Total())
}

func TestTimer_StopIsIdempotent(t *testing.T) {
	timer, clock := newMockTimer(t)

	pt := timer.Start("sweep")
	clock.Advance(time.Millisecond)
	assert.Equal(t, time.Millisecond, pt.Stop())
	clock.Advance(time.Second)
	assert.Equal(t, time.Millisecond, pt.Stop())
}

func TestTimer_DurationSumsRepeatedPhases(t *testing.T) {
	timer, clock := newMockTimer(t)

	for i := 0; i < 3; i++ {
		pt := timer.Start("mark")
		clock.Advance(time.Millisecond)
		pt.Stop()
	}
	assert.Equal(t, 3*time.Millisecond, timer.Duration("mark"))
	assert.Zero(t, timer.Duration("missing"))
}

func TestTimer_RunningPhaseIsNotReported(t *testing.T) {
	timer, _ := newMockTimer(t)
	timer.Start("count")
	assert.Empty(t, timer.Phases())
}

func TestTimer_Disabled(t *testing.T) {
	timer := NewTimer("off", WithEnabled(false))
	timer.Start("tag").Stop()

	assert.False(t, timer.Enabled())
	assert.Nil(t, timer.Phases())
	assert.Empty(t, timer.Summary())
	assert.Zero(t, timer.Total())

	var nilTimer *PhaseTimer
	assert.Zero(t, nilTimer.Stop())
}

func TestTimer_PrintSummary(t *testing.T) {
	buf := &bytes.Buffer{}
	clock := NewMockClock(time.Unix(0, 0))
	timer := NewTimer("pass 4", WithClock(clock), WithLogger(NewDefaultLogger(LevelDebug, buf)))

	pt := timer.Start("sweep")
	clock.Advance(3 * time.Millisecond)
	pt.Stop()
	timer.PrintSummary()

	assert.Contains(t, buf.String(), "pass 4: sweep=3ms (total 3ms)")
}

func TestMockClock(t *testing.T) {
	start := time.Unix(100, 0)
	clock := NewMockClock(start)
	clock.Advance(time.Minute)

	assert.Equal(t, start.Add(time.Minute), clock.Now())
	assert.Equal(t, time.Minute, clock.Since(start))

	var _ Clock = NewRealClock()
	var _ Clock = clock
}
