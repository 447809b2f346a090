package session

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// FormatElapsed renders whole seconds as mm:ss.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Timer tracks elapsed recording time. Each tick recomputes elapsed from the
// epoch rather than counting ticks, so scheduling jitter never accumulates.
type Timer struct {
	interval time.Duration

	record  *Record
	epoch   time.Time
	handle  Handle
	running bool
	elapsed int
}

// NewTimer creates a timer ticking every interval.
func NewTimer(interval time.Duration) *Timer {
	return &Timer{interval: interval, handle: Handle{ID: nextID()}}
}

func (t *Timer) Name() string { return "timer" }

// Start records epoch as the start instant and schedules the first tick.
func (t *Timer) Start(rec *Record, epoch time.Time) tea.Cmd {
	t.record = rec
	t.epoch = epoch
	t.elapsed = 0
	t.handle.Tag++
	t.running = true
	return t.tick()
}

// Stop cancels the tick. Idempotent.
func (t *Timer) Stop() error {
	if !t.running {
		return nil
	}
	t.running = false
	t.handle.Tag++
	return nil
}

// Running reports whether the timer is ticking.
func (t *Timer) Running() bool { return t.running }

// Elapsed returns the last computed elapsed seconds.
func (t *Timer) Elapsed() int { return t.elapsed }

// Display returns the elapsed time as mm:ss.
func (t *Timer) Display() string { return FormatElapsed(t.elapsed) }

func (t *Timer) tick() tea.Cmd {
	h := t.handle
	return tea.Tick(t.interval, func(at time.Time) tea.Msg {
		return timerTickMsg{handle: h, at: at}
	})
}

func (t *Timer) handleTick(msg timerTickMsg) tea.Cmd {
	if !t.running || msg.handle != t.handle {
		return nil
	}
	elapsed := int(msg.at.Sub(t.epoch) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	t.elapsed = elapsed
	if t.record != nil {
		t.record.SetElapsed(elapsed)
	}
	return t.tick()
}
