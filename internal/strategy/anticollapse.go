package strategy

import (
	"time"
)

// DefaultCollapseWindow is the rolling window for the net-worth-per-turn
// average that anti-collapse watches.
const DefaultCollapseWindow = 15 * time.Minute

type collapseSample struct {
	at       time.Time
	netWorth int
	turns    int
}

// CollapseMonitor tracks net-worth-per-turn over a rolling window. When the
// average drops below Floor, the owning strategy must downshift (smaller
// trade sizes, verified lanes only) and re-verify credits before trading.
type CollapseMonitor struct {
	Floor  float64
	Window time.Duration

	samples     []collapseSample
	downshifted bool
}

// NewCollapseMonitor returns a monitor with the given floor; a zero window
// selects the default.
func NewCollapseMonitor(floor float64, window time.Duration) *CollapseMonitor {
	if window <= 0 {
		window = DefaultCollapseWindow
	}
	return &CollapseMonitor{Floor: floor, Window: window}
}

// Record adds a sample and reevaluates. Turns counts down in game, so the
// per-turn rate uses turns consumed between the oldest and newest sample.
func (m *CollapseMonitor) Record(now time.Time, netWorth, turnsRemaining int) {
	m.samples = append(m.samples, collapseSample{at: now, netWorth: netWorth, turns: turnsRemaining})
	cut := now.Add(-m.Window)
	for len(m.samples) > 1 && m.samples[0].at.Before(cut) {
		m.samples = m.samples[1:]
	}
	m.downshifted = m.belowFloor()
}

// Downshifted reports whether the strategy should currently trade small and
// re-verify credits first.
func (m *CollapseMonitor) Downshifted() bool {
	return m.downshifted
}

// Rate returns the windowed net-worth gain per turn consumed. With fewer than
// two samples or no turns consumed the rate is unknowable and reported as 0.
func (m *CollapseMonitor) Rate() (float64, bool) {
	if len(m.samples) < 2 {
		return 0, false
	}
	first, last := m.samples[0], m.samples[len(m.samples)-1]
	turnsSpent := first.turns - last.turns
	if turnsSpent <= 0 {
		return 0, false
	}
	return float64(last.netWorth-first.netWorth) / float64(turnsSpent), true
}

func (m *CollapseMonitor) belowFloor() bool {
	rate, ok := m.Rate()
	return ok && rate < m.Floor
}

// Reset clears history, typically after credits were re-verified and the
// operator bumped parameters.
func (m *CollapseMonitor) Reset() {
	m.samples = m.samples[:0]
	m.downshifted = false
}
