package main

import "time"

const (
	tickInterval     = 100 * time.Millisecond
	silenceWarnAfter = 8 * time.Second
	// speechLevel is the RMS a tick needs to count as voice.
	speechLevel      = 0.02
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear warning (hysteresis)
)

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // no voice detected
	SilenceWarnClear              // speech resumed after warning
)

// silenceMonitor watches the capture level while listening and flags a
// muted or dead microphone. Observe is called from the capture callback;
// levels are pooled into fixed ticks.
type silenceMonitor struct {
	warnAt int

	window   []bool
	ticks    int
	warned   bool
	peak     float64
	tickFrom time.Time
}

func newSilenceMonitor() *silenceMonitor {
	n := int(silenceWarnAfter / tickInterval)
	return &silenceMonitor{warnAt: n, window: make([]bool, n)}
}

// Reset starts a fresh window, e.g. when listening resumes.
func (m *silenceMonitor) Reset() {
	clear(m.window)
	m.ticks = 0
	m.warned = false
	m.peak = 0
	m.tickFrom = time.Time{}
}

// Observe pools rms into the current tick and closes the tick once
// tickInterval has passed.
func (m *silenceMonitor) Observe(rms float64, now time.Time) SilenceEvent {
	if m.tickFrom.IsZero() {
		m.tickFrom = now
	}
	m.peak = max(m.peak, rms)
	if now.Sub(m.tickFrom) < tickInterval {
		return SilenceNone
	}
	ev := m.Tick(m.peak >= speechLevel)
	m.peak = 0
	m.tickFrom = now
	return ev
}

func (m *silenceMonitor) ratio() float64 {
	n := min(m.ticks, m.warnAt)
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := range n {
		if m.window[(m.ticks-1-i)%m.warnAt] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) SilenceEvent {
	m.window[m.ticks%m.warnAt] = hasSpeech
	m.ticks++

	r := m.ratio()
	if m.ticks >= m.warnAt && r < speechMinRatio && !m.warned {
		m.warned = true
		return SilenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return SilenceWarnClear
	}
	return SilenceNone
}
