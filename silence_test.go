package main

import (
	"testing"
	"time"
)

func feedN(m *silenceMonitor, speech bool, n int) SilenceEvent {
	var last SilenceEvent
	for range n {
		last = m.Tick(speech)
	}
	return last
}

func TestSilenceWarnAfter8s(t *testing.T) {
	m := newSilenceMonitor()
	// 79 ticks of silence, no warning yet
	for i := range 79 {
		if ev := m.Tick(false); ev != SilenceNone {
			t.Fatalf("unexpected event at tick %d: %d", i, ev)
		}
	}
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatalf("expected SilenceWarn at tick 80, got %d", ev)
	}
}

func TestSilenceWarnClearsOnSpeech(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, 80)

	for range 80 {
		if m.Tick(true) == SilenceWarnClear {
			return
		}
	}
	t.Fatal("expected SilenceWarnClear after speech")
}

func TestNoWarnDuringSpeech(t *testing.T) {
	m := newSilenceMonitor()
	for i := range 200 {
		if ev := m.Tick(true); ev == SilenceWarn {
			t.Fatalf("unexpected warn during speech at tick %d", i)
		}
	}
}

func TestWarnOnlyOnce(t *testing.T) {
	m := newSilenceMonitor()
	warns := 0
	for range 300 {
		if m.Tick(false) == SilenceWarn {
			warns++
		}
	}
	if warns != 1 {
		t.Fatalf("expected exactly 1 SilenceWarn, got %d", warns)
	}
}

func TestWarnStaysDuringNoise(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, 80)

	// sporadic clicks (10% of ticks) stay below the clear threshold
	for i := range 80 {
		if ev := m.Tick(i%10 == 0); ev == SilenceWarnClear {
			t.Fatalf("warning cleared by noise at tick %d", i)
		}
	}
}

func TestResetForgetsSilence(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, 79)
	m.Reset()
	if ev := feedN(m, false, 79); ev != SilenceNone {
		t.Fatalf("warned %d ticks after reset", 79)
	}
}

func TestObservePoolsIntoTicks(t *testing.T) {
	m := newSilenceMonitor()
	start := time.Unix(0, 0)

	// callbacks every 20ms: five per tick, one loud callback per tick is
	// enough to count the tick as voice
	var warned bool
	for i := range 500 {
		level := 0.0
		if i%5 == 0 {
			level = 0.1
		}
		if m.Observe(level, start.Add(time.Duration(i)*20*time.Millisecond)) == SilenceWarn {
			warned = true
		}
	}
	if warned {
		t.Fatal("warned although every tick had voice")
	}

	m.Reset()
	for i := range 500 {
		if m.Observe(0.001, start.Add(time.Duration(i)*20*time.Millisecond)) == SilenceWarn {
			return
		}
	}
	t.Fatal("expected a warning for a silent input")
}
