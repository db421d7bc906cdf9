// Package reconcile turns decoder events into output operations. It keeps
// what has been typed for the open utterance and, for every new
// hypothesis, emits the smallest delete/append pair that brings the
// screen in line with the normalized hypothesis.
//
// An Engine is not safe for concurrent use; one goroutine owns it.
package reconcile

import (
	"fmt"
	"time"

	"scriba/decoder"
	"scriba/normalize"
)

type State int

const (
	Idle State = iota
	Active
	Committed
	Abandoned
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Abandoned:
		return "abandoned"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) Terminal() bool { return s == Committed || s == Abandoned }

const ReasonLowConfidence = "low confidence"

// Session is one utterance as seen by the engine.
type Session struct {
	ID    string
	State State

	// Emitted is what the ops so far have typed.
	Emitted normalize.Output
	Last    decoder.Hypothesis
	// Retracted is the text deleted when the session was abandoned.
	Retracted string
	Reason    string
	Revisions int

	StartedAt time.Time
	EndedAt   time.Time
}

// Text is the committed text, or the retracted text of an abandoned
// session.
func (s Session) Text() string {
	if s.State == Abandoned {
		return s.Retracted
	}
	return s.Emitted.Text
}

type Config struct {
	// Finals scored strictly below the threshold are rejected.
	ConfidenceThreshold float64
	NewID               func() string
	Now                 func() time.Time
}

// Step is the outcome of one event.
type Step struct {
	Event    decoder.Event
	Ops      []Op
	From, To State
	Session  Session
}

// Ended reports whether the step closed its session.
func (s Step) Ended() bool { return !s.From.Terminal() && s.To.Terminal() }

type Engine struct {
	cfg  Config
	sess *Session
	seq  int
}

func New(cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Engine{cfg: cfg}
	if e.cfg.NewID == nil {
		e.cfg.NewID = func() string {
			e.seq++
			return fmt.Sprintf("u%d", e.seq)
		}
	}
	return e
}

// Session returns a snapshot of the current or most recent session.
func (e *Engine) Session() (Session, bool) {
	if e.sess == nil {
		return Session{}, false
	}
	return *e.sess, true
}

func (e *Engine) Handle(ev decoder.Event) Step {
	if ev.Type == decoder.EventReset && (e.sess == nil || e.sess.State == Idle || e.sess.State.Terminal()) {
		return e.noop(ev)
	}
	if ev.Type != decoder.EventReset && ev.Hypothesis.Empty() && (e.sess == nil || e.sess.State != Active) {
		// nothing to show and nothing to take back
		return e.noop(ev)
	}
	if e.sess == nil || e.sess.State.Terminal() {
		e.begin()
	}

	from := e.sess.State
	var ops []Op
	switch ev.Type {
	case decoder.EventPartial:
		e.sess.State = Active
		ops = e.revise(ev.Hypothesis)

	case decoder.EventFinal:
		h := ev.Hypothesis
		if h.Scored && h.Confidence < e.cfg.ConfidenceThreshold {
			e.sess.Last = h
			e.sess.Revisions++
			ops = e.retract()
			e.end(Abandoned, ReasonLowConfidence)
			break
		}
		ops = e.revise(h)
		ops = append(ops, Commit(e.sess.Emitted.Text))
		e.end(Committed, "")

	case decoder.EventReset:
		ops = e.retract()
		e.end(Abandoned, ev.Reason)
	}

	return Step{Event: ev, Ops: ops, From: from, To: e.sess.State, Session: *e.sess}
}

func (e *Engine) noop(ev decoder.Event) Step {
	s, _ := e.Session()
	return Step{Event: ev, From: s.State, To: s.State, Session: s}
}

func (e *Engine) begin() {
	e.sess = &Session{
		ID:        e.cfg.NewID(),
		State:     Idle,
		StartedAt: e.cfg.Now(),
	}
}

func (e *Engine) revise(h decoder.Hypothesis) []Op {
	next := normalize.Parse(h.Tokens)
	ops := Diff(e.sess.Emitted, next)
	e.sess.Emitted = next
	e.sess.Last = h
	e.sess.Revisions++
	return ops
}

func (e *Engine) retract() []Op {
	ops := Diff(e.sess.Emitted, normalize.Output{})
	e.sess.Retracted = e.sess.Emitted.Text
	e.sess.Emitted = normalize.Output{}
	return ops
}

func (e *Engine) end(state State, reason string) {
	e.sess.State = state
	e.sess.Reason = reason
	e.sess.EndedAt = e.cfg.Now()
}
