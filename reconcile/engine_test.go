package reconcile

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"scriba/decoder"
	"scriba/normalize"
)

func partial(rev int, text string) decoder.Event {
	return decoder.PartialEvent(decoder.Hypothesis{Tokens: strings.Fields(text), Revision: rev})
}

func final(rev int, text string, conf float64) decoder.Event {
	return decoder.FinalEvent(decoder.Hypothesis{Tokens: strings.Fields(text), Revision: rev, Confidence: conf, Scored: true})
}

func unscoredFinal(rev int, text string) decoder.Event {
	return decoder.FinalEvent(decoder.Hypothesis{Tokens: strings.Fields(text), Revision: rev})
}

func newEngine(threshold float64) *Engine {
	return New(Config{ConfidenceThreshold: threshold})
}

// run feeds events and returns every op plus the replayed buffer.
func run(e *Engine, events ...decoder.Event) ([]Op, string) {
	var ops []Op
	for _, ev := range events {
		ops = append(ops, e.Handle(ev).Ops...)
	}
	return ops, Replay("", ops)
}

func opsString(ops []Op) string {
	var parts []string
	for _, op := range ops {
		parts = append(parts, op.String())
	}
	return strings.Join(parts, " ")
}

func TestPartialsThenFinal(t *testing.T) {
	e := newEngine(0.5)

	steps := []struct {
		ev   decoder.Event
		want string
	}{
		{partial(1, "open paren"), `append("(")`},
		{partial(2, "open paren x"), `append("x")`},
		{final(3, "open paren x close paren", 0.9), `append(")") commit("(x)")`},
	}
	var all []Op
	for _, s := range steps {
		step := e.Handle(s.ev)
		if got := opsString(step.Ops); got != s.want {
			t.Errorf("%s: ops = %s, want %s", s.ev, got, s.want)
		}
		all = append(all, step.Ops...)
	}

	if got := Replay("", all); got != "(x)" {
		t.Errorf("buffer = %q, want %q", got, "(x)")
	}
	sess, _ := e.Session()
	if sess.State != Committed || sess.Text() != "(x)" {
		t.Errorf("session = %v %q", sess.State, sess.Text())
	}
}

func TestLowConfidenceFinalRetracts(t *testing.T) {
	e := newEngine(0.5)
	ops, buf := run(e, partial(1, "hello world"), final(2, "hello world", 0.2))

	if got := opsString(ops[1:]); got != "delete_back(11)" {
		t.Errorf("ops = %s, want delete_back(11)", got)
	}
	if buf != "" {
		t.Errorf("buffer = %q, want empty", buf)
	}
	sess, _ := e.Session()
	if sess.State != Abandoned || sess.Reason != ReasonLowConfidence {
		t.Errorf("session = %v (%s)", sess.State, sess.Reason)
	}
	if sess.Retracted != "hello world" {
		t.Errorf("retracted = %q", sess.Retracted)
	}
}

func TestResetRetracts(t *testing.T) {
	e := newEngine(0.5)
	e.Handle(partial(1, "foo"))
	step := e.Handle(decoder.ResetEvent(decoder.ReasonCanceled))

	if got := opsString(step.Ops); got != "delete_back(3)" {
		t.Errorf("ops = %s, want delete_back(3)", got)
	}
	if step.From != Active || step.To != Abandoned || !step.Ended() {
		t.Errorf("transition %v -> %v", step.From, step.To)
	}
	if step.Session.Reason != decoder.ReasonCanceled {
		t.Errorf("reason = %q", step.Session.Reason)
	}
}

func TestConfidenceGate(t *testing.T) {
	for _, tt := range []struct {
		name      string
		threshold float64
		ev        decoder.Event
		want      State
	}{
		{"above", 0.5, final(2, "x", 0.51), Committed},
		{"equal passes", 0.5, final(2, "x", 0.5), Committed},
		{"below", 0.5, final(2, "x", 0.49), Abandoned},
		{"zero threshold", 0, final(2, "x", 0), Committed},
		{"full threshold", 1, final(2, "x", 0.99), Abandoned},
		{"unscored passes", 0.9, unscoredFinal(2, "x"), Committed},
	} {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(tt.threshold)
			_, buf := run(e, partial(1, "x"), tt.ev)
			sess, _ := e.Session()
			if sess.State != tt.want {
				t.Fatalf("state = %v, want %v", sess.State, tt.want)
			}
			wantBuf := "x"
			if tt.want == Abandoned {
				wantBuf = ""
			}
			if buf != wantBuf {
				t.Errorf("buffer = %q, want %q", buf, wantBuf)
			}
		})
	}
}

func TestPartialsAlwaysPass(t *testing.T) {
	e := newEngine(1)
	ev := decoder.PartialEvent(decoder.Hypothesis{Tokens: []string{"hi"}, Revision: 1, Confidence: 0.01, Scored: true})
	if _, buf := run(e, ev); buf != "hi" {
		t.Errorf("buffer = %q, want hi", buf)
	}
}

func TestIdenticalHypothesisNoOps(t *testing.T) {
	e := newEngine(0.5)
	e.Handle(partial(1, "x equals five"))
	if step := e.Handle(partial(2, "x equals five")); len(step.Ops) != 0 {
		t.Errorf("ops = %s, want none", opsString(step.Ops))
	}
}

func TestRevisionRewritesTail(t *testing.T) {
	e := newEngine(0.5)
	steps := []struct {
		ev   decoder.Event
		want string
	}{
		{partial(1, "one"), `append("1")`},
		{partial(2, "one thousand"), `delete_back(1) append("1000")`},
		{partial(3, "one thousand twenty five"), `delete_back(4) append("1025")`},
		{partial(4, "one thousand twenty five semicolon"), `append(";")`},
		{partial(5, "won thousand"), `delete_back(5) append("won thousand")`},
	}
	var buf string
	for _, s := range steps {
		step := e.Handle(s.ev)
		if got := opsString(step.Ops); got != s.want {
			t.Errorf("%s: ops = %s, want %s", s.ev, got, s.want)
		}
		buf = Replay(buf, step.Ops)
		if want := normalize.Normalize(s.ev.Hypothesis.Tokens); buf != want {
			t.Errorf("%s: buffer = %q, want %q", s.ev, buf, want)
		}
	}
}

func TestIdleFinalWithoutPartials(t *testing.T) {
	e := newEngine(0.5)
	step := e.Handle(final(1, "hello", 0.8))
	if got := opsString(step.Ops); got != `append("hello") commit("hello")` {
		t.Errorf("ops = %s", got)
	}
	if step.From != Idle || step.To != Committed {
		t.Errorf("transition %v -> %v", step.From, step.To)
	}
}

func TestEmptyEventsOnIdleIgnored(t *testing.T) {
	e := newEngine(0.5)
	for _, ev := range []decoder.Event{
		final(1, "", 0.9),
		partial(1, ""),
		decoder.ResetEvent(decoder.ReasonClosed),
	} {
		step := e.Handle(ev)
		if len(step.Ops) != 0 {
			t.Errorf("%s: ops = %s", ev, opsString(step.Ops))
		}
	}
	if _, ok := e.Session(); ok {
		t.Error("no session should have started")
	}
}

func TestEmptyFinalOnActiveCommitsNothing(t *testing.T) {
	e := newEngine(0.5)
	ops, buf := run(e, partial(1, "uh"), final(2, "", 0.9))
	if buf != "" {
		t.Errorf("buffer = %q", buf)
	}
	if last := ops[len(ops)-1]; last.Kind != OpCommit || last.Text != "" {
		t.Errorf("last op = %s", last)
	}
}

func TestResetAfterCommitIsNoop(t *testing.T) {
	e := newEngine(0.5)
	run(e, partial(1, "done"), final(2, "done", 0.9))
	step := e.Handle(decoder.ResetEvent(decoder.ReasonClosed))
	if len(step.Ops) != 0 {
		t.Errorf("ops = %s", opsString(step.Ops))
	}
	if sess, _ := e.Session(); sess.State != Committed {
		t.Errorf("state = %v", sess.State)
	}
}

func TestNextPartialStartsNewSession(t *testing.T) {
	ids := []string{"a", "b"}
	e := New(Config{
		ConfidenceThreshold: 0.5,
		NewID:               func() string { id := ids[0]; ids = ids[1:]; return id },
	})
	first := e.Handle(partial(1, "one"))
	e.Handle(final(2, "one", 0.9))
	second := e.Handle(partial(1, "two"))

	if first.Session.ID != "a" || second.Session.ID != "b" {
		t.Errorf("ids = %q, %q", first.Session.ID, second.Session.ID)
	}
	if second.From != Idle || second.To != Active {
		t.Errorf("transition %v -> %v", second.From, second.To)
	}
	if got := opsString(second.Ops); got != `append("2")` {
		t.Errorf("new session must start from an empty buffer, ops = %s", got)
	}
}

func TestSessionTimestamps(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := New(Config{Now: func() time.Time { now = now.Add(time.Second); return now }})
	e.Handle(partial(1, "a"))
	step := e.Handle(final(2, "a b", 1))
	if got := step.Session.EndedAt.Sub(step.Session.StartedAt); got != time.Second {
		t.Errorf("duration = %v", got)
	}
	if step.Session.Revisions != 2 {
		t.Errorf("revisions = %d", step.Session.Revisions)
	}
}

// Every prefix of a sequence of revisions replays to the latest rendering.
func TestRoundTrip(t *testing.T) {
	revisions := [][]string{
		{"print"},
		{"print", "open"},
		{"print", "open", "paren"},
		{"print", "open", "paren", "two"},
		{"print", "open", "paren", "two", "hundred"},
		{"print", "open", "paren", "two", "hundred", "and"},
		{"print", "open", "paren", "two", "hundred", "and", "five"},
		{"print", "open", "paren", "too"},
		{"print", "open", "paren", "two", "hundred", "and", "five", "close", "paren"},
		{"ünïcode", "dot", "naïve"},
	}
	e := newEngine(0.5)
	buf := ""
	for i, toks := range revisions {
		step := e.Handle(decoder.PartialEvent(decoder.Hypothesis{Tokens: toks, Revision: i + 1}))
		buf = Replay(buf, step.Ops)
		if want := normalize.Normalize(toks); buf != want {
			t.Fatalf("revision %d: buffer = %q, want %q", i+1, buf, want)
		}
	}
	step := e.Handle(decoder.ResetEvent(decoder.ReasonDeviceChanged))
	if buf = Replay(buf, step.Ops); buf != "" {
		t.Errorf("after reset buffer = %q", buf)
	}
}

// A diff never deletes more than the part of the old text past the
// shared segments.
func TestDiffMinimal(t *testing.T) {
	for _, tt := range []struct{ old, new string }{
		{"a b c", "a b d"},
		{"x equals one", "x equals one thousand"},
		{"open paren", "open paren close paren"},
		{"hello", "hello"},
		{"", "hi there"},
		{"hi there", ""},
	} {
		t.Run(fmt.Sprintf("%s->%s", tt.old, tt.new), func(t *testing.T) {
			prev := normalize.Parse(strings.Fields(tt.old))
			next := normalize.Parse(strings.Fields(tt.new))
			ops := Diff(prev, next)

			if got := Replay(prev.Text, ops); got != next.Text {
				t.Fatalf("replay = %q, want %q", got, next.Text)
			}
			k := normalize.CommonPrefix(prev, next)
			kept := prev.Text[:prev.PrefixEnd(k)]
			deleted := 0
			for _, op := range ops {
				if op.Kind == OpDeleteBack {
					deleted += op.Count
				}
			}
			if want := len([]rune(prev.Text)) - len([]rune(kept)); deleted != want {
				t.Errorf("deleted %d runes, want %d", deleted, want)
			}
			if prev.Text == next.Text && len(ops) != 0 {
				t.Errorf("equal texts produced ops %s", opsString(ops))
			}
		})
	}
}

func TestReplayRunes(t *testing.T) {
	got := Replay("", []Op{Append("naïve"), DeleteBack(3), Append("ve"), Commit("x")})
	if got != "nave" {
		t.Fatalf("got %q", got)
	}
	if got := Replay("ab", []Op{DeleteBack(5)}); got != "" {
		t.Errorf("over-delete = %q, want empty", got)
	}
}

func TestStateString(t *testing.T) {
	got := []string{Idle.String(), Active.String(), Committed.String(), Abandoned.String()}
	if !slices.Equal(got, []string{"idle", "active", "committed", "abandoned"}) {
		t.Errorf("got %v", got)
	}
}
