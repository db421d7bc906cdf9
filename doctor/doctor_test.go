package doctor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"scriba/config"
	"scriba/decoder"
)

func TestRunChecks(t *testing.T) {
	var ran []string
	check := func(name string, err error) Check {
		return Check{Name: name, Run: func(_ context.Context, w io.Writer) error {
			ran = append(ran, name)
			fmt.Fprintln(w, "  detail for", name)
			return err
		}}
	}

	tests := []struct {
		name     string
		checks   []Check
		wantCode int
		wantOut  []string
	}{
		{
			name:     "all pass",
			checks:   []Check{check("a", nil), check("b", nil)},
			wantCode: 0,
			wantOut:  []string{"[1/2] a", "[2/2] b", "  PASS", "All checks passed!"},
		},
		{
			name:     "one fails",
			checks:   []Check{check("a", errors.New("broken mic")), check("b", nil)},
			wantCode: 1,
			wantOut:  []string{"  FAIL: broken mic", "1 check(s) failed"},
		},
		{
			name:     "skip is not a failure",
			checks:   []Check{check("a", fmt.Errorf("%w: typing disabled", ErrSkipped))},
			wantCode: 0,
			wantOut:  []string{"  SKIP: skipped: typing disabled", "All checks passed!"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran = nil
			var out bytes.Buffer
			code := runChecks(context.Background(), &out, tt.checks)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if len(ran) != len(tt.checks) {
				t.Errorf("ran %v, want all %d checks", ran, len(tt.checks))
			}
			for _, s := range tt.wantOut {
				if !strings.Contains(out.String(), s) {
					t.Errorf("output missing %q:\n%s", s, out.String())
				}
			}
		})
	}
}

func TestRunChecksInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	var out bytes.Buffer
	code := runChecks(ctx, &out, []Check{{Name: "x", Run: func(context.Context, io.Writer) error {
		called = true
		return nil
	}}})
	if code != 1 || called {
		t.Errorf("code = %d, called = %v; want 1, false", code, called)
	}
}

func TestTranscribe(t *testing.T) {
	steps, err := decoder.ParseScript(strings.NewReader(`
partial open paren
final conf=0.95 open paren x close paren
`))
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	text, res, err := transcribe(context.Background(), decoder.NewScript(steps), cfg, make([]byte, 32000))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "(x)" {
		t.Errorf("got %q, want %q", text, "(x)")
	}
	if res.Stats.Finals != 1 {
		t.Errorf("finals = %d, want 1", res.Stats.Finals)
	}
}

func TestRecognitionSkippedWithoutRecording(t *testing.T) {
	d := &doctor{cfg: config.Default()}
	err := d.checkRecognition(context.Background(), io.Discard)
	if !errors.Is(err, ErrSkipped) {
		t.Errorf("got %v, want ErrSkipped", err)
	}
}

func TestHistoryCheck(t *testing.T) {
	cfg := config.Default()
	d := &doctor{cfg: cfg}
	if err := d.checkHistory(context.Background(), io.Discard); !errors.Is(err, ErrSkipped) {
		t.Errorf("without path: got %v, want ErrSkipped", err)
	}

	d.cfg.History.Path = t.TempDir() + "/history.db"
	var out bytes.Buffer
	if err := d.checkHistory(context.Background(), &out); err != nil {
		t.Fatalf("checkHistory: %v", err)
	}
	if !strings.Contains(out.String(), "0 recent utterance(s)") {
		t.Errorf("output = %q", out.String())
	}
}
