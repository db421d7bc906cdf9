package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(wd, "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("SCRIBA_LOG_PATH", "/tmp/scriba-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/scriba-env-log" {
		t.Errorf("got %q, want /tmp/scriba-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("SCRIBA_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "scriba") {
		t.Errorf("default dir %q should mention scriba", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"diagnostics_log.txt", "transcribe_log.txt"} {
		path := filepath.Join(tmp, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestUtteranceCommitted(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Utterance(UtteranceRecord{
		ID:         "u1",
		Outcome:    "committed",
		Text:       "x = 1025;",
		Confidence: 0.91,
		Scored:     true,
		Revisions:  4,
		Duration:   1500 * time.Millisecond,
	})

	line := readFile(t, filepath.Join(tmp, "transcribe_log.txt"))
	if !strings.Contains(line, "x = 1025;") {
		t.Errorf("transcribe_log.txt missing text, got: %q", line)
	}
	// format: "2006-01-02 15:04:05\t[pid]\ttext\n"
	if strings.Count(line, "\t") != 2 {
		t.Errorf("expected tab-separated format, got: %q", line)
	}

	diag := readFile(t, filepath.Join(tmp, "diagnostics_log.txt"))
	for _, want := range []string{"utterance", "outcome=committed", "confidence=0.91", "revisions=4"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostics missing %q: %q", want, diag)
		}
	}
}

func TestUtteranceAbandonedNotTranscribed(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Utterance(UtteranceRecord{ID: "u2", Outcome: "abandoned", Reason: "low confidence", Text: "hello world"})

	if got := readFile(t, filepath.Join(tmp, "transcribe_log.txt")); got != "" {
		t.Errorf("abandoned text must not reach transcribe log, got %q", got)
	}
	if diag := readFile(t, filepath.Join(tmp, "diagnostics_log.txt")); !strings.Contains(diag, "low confidence") {
		t.Errorf("diagnostics missing reason: %q", diag)
	}
}

func TestDispatchFailure(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	DispatchFailure(`append "x"`, errors.New("uinput gone"))

	if diag := readFile(t, filepath.Join(tmp, "diagnostics_log.txt")); !strings.Contains(diag, "uinput gone") {
		t.Errorf("diagnostics missing error: %q", diag)
	}
}

func TestHelpersBeforeInit(t *testing.T) {
	SetDir("")
	// must not panic without Init
	Info("x")
	Warnf("%d", 1)
	Utterance(UtteranceRecord{Outcome: "committed", Text: "x"})
	DecoderStats(DecoderStatsData{Backend: "script"})
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
