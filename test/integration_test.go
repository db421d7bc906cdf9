//go:build integration

package test_test

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"scriba/encoder"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("SCRIBA_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "SCRIBA_TEST_BIN not set; build the binary and point SCRIBA_TEST_BIN at it")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func silenceWAV(t *testing.T, seconds float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "silence.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := encoder.WriteWAV(f, make([]byte, int(seconds*encoder.BytesPerSecond))); err != nil {
		t.Fatal(err)
	}
	return path
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

type result struct {
	stdout string
	logDir string
}

// runScriba runs test mode with a scripted decoder.
func runScriba(t *testing.T, script, stdin string, args ...string) result {
	t.Helper()
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "decoder.script")
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	logDir := filepath.Join(dir, "logs")

	cmdArgs := append([]string{"-logpath", logDir, "-tui=false", "-test", silenceWAV(t, 1)}, args...)
	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(),
		"SCRIBA_DECODER_BACKEND=script",
		"SCRIBA_DECODER_SCRIPT="+scriptPath,
	)
	var stdout strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("scriba exited with error: %v\noutput: %s", err, stdout.String())
	}
	return result{stdout: stdout.String(), logDir: logDir}
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func TestCommitIsTyped(t *testing.T) {
	r := runScriba(t, `
partial open paren
partial open paren x
final conf=0.93 open paren x close paren semicolon
`, cmds("START", "WAIT_AUDIO_DONE", "STOP", "WAIT", "PRINT", "QUIT"))

	if want := `BUFFER "(x); "`; !strings.Contains(r.stdout, want) {
		t.Errorf("stdout %q, want %q", r.stdout, want)
	}
	if text := readLog(t, r.logDir, "transcribe_log.txt"); !strings.Contains(text, "(x);") {
		t.Errorf("transcribe_log.txt = %q", text)
	}
	diag := readLog(t, r.logDir, "diagnostics_log.txt")
	for _, s := range []string{"session_start", "utterance", "outcome=committed", "decoder_session", "session_end"} {
		if !strings.Contains(diag, s) {
			t.Errorf("diagnostics missing %q", s)
		}
	}
}

func TestLowConfidenceIsRetracted(t *testing.T) {
	r := runScriba(t, `
partial rm dash r f
final conf=0.2 rm dash r f
`, cmds("START", "WAIT_AUDIO_DONE", "STOP", "WAIT", "PRINT", "QUIT"))

	if want := `BUFFER ""`; !strings.Contains(r.stdout, want) {
		t.Errorf("stdout %q, want %q", r.stdout, want)
	}
	if diag := readLog(t, r.logDir, "diagnostics_log.txt"); !strings.Contains(diag, "low confidence") {
		t.Error("diagnostics missing the low confidence rejection")
	}
	if text := readLog(t, r.logDir, "transcribe_log.txt"); strings.TrimSpace(text) != "" {
		t.Errorf("rejected text reached transcribe_log.txt: %q", text)
	}
}

func TestPauseAbandons(t *testing.T) {
	r := runScriba(t, `
partial hello there
sleep 10s
final hello there
`, cmds("START", "SLEEP 300", "PAUSE", "SLEEP 300", "PRINT", "STOP", "WAIT", "QUIT"))

	if want := `BUFFER ""`; !strings.Contains(r.stdout, want) {
		t.Errorf("stdout %q, want %q", r.stdout, want)
	}
	diag := readLog(t, r.logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "listening_paused") || !strings.Contains(diag, "reason=canceled") {
		t.Errorf("diagnostics missing pause/cancel:\n%s", diag)
	}
}

func TestHistoryJournal(t *testing.T) {
	r := runScriba(t, `
final conf=0.9 hello
`, cmds("START", "WAIT_AUDIO_DONE", "STOP", "WAIT", "QUIT"), "-history", "history.db")
	// relative paths resolve against the working directory
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(r.logDir), "history.db*"))
	if len(matches) == 0 {
		t.Error("history.db was not created")
	}
}
