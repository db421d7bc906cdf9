package log

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	crashFile      *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: SCRIBA_LOG_PATH environment variable
	if envPath := os.Getenv("SCRIBA_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribePath := filepath.Join(dir, "transcribe_log.txt")
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

// InitCrashLog routes fatal runtime output to crash_log.txt.
func InitCrashLog() {
	logMu.Lock()
	defer logMu.Unlock()
	if dir == "" || crashFile != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	if err := debug.SetCrashOutput(f, debug.CrashOptions{}); err != nil {
		f.Close()
		return
	}
	crashFile = f
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	if crashFile != nil {
		debug.SetCrashOutput(nil, debug.CrashOptions{})
		crashFile.Close()
		crashFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(decoder, device string, threshold float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("decoder", decoder).
		Str("device", device).
		Float64("threshold", threshold).
		Msg("session_start")
}

func SessionEnd(committed, abandoned int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("committed", committed).
		Int("abandoned", abandoned).
		Msg("session_end")
}

type UtteranceRecord struct {
	ID         string
	Outcome    string // committed or abandoned
	Reason     string
	Text       string
	Confidence float64
	Scored     bool
	Revisions  int
	Duration   time.Duration
}

// Utterance logs the outcome of one utterance. Committed text is also
// appended to transcribe_log.txt.
func Utterance(u UtteranceRecord) {
	if !logReady {
		return
	}
	ev := diagLog.Info().
		Str("id", u.ID).
		Str("outcome", u.Outcome).
		Int("revisions", u.Revisions).
		Int64("duration_ms", u.Duration.Milliseconds())
	if u.Scored {
		ev = ev.Float64("confidence", u.Confidence)
	}
	if u.Reason != "" {
		ev = ev.Str("reason", u.Reason)
	}
	ev.Msg("utterance")

	if u.Outcome == "committed" && u.Text != "" {
		transcriptionText(u.Text)
	}
}

func transcriptionText(text string) {
	logMu.Lock()
	defer logMu.Unlock()
	if transcribeFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

// Hypothesis and Operation are only called with debug partials on.
func Hypothesis(kind string, revision int, tokens []string) {
	if !logReady {
		return
	}
	diagLog.Debug().
		Str("kind", kind).
		Int("rev", revision).
		Str("tokens", strings.Join(tokens, " ")).
		Msg("hypothesis")
}

func Operation(op string) {
	if !logReady {
		return
	}
	diagLog.Debug().Str("op", op).Msg("dispatch")
}

func DispatchFailure(op string, err error) {
	if !logReady {
		return
	}
	diagLog.Error().Str("op", op).Err(err).Msg("dispatch_failed")
}

type DecoderStatsData struct {
	Backend    string
	ConnectMs  float64
	FinalizeMs float64
	TotalMs    float64
	AudioS     float64
	SentChunks int
	SentKB     float64
	Partials   int
	Finals     int
	Resets     int
}

func DecoderStats(s DecoderStatsData) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("backend", s.Backend).
		Float64("connect_ms", s.ConnectMs).
		Float64("finalize_ms", s.FinalizeMs).
		Float64("total_ms", s.TotalMs).
		Float64("audio_s", s.AudioS).
		Int("sent_chunks", s.SentChunks).
		Float64("sent_kb", s.SentKB).
		Int("partials", s.Partials).
		Int("finals", s.Finals).
		Int("resets", s.Resets).
		Msg("decoder_session")
}
