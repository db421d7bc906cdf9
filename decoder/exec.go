package decoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/mattn/go-shellwords"
)

// Exec drives a local recognizer process. PCM is written to its stdin and
// it answers with Vosk JSON lines on stdout. Closing stdin asks it to
// emit the last result and exit.
type Exec struct {
	command string
	model   string
}

func NewExec(command, model string) (*Exec, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("exec: recognizer command is empty")
	}
	if _, err := shellwords.NewParser().Parse(command); err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	return &Exec{command: command, model: model}, nil
}

func (e *Exec) Name() string { return "exec" }

func (e *Exec) NewSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	return newStreamSession(ctx, e.Name(), func(ctx context.Context) (rawStream, error) {
		return dialWithRetry(ctx, 1, func(ctx context.Context) (rawStream, error) {
			return e.start(ctx, cfg)
		})
	}), nil
}

// Args expands {model} and {rate} in the configured command.
func (e *Exec) Args(sampleRate int) ([]string, error) {
	cmd := strings.NewReplacer(
		"{model}", shellwordsQuote(e.model),
		"{rate}", strconv.Itoa(sampleRate),
	).Replace(e.command)
	args, err := shellwords.NewParser().Parse(cmd)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("exec: recognizer command is empty")
	}
	return args, nil
}

func shellwordsQuote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t'\"\\$`") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}

type execStream struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  *bufio.Scanner
	stderr *strings.Builder

	closeOnce sync.Once
	stdinOnce sync.Once
}

func (e *Exec) start(ctx context.Context, cfg SessionConfig) (rawStream, error) {
	args, err := e.Args(cfg.SampleRate)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("recognizer not found: %w", err))
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recognizer: %w", err)
	}

	lines := bufio.NewScanner(stdout)
	lines.Buffer(make([]byte, 64*1024), 1024*1024)
	return &execStream{cmd: cmd, stdin: stdin, lines: lines, stderr: &stderr}, nil
}

func (s *execStream) Send(pcm []byte) error {
	_, err := s.stdin.Write(pcm)
	return err
}

func (s *execStream) CloseSend() error {
	var err error
	s.stdinOnce.Do(func() { err = s.stdin.Close() })
	return err
}

func (s *execStream) Recv() (streamResult, error) {
	for s.lines.Scan() {
		line := s.lines.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		res, ok, err := parseVosk(line)
		if err != nil {
			return streamResult{}, err
		}
		if ok {
			return res, nil
		}
	}
	if err := s.lines.Err(); err != nil {
		return streamResult{}, err
	}
	if err := s.cmd.Wait(); err != nil {
		return streamResult{}, fmt.Errorf("recognizer exited: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return streamResult{}, io.EOF
}

func (s *execStream) Close() error {
	s.CloseSend()
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
	})
	return nil
}
