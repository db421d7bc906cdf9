package decoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"scriba/encoder"
)

// StepKind is one scripted recognizer action.
type StepKind int

const (
	StepPartial StepKind = iota
	StepFinal
	StepSleep
	StepAudio
	StepFail
)

type Step struct {
	Kind       StepKind
	Text       string
	Confidence float64
	Scored     bool
	Duration   time.Duration
}

// Script is a fake decoder that replays the same steps in every session.
// Each session waits for CloseSend or Close once the steps run out.
//
// Script syntax, one step per line, # starts a comment:
//
//	partial open paren
//	final conf=0.9 open paren x close paren
//	final hello           (unscored)
//	sleep 200ms
//	audio 1s              (wait until 1s of PCM was fed)
//	fail connection lost  (stream error)
type Script struct {
	steps []Step
}

func NewScript(steps []Step) *Script {
	return &Script{steps: steps}
}

func LoadScript(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open decoder script: %w", err)
	}
	defer f.Close()
	steps, err := ParseScript(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewScript(steps), nil
}

func ParseScript(r io.Reader) ([]Step, error) {
	var steps []Step
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		verb, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		var step Step
		switch verb {
		case "partial":
			step = Step{Kind: StepPartial, Text: rest}
		case "final":
			step = Step{Kind: StepFinal, Text: rest}
			if first, tail, _ := strings.Cut(rest, " "); strings.HasPrefix(first, "conf=") {
				c, err := strconv.ParseFloat(strings.TrimPrefix(first, "conf="), 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad confidence: %w", lineNo, err)
				}
				step.Confidence, step.Scored, step.Text = c, true, strings.TrimSpace(tail)
			}
		case "sleep", "audio":
			d, err := time.ParseDuration(rest)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad duration: %w", lineNo, err)
			}
			step = Step{Kind: StepSleep, Duration: d}
			if verb == "audio" {
				step.Kind = StepAudio
			}
		case "fail":
			step = Step{Kind: StepFail, Text: rest}
		default:
			return nil, fmt.Errorf("line %d: unknown step %q", lineNo, verb)
		}
		steps = append(steps, step)
	}
	return steps, sc.Err()
}

func (s *Script) Name() string { return "script" }

func (s *Script) NewSession(ctx context.Context, _ SessionConfig) (Session, error) {
	return newStreamSession(ctx, s.Name(), func(ctx context.Context) (rawStream, error) {
		return newScriptStream(ctx, s.steps), nil
	}), nil
}

type scriptStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	steps  []Step

	mu        sync.Mutex
	sent      int
	finalize  chan struct{}
	finOnce   sync.Once
	finalized bool
}

func newScriptStream(ctx context.Context, steps []Step) *scriptStream {
	ctx, cancel := context.WithCancel(ctx)
	return &scriptStream{ctx: ctx, cancel: cancel, steps: steps, finalize: make(chan struct{})}
}

var errScriptClosed = errors.New("script stream closed")

func (s *scriptStream) Send(pcm []byte) error {
	if s.ctx.Err() != nil {
		return errScriptClosed
	}
	s.mu.Lock()
	s.sent += len(pcm)
	s.mu.Unlock()
	return nil
}

func (s *scriptStream) CloseSend() error {
	s.finOnce.Do(func() { close(s.finalize) })
	return nil
}

func (s *scriptStream) Recv() (streamResult, error) {
	for len(s.steps) > 0 {
		step := s.steps[0]
		s.steps = s.steps[1:]
		switch step.Kind {
		case StepPartial:
			return streamResult{Transcript: step.Text}, nil
		case StepFinal:
			return streamResult{Transcript: step.Text, Final: true, Confidence: step.Confidence, Scored: step.Scored}, nil
		case StepFail:
			return streamResult{}, errors.New(step.Text)
		case StepSleep:
			select {
			case <-time.After(step.Duration):
			case <-s.ctx.Done():
				return streamResult{}, errScriptClosed
			}
		case StepAudio:
			if err := s.waitAudio(step.Duration); err != nil {
				return streamResult{}, err
			}
		}
	}

	if s.finalized {
		return streamResult{}, io.EOF
	}
	select {
	case <-s.finalize:
		s.finalized = true
		return streamResult{Finalized: true}, nil
	case <-s.ctx.Done():
		return streamResult{}, errScriptClosed
	}
}

func (s *scriptStream) waitAudio(d time.Duration) error {
	want := int(d.Seconds() * encoder.SampleRate * encoder.Channels * (encoder.BitsPerSample / 8))
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		s.mu.Lock()
		sent := s.sent
		s.mu.Unlock()
		if sent >= want {
			return nil
		}
		select {
		case <-tick.C:
		case <-s.finalize:
			// no more audio is coming
			return nil
		case <-s.ctx.Done():
			return errScriptClosed
		}
	}
}

func (s *scriptStream) Close() error {
	s.cancel()
	return nil
}
