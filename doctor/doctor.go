// Package doctor runs interactive checks of everything a dictation
// session touches: hotkey, microphone, decoder, key injection and the
// history journal.
package doctor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"scriba/audio"
	"scriba/config"
	"scriba/decoder"
	"scriba/dispatch"
	"scriba/encoder"
	"scriba/history"
	"scriba/hotkey"
	"scriba/keyboard"
	"scriba/pipeline"
	"scriba/reconcile"
	"scriba/shutdown"
)

const (
	hotkeyTimeout = 10 * time.Second
	recordFor     = 3 * time.Second
	// minLevel is the RMS below which a recording counts as silent.
	minLevel = 0.005
)

// ErrSkipped marks a check that could not run because an earlier one
// failed.
var ErrSkipped = errors.New("skipped")

type Check struct {
	Name string
	Run  func(ctx context.Context, w io.Writer) error
}

// Run executes the checks for cfg and returns an exit code (0 = all pass).
func Run(cfg config.Config) int {
	resetTerminal()
	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	fmt.Println("scriba doctor - interactive system diagnostics")
	fmt.Println("==============================================")

	d := &doctor{cfg: cfg, in: bufio.NewReader(os.Stdin)}
	return runChecks(ctx, os.Stdout, d.checks())
}

// runChecks prints a PASS or FAIL line per check and a summary.
func runChecks(ctx context.Context, w io.Writer, checks []Check) int {
	failed := 0
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		if ctx.Err() != nil {
			fmt.Fprintln(w, "  FAIL: interrupted")
			failed++
			continue
		}
		err := c.Run(ctx, w)
		switch {
		case err == nil:
			fmt.Fprintln(w, "  PASS")
		case errors.Is(err, ErrSkipped):
			fmt.Fprintf(w, "  SKIP: %v\n", err)
		default:
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			failed++
		}
	}

	fmt.Fprintln(w)
	if failed == 0 {
		fmt.Fprintln(w, "All checks passed!")
		return 0
	}
	fmt.Fprintf(w, "%d check(s) failed. See details above.\n", failed)
	return 1
}

type doctor struct {
	cfg config.Config
	in  *bufio.Reader

	dec decoder.Decoder
	pcm []byte
}

func (d *doctor) checks() []Check {
	return []Check{
		{"Configuration and decoder", d.checkDecoderConfig},
		{"Hotkey detection", d.checkHotkey},
		{"Microphone", d.checkMic},
		{"Recognition", d.checkRecognition},
		{"Key injection", d.checkKeyboard},
		{"History journal", d.checkHistory},
	}
}

func (d *doctor) checkDecoderConfig(_ context.Context, w io.Writer) error {
	if err := d.cfg.Validate(); err != nil {
		return err
	}
	dec, err := decoder.New(d.cfg.Decoder)
	if err != nil {
		return err
	}
	d.dec = dec
	fmt.Fprintf(w, "  decoder: %s | language %s | confidence threshold %.2f\n",
		dec.Name(), d.cfg.Decoder.Language, d.cfg.Reconcile.ConfidenceThreshold)
	return nil
}

func (d *doctor) checkHotkey(ctx context.Context, w io.Writer) error {
	info, err := hotkey.Diagnose()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %s\n", info)
	fmt.Fprintf(w, "  Press %s...\n", hotkey.Combo)

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		return fmt.Errorf("could not register hotkey: %w", err)
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		resetTerminal()
		return nil
	case <-time.After(hotkeyTimeout):
		return errors.New("timeout waiting for hotkey")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *doctor) checkMic(ctx context.Context, w io.Writer) error {
	actx, err := audio.NewContext()
	if err != nil {
		return fmt.Errorf("cannot connect to audio: %w", err)
	}
	defer actx.Close()

	device, err := audio.FindDevice(actx, d.cfg.Audio.Device)
	if err != nil {
		return err
	}
	name := "system default"
	if device != nil {
		name = device.Name
	}
	fmt.Fprintf(w, "  device: %s\n", name)
	fmt.Fprintf(w, "  Press Enter and speak for %s...", recordFor)
	d.in.ReadString('\n')

	pcm, err := record(ctx, w, actx, device, d.cfg.Audio.Gain, recordFor)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return errors.New("no audio captured")
	}
	level := audio.Level(pcm)
	fmt.Fprintf(w, "  recorded %.1fs, level %.3f\n", float64(len(pcm))/encoder.BytesPerSecond, level)
	if level < minLevel {
		return fmt.Errorf("no signal (level %.3f); check the input is not muted", level)
	}
	d.pcm = pcm
	return nil
}

func record(ctx context.Context, w io.Writer, actx audio.Context, device *audio.DeviceInfo, gain int, dur time.Duration) ([]byte, error) {
	capture, err := actx.NewCapture(device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
		Gain:       gain,
	})
	if err != nil {
		return nil, err
	}
	defer capture.Close()

	var mu sync.Mutex
	var pcm []byte
	capture.SetCallback(func(data []byte, _ uint32) {
		mu.Lock()
		pcm = append(pcm, data...)
		mu.Unlock()
	})
	if err := capture.Start(); err != nil {
		return nil, err
	}

	fmt.Fprint(w, "  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(dur)
loop:
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(w, ".")
		case <-deadline:
			break loop
		case <-ctx.Done():
			capture.Stop()
			return nil, ctx.Err()
		}
	}
	capture.Stop()
	capture.ClearCallback()
	fmt.Fprintln(w, " done")

	mu.Lock()
	defer mu.Unlock()
	return pcm, nil
}

// checkRecognition runs the recording through a full pipeline into an
// in-memory buffer.
func (d *doctor) checkRecognition(ctx context.Context, w io.Writer) error {
	if d.dec == nil || d.pcm == nil {
		return fmt.Errorf("%w: needs a decoder and a recording", ErrSkipped)
	}
	text, res, err := transcribe(ctx, d.dec, d.cfg, d.pcm)
	if err != nil {
		return err
	}
	for _, line := range res.Stats.Lines() {
		fmt.Fprintf(w, "  %s\n", line)
	}
	if text == "" {
		text = "(no speech recognized)"
	}
	fmt.Fprintf(w, "\n  Recognized: %s\n\n", text)

	fmt.Fprint(w, "Is this correct? [y/n]: ")
	answer, _ := d.in.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer != "y" && answer != "yes" {
		return errors.New("recognition not confirmed")
	}
	return nil
}

func transcribe(ctx context.Context, dec decoder.Decoder, cfg config.Config, pcm []byte) (string, pipeline.Result, error) {
	var buf keyboard.Buffer
	out := dispatch.New(&buf, dispatch.Options{Separator: cfg.Output.Separator})
	defer out.Close()

	p := pipeline.New(pipeline.Options{
		Decoder: dec,
		Session: decoder.SessionConfig{Language: cfg.Decoder.Language, SampleRate: cfg.Audio.SampleRate},
		Engine:  reconcile.Config{ConfidenceThreshold: cfg.Reconcile.ConfidenceThreshold},
		Output:  out,
	})

	capture := audio.NewFakeCapture(pcm, false)
	stop := make(chan struct{})
	go func() {
		<-capture.AudioDone()
		close(stop)
	}()
	res, err := p.Run(ctx, capture, stop)
	return strings.TrimSpace(buf.String()), res, err
}

func (d *doctor) checkKeyboard(_ context.Context, w io.Writer) error {
	if !d.cfg.Output.TypingEnabled {
		return fmt.Errorf("%w: typing disabled", ErrSkipped)
	}
	info, err := keyboard.Verify()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %s\n", info)
	return nil
}

func (d *doctor) checkHistory(ctx context.Context, w io.Writer) error {
	if d.cfg.History.Path == "" {
		return fmt.Errorf("%w: history.path not set", ErrSkipped)
	}
	store, err := history.Open(ctx, d.cfg.History)
	if err != nil {
		return err
	}
	defer store.Close()
	recent, err := store.Recent(ctx, 5)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %s: %d recent utterance(s)\n", d.cfg.History.Path, len(recent))
	for _, e := range recent {
		fmt.Fprintf(w, "    %s %-9s %q\n", e.EndedAt.Format("2006-01-02 15:04"), e.Outcome, e.Text)
	}
	return nil
}
