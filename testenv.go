package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"scriba/audio"
	"scriba/config"
	"scriba/decoder"
	"scriba/history"
	"scriba/hotkey"
	"scriba/keyboard"
	"scriba/log"
)

// runTestMode replays an audio file in real time and drives listening from
// stdin commands:
//
//	START            begin listening
//	PAUSE            press the hotkey (pause or resume)
//	STOP             stop listening, finalizing the open utterance
//	WAIT             wait until listening has stopped
//	WAIT_AUDIO_DONE  wait until the file has been fed once
//	SLEEP <ms>
//	PRINT            print the typed text
//	QUIT
//
// Output goes to an in-memory buffer instead of the keyboard.
func runTestMode(cfg config.Config, dec decoder.Decoder, audioPath string, in io.Reader, out io.Writer) int {
	fakeCtx, err := audio.NewFakeContext(audioPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading audio: %v\n", err)
		return 1
	}
	capture, err := fakeCtx.NewCapture(nil, captureConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating capture: %v\n", err)
		return 1
	}
	fake := capture.(*audio.FakeCapture)

	hist, err := history.Open(context.Background(), cfg.History)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
		capture.Close()
		return 1
	}

	screen := &keyboard.Buffer{}
	hk := hotkey.NewFake()
	a := newApp(appDeps{
		cfg:     cfg,
		decoder: dec,
		output:  screen,
		capture: capture,
		hotkey:  hk,
		history: hist,
	})
	defer a.close()

	var stop, done chan struct{}
	running := func() bool {
		if done == nil {
			return false
		}
		select {
		case <-done:
			return false
		default:
			return true
		}
	}

	scanner := bufio.NewScanner(in)
loop:
	for scanner.Scan() {
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		switch cmd {
		case "START":
			if running() {
				continue
			}
			stop, done = make(chan struct{}), make(chan struct{})
			go func(stop, done chan struct{}) {
				a.serve(stop)
				close(done)
			}(stop, done)
		case "PAUSE":
			if running() {
				hk.SimPress()
			}
		case "STOP":
			if running() && stop != nil {
				close(stop)
				stop = nil
			}
		case "WAIT":
			if done != nil {
				<-done
			}
		case "WAIT_AUDIO_DONE":
			<-fake.AudioDone()
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "PRINT":
			fmt.Fprintf(out, "BUFFER %q\n", screen.String())
		case "QUIT":
			break loop
		case "":
		default:
			log.Warnf("test mode: unknown command %q", cmd)
		}
	}

	if running() {
		if stop != nil {
			close(stop)
		}
		<-done
	}
	return 0
}
