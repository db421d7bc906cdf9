package main

import (
	"context"
	"fmt"
	"time"

	"scriba/audio"
	"scriba/config"
	"scriba/decoder"
	"scriba/dispatch"
	"scriba/encoder"
	"scriba/history"
	"scriba/hotkey"
	"scriba/log"
	"scriba/metrics"
	"scriba/pipeline"
	"scriba/reconcile"
)

const restartDelay = time.Second

// app owns the capture device and keeps listening until stopped,
// restarting the decoder session whenever it ends on its own. When the
// device goes away the open utterance is abandoned and capture moves to
// the system default.
type app struct {
	hk      hotkey.Hotkey
	actx    audio.Context
	capCfg  audio.CaptureConfig
	capture audio.CaptureDevice
	// preferred is the configured device name, empty for the default.
	preferred string
	out       *dispatch.Dispatcher
	history   *history.Store
	pipe      *pipeline.Pipeline
	obs       *uiObserver

	restartDelay  time.Duration
	watchInterval time.Duration
	committed     int
	abandoned     int
}

type appDeps struct {
	cfg     config.Config
	decoder decoder.Decoder
	output  dispatch.Backend
	// audio and device enable device watching; without them the capture
	// is used as is.
	audio   audio.Context
	device  *audio.DeviceInfo
	capture audio.CaptureDevice
	hotkey  hotkey.Hotkey
	metrics *metrics.Metrics
	history *history.Store
	rec     *encoder.Recorder
}

func newApp(d appDeps) *app {
	a := &app{
		hk:      d.hotkey,
		actx:    d.audio,
		capCfg:  captureConfig(d.cfg),
		capture: d.capture,
		history: d.history,
		obs:     newUIObserver(d.cfg.DebugPartials, d.rec),

		restartDelay:  restartDelay,
		watchInterval: audio.WatchInterval,
	}
	if d.device != nil {
		a.preferred = d.device.Name
	}
	a.out = dispatch.New(d.output, dispatch.Options{
		QueueDepth: d.cfg.Output.QueueDepth,
		Separator:  d.cfg.Output.Separator,
		Observer:   d.metrics,
		OnError: func(op reconcile.Op, err error) {
			logToTUI("output %s failed: %v", op.Kind, err)
		},
	})
	a.pipe = pipeline.New(pipeline.Options{
		Decoder: d.decoder,
		Session: decoder.SessionConfig{
			Language:   d.cfg.Decoder.Language,
			SampleRate: d.cfg.Audio.SampleRate,
		},
		Engine:        reconcile.Config{ConfidenceThreshold: d.cfg.Reconcile.ConfidenceThreshold},
		Output:        a.out,
		History:       d.history,
		Metrics:       d.metrics,
		Observer:      a.obs.pipeline(),
		DebugPartials: d.cfg.DebugPartials,
	})
	return a
}

// serve listens until stop is closed. The hotkey pauses and resumes;
// pausing abandons the open utterance, stopping finalizes it.
func (a *app) serve(stop <-chan struct{}) {
	tctx, tcancel := context.WithCancel(context.Background())
	defer tcancel()
	toggles := hotkey.Toggle(tctx, a.hk, true)
	var changes <-chan audio.DeviceChange
	if a.actx != nil {
		changes = audio.Watch(tctx, a.actx, a.preferred, a.watchInterval)
	}

	listening := true
	for {
		a.obs.listening(listening)
		if !listening {
			select {
			case <-stop:
				return
			case listening = <-toggles:
				log.Info("listening_resumed")
			case ch := <-changes:
				a.switchDevice(ch.Device)
			}
			continue
		}

		ctx, cancel := context.WithCancelCause(context.Background())
		done := make(chan error, 1)
		go func() { done <- a.record(ctx, stop) }()

		var (
			err      error
			switched bool
		)
		select {
		case listening = <-toggles:
			log.Info("listening_paused")
			cancel(nil)
			err = <-done
		case ch := <-changes:
			cancel(decoder.ErrDeviceChanged)
			err = <-done
			switched = a.switchDevice(ch.Device)
		case <-a.capture.Lost():
			log.Info("capture_lost: " + a.capture.DeviceName())
			cancel(decoder.ErrDeviceChanged)
			err = <-done
			switched = a.switchDevice(nil)
		case err = <-done:
		}
		cancel(nil)
		if err != nil {
			log.Errorf("recording: %v", err)
			logToTUI("Error: %v", err)
		}

		select {
		case <-stop:
			return
		default:
		}
		if !listening || switched {
			continue
		}
		// the session ended by itself or the device could not be
		// replaced; back off before reconnecting
		select {
		case <-stop:
			return
		case listening = <-toggles:
		case <-time.After(a.restartDelay):
		}
	}
}

// switchDevice replaces the capture with one on dev, nil for the system
// default. On failure the old capture stays.
func (a *app) switchDevice(dev *audio.DeviceInfo) bool {
	if a.actx == nil {
		return false
	}
	next, err := a.actx.NewCapture(dev, a.capCfg)
	if err != nil {
		log.Errorf("switching capture device: %v", err)
		logToTUI("Error: switching capture device: %v", err)
		return false
	}
	a.capture.Close()
	a.capture = next
	log.Info("device_switched: " + next.DeviceName())
	a.obs.device(dev)
	return true
}

func captureConfig(cfg config.Config) audio.CaptureConfig {
	return audio.CaptureConfig{
		SampleRate: uint32(cfg.Audio.SampleRate),
		Channels:   encoder.Channels,
		Gain:       cfg.Audio.Gain,
	}
}

func (a *app) record(ctx context.Context, stop <-chan struct{}) error {
	res, err := a.pipe.Run(ctx, a.capture, stop)
	a.committed += len(res.Committed)
	a.abandoned += res.Abandoned
	if res.Stats.Backend != "" {
		tuiSend(SessionStatsMsg{Lines: res.Stats.Lines()})
	}
	if err != nil && res.Stats.Backend != "" {
		return fmt.Errorf("%s session: %w", res.Stats.Backend, err)
	}
	return err
}

// close drains the output queue and releases the capture and journal.
func (a *app) close() {
	a.out.Close()
	a.capture.Close()
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Warnf("history close: %v", err)
		}
	}
	log.SessionEnd(a.committed, a.abandoned)
}
