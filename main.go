package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"scriba/audio"
	"scriba/config"
	"scriba/decoder"
	"scriba/dispatch"
	"scriba/doctor"
	"scriba/encoder"
	"scriba/history"
	"scriba/hotkey"
	"scriba/keyboard"
	"scriba/log"
	"scriba/metrics"
	"scriba/shutdown"
)

var version = "dev"

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func decoderLineText(dec decoder.Decoder, cfg config.Config) string {
	out := "typing"
	switch {
	case !cfg.Output.TypingEnabled:
		out = "no typing"
	case cfg.Output.Mode == "paste":
		out = "paste"
	}
	return fmt.Sprintf("[%s (%s) | confidence >= %.2f | %s]",
		dec.Name(), cfg.Decoder.Language, cfg.Reconcile.ConfidenceThreshold, out)
}

func fatalf(format string, args ...any) {
	log.Errorf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	log.Close()
	os.Exit(1)
}

func run() {
	flags := defineFlags(flag.CommandLine)
	flag.Parse()

	if *flags.version {
		fmt.Printf("scriba %s\n", version)
		os.Exit(0)
	}

	logPath, err := log.ResolveDir(*flags.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	log.InitCrashLog()

	if *flags.profile != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *flags.profile)
			if err := http.ListenAndServe(*flags.profile, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	cfg, err := config.Load(*flags.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := flags.apply(flag.CommandLine, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *flags.doctor {
		os.Exit(doctor.Run(cfg))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	dec, err := decoder.New(cfg.Decoder)
	if err != nil {
		fatalf("%v", err)
	}

	if *flags.test != "" {
		log.SessionStart(dec.Name(), "fake", cfg.Reconcile.ConfidenceThreshold)
		code := runTestMode(cfg, dec, *flags.test, os.Stdin, os.Stdout)
		log.Close()
		os.Exit(code)
	}

	var output dispatch.Backend = keyboard.Discard{}
	if cfg.Output.TypingEnabled {
		output, err = keyboard.New(cfg.Output.Mode)
		if err != nil {
			fmt.Printf("Warning: key injection unavailable: %v\n", err)
			fmt.Println("Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
			log.Warnf("key injection init: %v", err)
			output = keyboard.Discard{}
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	var metricsServer *metrics.Server
	if cfg.Metrics.Bind != "" {
		metricsServer = metrics.NewServer(cfg.Metrics.Bind, reg)
		metricsServer.Start()
	}

	hist, err := history.Open(context.Background(), cfg.History)
	if err != nil {
		log.Warnf("history disabled: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: history disabled: %v\n", err)
		hist = nil
	}

	actx, err := audio.NewContext()
	if err != nil {
		fatalf("initializing audio context: %v", err)
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	if *flags.setup && cfg.Audio.Device == "" {
		device, err = audio.SelectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\nFalling back to default device\n", err)
			device = nil
		}
	} else if device, err = audio.FindDevice(actx, cfg.Audio.Device); err != nil {
		fatalf("%v", err)
	}

	capture, err := actx.NewCapture(device, captureConfig(cfg))
	if err != nil {
		fatalf("initializing capture device: %v", err)
	}
	log.SessionStart(dec.Name(), capture.DeviceName(), cfg.Reconcile.ConfidenceThreshold)

	var rec *encoder.Recorder
	if *flags.record != "" {
		rec = &encoder.Recorder{}
	}

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		// listening still works, it just cannot be paused
		log.Warnf("hotkey register: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: hotkey unavailable: %v\n", err)
		hk = hotkey.NewFake()
	}
	defer hk.Unregister()

	a := newApp(appDeps{
		cfg:     cfg,
		decoder: dec,
		output:  output,
		audio:   actx,
		device:  device,
		capture: capture,
		hotkey:  hk,
		metrics: m,
		history: hist,
		rec:     rec,
	})

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	if *flags.tui {
		tuiMu.Lock()
		tuiProgram = NewTUIProgram(cfg.DebugPartials)
		tuiMu.Unlock()
		go func() {
			if _, err := tuiProgram.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
			stop()
		}()
		<-tuiReady
		tuiSend(DecoderLineMsg{Text: decoderLineText(dec, cfg)})
		tuiSend(DeviceLineMsg{Text: deviceLineText(device)})
	} else {
		fmt.Printf("scriba %s listening on %s (%s to pause, Ctrl+C to quit)\n",
			version, capture.DeviceName(), hotkey.Combo)
	}

	a.serve(ctx.Done())
	a.close()

	if rec != nil {
		if err := rec.Save(*flags.record); err != nil {
			log.Errorf("saving recording: %v", err)
			fmt.Fprintf(os.Stderr, "Error saving recording: %v\n", err)
		} else {
			log.Infof("recording saved: %s (%d frames)", *flags.record, rec.TotalFrames())
		}
	}
	if metricsServer != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		metricsServer.Shutdown(sctx)
		cancel()
	}
	if p := tuiProgram; p != nil {
		p.Quit()
	}
}
