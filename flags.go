package main

import (
	"flag"

	"scriba/config"
)

type cliFlags struct {
	config     *string
	decoder    *string
	model      *string
	lang       *string
	confidence *float64
	noTyping   *bool
	debug      *bool
	mode       *string
	device     *string
	setup      *bool
	logPath    *string
	metrics    *string
	history    *string
	record     *string
	doctor     *bool
	test       *string
	tui        *bool
	version    *bool
	profile    *string
}

func defineFlags(fs *flag.FlagSet) *cliFlags {
	return &cliFlags{
		config:     fs.String("config", "", "YAML config file"),
		decoder:    fs.String("decoder", "", "Decoder backend: auto, deepgram, google, exec or script"),
		model:      fs.String("model", "", "Decoder model (Deepgram model name or local model directory)"),
		lang:       fs.String("lang", "", "Language code for recognition (e.g., en, es, fr)"),
		confidence: fs.Float64("confidence", 0, "Reject final hypotheses scored below this confidence (0-1)"),
		noTyping:   fs.Bool("no-typing", false, "Recognize and log, but do not inject keystrokes"),
		debug:      fs.Bool("debug", false, "Log every hypothesis and op, show live text in the TUI"),
		mode:       fs.String("mode", "", "Output mode: type or paste"),
		device:     fs.String("device", "", "Use named microphone device"),
		setup:      fs.Bool("setup", false, "Select microphone device interactively"),
		logPath:    fs.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)"),
		metrics:    fs.String("metrics", "", "Serve Prometheus metrics on this address (e.g., localhost:9464)"),
		history:    fs.String("history", "", "SQLite file for the utterance history"),
		record:     fs.String("record", "", "Save captured audio to this .wav or .flac file on exit"),
		doctor:     fs.Bool("doctor", false, "Run system diagnostics and exit"),
		test:       fs.String("test", "", "Test mode: replay this audio file, commands on stdin"),
		tui:        fs.Bool("tui", true, "Run with terminal UI"),
		version:    fs.Bool("version", false, "Print version and exit"),
		profile:    fs.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)"),
	}
}

// apply overrides cfg with the flags that were set on the command line.
func (f *cliFlags) apply(fs *flag.FlagSet, cfg *config.Config) error {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "decoder":
			cfg.Decoder.Backend = *f.decoder
		case "model":
			cfg.Decoder.Model = *f.model
		case "lang":
			cfg.Decoder.Language = *f.lang
		case "confidence":
			cfg.Reconcile.ConfidenceThreshold = *f.confidence
		case "no-typing":
			cfg.Output.TypingEnabled = !*f.noTyping
		case "debug":
			cfg.DebugPartials = *f.debug
		case "mode":
			cfg.Output.Mode = *f.mode
		case "device":
			cfg.Audio.Device = *f.device
		case "metrics":
			cfg.Metrics.Bind = *f.metrics
		case "history":
			cfg.History.Path = *f.history
		}
	})
	return cfg.Validate()
}
