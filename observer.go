package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"scriba/audio"
	"scriba/encoder"
	"scriba/log"
	"scriba/pipeline"
	"scriba/reconcile"
)

// uiObserver forwards pipeline progress to the TUI and the -record
// recorder.
type uiObserver struct {
	send    func(tea.Msg)
	debug   bool
	silence *silenceMonitor
	rec     *encoder.Recorder
	now     func() time.Time

	ops OpsMsg
}

func newUIObserver(debug bool, rec *encoder.Recorder) *uiObserver {
	return &uiObserver{
		send:    tuiSend,
		debug:   debug,
		silence: newSilenceMonitor(),
		rec:     rec,
		now:     time.Now,
	}
}

func (o *uiObserver) pipeline() pipeline.Observer {
	obs := pipeline.Observer{
		Step:  o.step,
		Level: o.level,
	}
	if o.rec != nil {
		obs.Audio = func(pcm []byte) { o.rec.Write(pcm) }
	}
	return obs
}

// listening must only be called while no recording runs.
func (o *uiObserver) listening(on bool) {
	o.silence.Reset()
	o.send(ListeningMsg{On: on})
}

func (o *uiObserver) device(dev *audio.DeviceInfo) {
	o.send(DeviceLineMsg{Text: deviceLineText(dev)})
}

func (o *uiObserver) level(rms float64) {
	o.send(AudioLevelMsg{Level: rms})
	switch o.silence.Observe(rms, o.now()) {
	case SilenceWarn:
		log.Warn("no_voice_detected")
		o.send(NoVoiceMsg{On: true})
	case SilenceWarnClear:
		o.send(NoVoiceMsg{On: false})
	}
}

func (o *uiObserver) step(s reconcile.Step) {
	for _, op := range s.Ops {
		switch op.Kind {
		case reconcile.OpAppend:
			o.ops.Appends++
		case reconcile.OpDeleteBack:
			o.ops.Deletes++
		case reconcile.OpCommit:
			o.ops.Commits++
		}
	}
	if len(s.Ops) > 0 {
		o.send(o.ops)
	}

	if o.debug && s.To == reconcile.Active {
		o.send(LiveTextMsg{Text: s.Session.Emitted.Text})
	}
	if s.Ended() {
		o.send(UtteranceMsg{
			Text:       s.Session.Text(),
			Outcome:    s.Session.State.String(),
			Reason:     s.Session.Reason,
			Confidence: s.Session.Last.Confidence,
			Scored:     s.Session.Last.Scored,
		})
	}
}
