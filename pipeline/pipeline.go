// Package pipeline runs one recording through the decoder, the
// reconciliation engine and the output dispatcher.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"scriba/audio"
	"scriba/decoder"
	"scriba/dispatch"
	"scriba/history"
	"scriba/log"
	"scriba/metrics"
	"scriba/reconcile"
)

const flushTimeout = 5 * time.Second

// Capture is the part of audio.CaptureDevice a recording needs.
type Capture interface {
	Start() error
	Stop()
	SetCallback(cb audio.DataCallback)
	ClearCallback()
}

// Observer callbacks run on the pipeline goroutine, except Audio and
// Level which run on the capture callback.
type Observer struct {
	Event func(decoder.Event)
	Step  func(reconcile.Step)
	Level func(rms float64)
	Audio func(pcm []byte)
}

type Options struct {
	Decoder decoder.Decoder
	Session decoder.SessionConfig
	Engine  reconcile.Config
	Output  *dispatch.Dispatcher
	History *history.Store
	Metrics *metrics.Metrics

	Observer      Observer
	DebugPartials bool
}

type Result struct {
	Stats     decoder.Stats
	Frames    uint64
	Committed []string
	Abandoned int
}

// Pipeline keeps one engine across recordings. Run must not be called
// concurrently.
type Pipeline struct {
	opts   Options
	engine *reconcile.Engine
}

func New(opts Options) *Pipeline {
	if opts.Engine.NewID == nil {
		opts.Engine.NewID = uuid.NewString
	}
	return &Pipeline{opts: opts, engine: reconcile.New(opts.Engine)}
}

func (p *Pipeline) Engine() *reconcile.Engine { return p.engine }

type closeResult struct {
	stats decoder.Stats
	err   error
}

// Run records from capture until stop fires, then finalizes the open
// utterance. Canceling ctx abandons it instead. Run returns when the
// decoder stream has ended and every op has been applied.
func (p *Pipeline) Run(ctx context.Context, capture Capture, stop <-chan struct{}) (Result, error) {
	sess, err := p.opts.Decoder.NewSession(ctx, p.opts.Session)
	if err != nil {
		return Result{}, fmt.Errorf("decoder session: %w", err)
	}

	var frames atomic.Uint64
	obs := p.opts.Observer
	capture.SetCallback(func(data []byte, frameCount uint32) {
		frames.Add(uint64(frameCount))
		if len(data) == 0 {
			return
		}
		pcm := make([]byte, len(data))
		copy(pcm, data)
		sess.Feed(pcm)
		if obs.Audio != nil {
			obs.Audio(pcm)
		}
		if obs.Level != nil {
			obs.Level(audio.Level(pcm))
		}
	})
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		go func() {
			for range sess.Events() {
			}
		}()
		sess.Close()
		return Result{}, fmt.Errorf("capture start: %w", err)
	}

	ended := make(chan struct{})
	closed := make(chan closeResult, 1)
	go func() {
		select {
		case <-stop:
		case <-ctx.Done():
		case <-ended:
		}
		capture.Stop()
		capture.ClearCallback()
		stats, err := sess.Close()
		closed <- closeResult{stats, err}
	}()

	// Ops of an event are applied in full even after cancellation so the
	// screen never holds half a revision.
	octx := context.WithoutCancel(ctx)
	var res Result
	for ev := range sess.Events() {
		p.handle(octx, ev, &res)
	}
	close(ended)
	cr := <-closed

	if s, ok := p.engine.Session(); ok && s.State == reconcile.Active {
		p.handle(octx, decoder.ResetEvent(decoder.ReasonClosed), &res)
	}

	fctx, cancel := context.WithTimeout(octx, flushTimeout)
	defer cancel()
	if err := p.opts.Output.Flush(fctx); err != nil {
		log.Warnf("output flush: %v", err)
	}

	res.Stats = cr.stats
	res.Frames = frames.Load()
	p.opts.Metrics.DecoderSession(cr.stats, cr.err)
	log.DecoderStats(log.DecoderStatsData{
		Backend:    cr.stats.Backend,
		ConnectMs:  float64(cr.stats.ConnectDur.Microseconds()) / 1000,
		FinalizeMs: float64(cr.stats.FinalizeWait.Microseconds()) / 1000,
		TotalMs:    float64(cr.stats.SessionDur.Microseconds()) / 1000,
		AudioS:     cr.stats.AudioSeconds(),
		SentChunks: cr.stats.SentChunks,
		SentKB:     float64(cr.stats.SentBytes) / 1024,
		Partials:   cr.stats.Partials,
		Finals:     cr.stats.Finals,
		Resets:     cr.stats.Resets,
	})
	return res, cr.err
}

func (p *Pipeline) handle(ctx context.Context, ev decoder.Event, res *Result) {
	p.opts.Metrics.Event(ev)
	if p.opts.DebugPartials && ev.Type != decoder.EventReset {
		log.Hypothesis(ev.Type.String(), ev.Hypothesis.Revision, ev.Hypothesis.Tokens)
	}
	if p.opts.Observer.Event != nil {
		p.opts.Observer.Event(ev)
	}

	step := p.engine.Handle(ev)
	for _, op := range step.Ops {
		if p.opts.DebugPartials {
			log.Operation(op.String())
		}
		if err := p.opts.Output.Apply(ctx, op); err != nil {
			log.Errorf("output %s: %v", op, err)
		}
	}

	p.opts.Metrics.Step(step)
	if p.opts.Observer.Step != nil {
		p.opts.Observer.Step(step)
	}
	if step.Ended() {
		p.finish(ctx, step.Session, res)
	}
}

func (p *Pipeline) finish(ctx context.Context, s reconcile.Session, res *Result) {
	switch s.State {
	case reconcile.Committed:
		res.Committed = append(res.Committed, s.Text())
	case reconcile.Abandoned:
		res.Abandoned++
	}
	log.Utterance(log.UtteranceRecord{
		ID:         s.ID,
		Outcome:    s.State.String(),
		Reason:     s.Reason,
		Text:       s.Text(),
		Confidence: s.Last.Confidence,
		Scored:     s.Last.Scored,
		Revisions:  s.Revisions,
		Duration:   s.EndedAt.Sub(s.StartedAt),
	})
	if p.opts.History != nil {
		if err := p.opts.History.Record(ctx, s); err != nil {
			log.Warnf("history record: %v", err)
		}
	}
}
