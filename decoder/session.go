package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"scriba/encoder"
	"scriba/log"
)

const (
	streamChunkMs      = 250
	streamChunkBytes   = encoder.SampleRate * encoder.Channels * (encoder.BitsPerSample / 8) * streamChunkMs / 1000
	streamFinalizeIdle = 200 * time.Millisecond
	streamFinalizeMax  = 1000 * time.Millisecond
	streamDrainTimeout = 2 * time.Second
)

// rawStream is the wire side of one backend session.
type rawStream interface {
	Send(pcm []byte) error
	// CloseSend tells the backend no more audio follows.
	CloseSend() error
	// Recv returns io.EOF once the backend has delivered everything.
	Recv() (streamResult, error)
	Close() error
}

type streamResult struct {
	Transcript string
	Final      bool
	Confidence float64
	Scored     bool
	// Finalized acknowledges CloseSend.
	Finalized bool
}

type Stats struct {
	Backend      string
	ConnectDur   time.Duration
	SentChunks   int
	SentBytes    uint64
	RecvMessages int
	Partials     int
	Finals       int
	Resets       int
	FinalizeWait time.Duration
	SessionDur   time.Duration
}

func (s Stats) AudioSeconds() float64 {
	return float64(s.SentBytes) / float64(encoder.SampleRate*encoder.Channels*(encoder.BitsPerSample/8))
}

// Lines formats the stats for the TUI.
func (s Stats) Lines() []string {
	return []string{
		fmt.Sprintf("audio:      %.1fs | %.1f KB PCM sent", s.AudioSeconds(), float64(s.SentBytes)/1024),
		fmt.Sprintf("stream:     %s | PCM16 %dHz mono | %dms chunks", s.Backend, encoder.SampleRate, streamChunkMs),
		fmt.Sprintf("connect:    %dms", s.ConnectDur.Milliseconds()),
		fmt.Sprintf("recv:       %d msgs (%d partial, %d final, %d reset)", s.RecvMessages, s.Partials, s.Finals, s.Resets),
		fmt.Sprintf("finalize:   %dms", s.FinalizeWait.Milliseconds()),
		fmt.Sprintf("total:      %dms", s.SessionDur.Milliseconds()),
	}
}

// utterance numbers hypotheses and decides which backend results become
// events. It is owned by the receiver goroutine.
type utterance struct {
	open     bool
	revision int
	last     []string
}

func (u *utterance) partial(tokens []string) (Event, bool) {
	if len(tokens) == 0 {
		return Event{}, false
	}
	if u.open && slices.Equal(tokens, u.last) {
		return Event{}, false
	}
	u.open = true
	u.revision++
	u.last = tokens
	return PartialEvent(Hypothesis{Tokens: tokens, Revision: u.revision}), true
}

func (u *utterance) final(tokens []string, confidence float64, scored bool) (Event, bool) {
	if !u.open && len(tokens) == 0 {
		return Event{}, false
	}
	u.revision++
	ev := FinalEvent(Hypothesis{
		Tokens:     tokens,
		Confidence: confidence,
		Scored:     scored,
		Revision:   u.revision,
	})
	u.clear()
	return ev, true
}

func (u *utterance) abandon(reason string) (Event, bool) {
	if !u.open {
		return Event{}, false
	}
	u.clear()
	return ResetEvent(reason), true
}

func (u *utterance) clear() {
	u.open = false
	u.revision = 0
	u.last = nil
}

type streamSession struct {
	ctx       context.Context
	stream    rawStream
	audioCh   chan []byte
	events    chan Event
	startedAt time.Time
	connected chan struct{} // closed when the stream is ready (or failed)

	sendDone      chan struct{}
	recvDone      chan struct{}
	finalized     chan struct{}
	finalizedOnce sync.Once

	feedMu     sync.Mutex
	feedBuf    []byte
	feedClosed bool

	closeOnce  sync.Once
	closeStats Stats
	closeErr   error

	mu      sync.Mutex
	err     error
	errOnce sync.Once
	closing bool
	stats   Stats

	utt utterance
}

func newStreamSession(ctx context.Context, backend string, dial func(context.Context) (rawStream, error)) *streamSession {
	ss := &streamSession{
		ctx:       ctx,
		audioCh:   make(chan []byte, 128),
		events:    make(chan Event, 32),
		startedAt: time.Now(),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
		finalized: make(chan struct{}),
		connected: make(chan struct{}),
		stats:     Stats{Backend: backend},
	}

	go func() {
		connectStart := time.Now()
		stream, err := dial(ctx)
		ss.mu.Lock()
		ss.stats.ConnectDur = time.Since(connectStart)
		ss.mu.Unlock()

		if err != nil {
			ss.setErr(fmt.Errorf("%s connect: %w", backend, err))
			close(ss.sendDone)
			close(ss.events)
			close(ss.recvDone)
			close(ss.connected)
			return
		}

		ss.stream = stream
		close(ss.connected)
		go ss.runSender()
		go ss.runReceiver()
	}()

	return ss
}

// dialWithRetry retries transient dial failures with exponential backoff.
// Wrap errors with backoff.Permanent to stop early.
func dialWithRetry(ctx context.Context, attempts int, dial func(context.Context) (rawStream, error)) (rawStream, error) {
	if attempts < 1 {
		attempts = 1
	}
	return backoff.Retry(ctx, func() (rawStream, error) {
		return dial(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warnf("decoder dial failed, retrying in %s: %v", wait.Round(time.Millisecond), err)
		}),
	)
}

func (s *streamSession) Feed(pcm []byte) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	if s.feedClosed {
		return
	}

	s.feedBuf = append(s.feedBuf, pcm...)
	for len(s.feedBuf) >= streamChunkBytes {
		chunk := make([]byte, streamChunkBytes)
		copy(chunk, s.feedBuf[:streamChunkBytes])
		s.feedBuf = s.feedBuf[streamChunkBytes:]
		select {
		case s.audioCh <- chunk:
		case <-s.sendDone:
			s.feedBuf = nil
			return
		}
	}
}

func (s *streamSession) Events() <-chan Event {
	return s.events
}

func (s *streamSession) Close() (Stats, error) {
	s.closeOnce.Do(func() {
		s.closeStats, s.closeErr = s.close()
	})
	return s.closeStats, s.closeErr
}

func (s *streamSession) close() (Stats, error) {
	<-s.connected

	// A canceled session is abandoned, not finalized.
	abort := s.ctx.Err() != nil || s.failed()

	s.feedMu.Lock()
	s.feedClosed = true
	if !abort && len(s.feedBuf) > 0 {
		select {
		case s.audioCh <- s.feedBuf:
		case <-s.sendDone:
		}
	}
	s.feedBuf = nil
	close(s.audioCh)
	s.feedMu.Unlock()

	finalizeStart := time.Now()
	<-s.sendDone

	if s.stream != nil {
		if !abort && !s.failed() {
			// Wait for the finalize acknowledgment, then a brief quiet period
			select {
			case <-s.finalized:
				time.Sleep(streamFinalizeIdle)
			case <-s.recvDone:
			case <-time.After(streamFinalizeMax):
			}
		}

		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		s.stream.Close()
		select {
		case <-s.recvDone:
		case <-time.After(streamDrainTimeout):
			log.Warn("decoder receiver drain timeout")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.FinalizeWait = time.Since(finalizeStart)
	stats.SessionDur = time.Since(s.startedAt)
	return stats, s.err
}

func (s *streamSession) runSender() {
	defer close(s.sendDone)
	for chunk := range s.audioCh {
		if s.failed() {
			continue
		}
		if err := s.stream.Send(chunk); err != nil {
			s.setErr(fmt.Errorf("%s send: %w", s.stats.Backend, err))
			continue
		}
		s.mu.Lock()
		s.stats.SentChunks++
		s.stats.SentBytes += uint64(len(chunk))
		s.mu.Unlock()
	}
	if s.ctx.Err() != nil || s.failed() {
		return
	}
	if err := s.stream.CloseSend(); err != nil {
		s.setErr(fmt.Errorf("%s finalize: %w", s.stats.Backend, err))
	}
}

func (s *streamSession) runReceiver() {
	defer close(s.recvDone)
	defer close(s.events)
	for {
		res, err := s.stream.Recv()
		if err != nil {
			s.endReceive(err)
			return
		}

		if res.Finalized {
			s.finalizedOnce.Do(func() { close(s.finalized) })
		}

		s.mu.Lock()
		s.stats.RecvMessages++
		s.mu.Unlock()

		tokens := Tokenize(res.Transcript)
		var (
			ev Event
			ok bool
		)
		if res.Final {
			ev, ok = s.utt.final(tokens, res.Confidence, res.Scored)
		} else {
			ev, ok = s.utt.partial(tokens)
		}
		if ok {
			s.emit(ev)
		}
	}
}

// endReceive abandons an open utterance when the stream ends.
func (s *streamSession) endReceive(err error) {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()

	reason := ReasonClosed
	switch {
	case s.ctx.Err() != nil:
		reason = ReasonCanceled
		if errors.Is(context.Cause(s.ctx), ErrDeviceChanged) {
			reason = ReasonDeviceChanged
		}
	case closing || errors.Is(err, io.EOF):
	default:
		reason = ReasonError
		s.setErr(fmt.Errorf("%s recv: %w", s.stats.Backend, err))
	}
	if ev, ok := s.utt.abandon(reason); ok {
		s.emit(ev)
	}
}

func (s *streamSession) emit(ev Event) {
	s.mu.Lock()
	switch ev.Type {
	case EventPartial:
		s.stats.Partials++
	case EventFinal:
		s.stats.Finals++
	case EventReset:
		s.stats.Resets++
	}
	s.mu.Unlock()
	s.events <- ev
}

func (s *streamSession) failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err != nil
}

// setErr records the first failure. Failures after cancellation are the
// cancellation itself and are not reported.
func (s *streamSession) setErr(err error) {
	if err == nil || s.ctx.Err() != nil {
		return
	}
	s.errOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		if s.stream != nil {
			s.stream.Close()
		}
	})
}
