// Package metrics provides Prometheus metrics for the transcription
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"scriba/decoder"
	"scriba/reconcile"
)

const namespace = "scriba"

type Metrics struct {
	Hypotheses *prometheus.CounterVec
	Resets     *prometheus.CounterVec

	Utterances         *prometheus.CounterVec
	UtteranceRevisions prometheus.Histogram
	UtteranceDuration  prometheus.Histogram

	Ops              *prometheus.CounterVec
	DispatchFailures *prometheus.CounterVec
	DispatchLatency  prometheus.Histogram
	QueueLength      prometheus.Gauge

	DecoderSessions *prometheus.CounterVec
	DecoderConnect  prometheus.Histogram
	AudioBytes      prometheus.Counter
}

// New registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Hypotheses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hypotheses_total",
			Help:      "Decoder events seen by the reconciliation engine",
		}, []string{"type"}),
		Resets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoder_resets_total",
			Help:      "Utterances the decoder abandoned, by reason",
		}, []string{"reason"}),

		Utterances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Utterances by outcome",
		}, []string{"outcome", "reason"}),
		UtteranceRevisions: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_revisions",
			Help:      "Hypotheses per utterance",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),
		UtteranceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_duration_seconds",
			Help:      "Time from first hypothesis to commit or abandon",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		Ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_total",
			Help:      "Output operations applied",
		}, []string{"kind"}),
		DispatchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Output operations the key injection backend rejected",
		}, []string{"kind"}),
		DispatchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_seconds",
			Help:      "Time spent in the key injection backend per operation",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		QueueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_length",
			Help:      "Operations waiting for the dispatcher",
		}),

		DecoderSessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoder_sessions_total",
			Help:      "Decoder streaming sessions by backend and result",
		}, []string{"backend", "result"}),
		DecoderConnect: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decoder_connect_seconds",
			Help:      "Time to establish a decoder stream",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		AudioBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "PCM bytes sent to decoders",
		}),
	}
}

func (m *Metrics) Event(ev decoder.Event) {
	if m == nil {
		return
	}
	m.Hypotheses.WithLabelValues(ev.Type.String()).Inc()
	if ev.Type == decoder.EventReset {
		m.Resets.WithLabelValues(ev.Reason).Inc()
	}
}

// Step records a session outcome when step ended one.
func (m *Metrics) Step(step reconcile.Step) {
	if m == nil || !step.Ended() {
		return
	}
	s := step.Session
	m.Utterances.WithLabelValues(s.State.String(), s.Reason).Inc()
	m.UtteranceRevisions.Observe(float64(s.Revisions))
	m.UtteranceDuration.Observe(s.EndedAt.Sub(s.StartedAt).Seconds())
}

func (m *Metrics) Dispatched(op reconcile.Op, took time.Duration, err error) {
	if m == nil {
		return
	}
	kind := op.Kind.String()
	m.Ops.WithLabelValues(kind).Inc()
	m.DispatchLatency.Observe(took.Seconds())
	if err != nil {
		m.DispatchFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueLength.Set(float64(n))
}

func (m *Metrics) DecoderSession(stats decoder.Stats, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DecoderSessions.WithLabelValues(stats.Backend, result).Inc()
	if stats.ConnectDur > 0 {
		m.DecoderConnect.Observe(stats.ConnectDur.Seconds())
	}
	m.AudioBytes.Add(float64(stats.SentBytes))
}
