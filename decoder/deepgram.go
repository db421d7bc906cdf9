package decoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"nhooyr.io/websocket"
)

const deepgramStreamURL = "wss://api.deepgram.com/v1/listen"

type Deepgram struct {
	apiKey   string
	model    string
	attempts int
	endpoint string
}

func NewDeepgram(apiKey, model string, attempts int) *Deepgram {
	if model == "" {
		model = "nova-3"
	}
	return &Deepgram{apiKey: apiKey, model: model, attempts: attempts, endpoint: deepgramStreamURL}
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) NewSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	return newStreamSession(ctx, d.Name(), func(ctx context.Context) (rawStream, error) {
		return dialWithRetry(ctx, d.attempts, func(ctx context.Context) (rawStream, error) {
			return d.startStream(ctx, cfg)
		})
	}), nil
}

type deepgramStreamResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramStream struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func (d *Deepgram) streamURL(cfg SessionConfig) (string, error) {
	endpoint, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}

	q := endpoint.Query()
	q.Set("model", d.model)
	q.Set("encoding", "linear16")
	q.Set("channels", "1")
	// Raw words in, normalization happens locally.
	q.Set("interim_results", "true")
	q.Set("punctuate", "false")
	q.Set("smart_format", "false")
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", fmt.Sprintf("%d", cfg.SampleRate))
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

func (d *Deepgram) startStream(ctx context.Context, cfg SessionConfig) (rawStream, error) {
	endpoint, err := d.streamURL(cfg)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	streamCtx, cancel := context.WithCancel(ctx)
	conn, resp, err := websocket.Dial(streamCtx, endpoint, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		cancel()
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, backoff.Permanent(fmt.Errorf("deepgram rejected credentials: %w", err))
		}
		return nil, err
	}

	return &deepgramStream{conn: conn, ctx: streamCtx, cancel: cancel}, nil
}

func (s *deepgramStream) Send(pcm []byte) error {
	return s.conn.Write(s.ctx, websocket.MessageBinary, pcm)
}

func (s *deepgramStream) CloseSend() error {
	msg := []byte(`{"type":"Finalize"}`)
	return s.conn.Write(s.ctx, websocket.MessageText, msg)
}

func (s *deepgramStream) Recv() (streamResult, error) {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return streamResult{}, errors.Join(err, io.EOF)
			}
			return streamResult{}, err
		}
		res, ok, err := parseDeepgram(data)
		if err != nil {
			return streamResult{}, err
		}
		if ok {
			return res, nil
		}
	}
}

// parseDeepgram maps one server message. Metadata and speech-start
// messages report ok=false.
func parseDeepgram(data []byte) (streamResult, bool, error) {
	var resp deepgramStreamResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return streamResult{}, false, fmt.Errorf("deepgram response parse error: %w", err)
	}
	if resp.Type != "" && resp.Type != "Results" {
		return streamResult{}, false, nil
	}

	res := streamResult{
		Final:     resp.IsFinal || resp.SpeechFinal || resp.FromFinalize,
		Finalized: resp.FromFinalize,
	}
	if len(resp.Channel.Alternatives) > 0 {
		alt := resp.Channel.Alternatives[0]
		res.Transcript = strings.TrimSpace(alt.Transcript)
		if res.Final {
			res.Confidence = alt.Confidence
			res.Scored = true
		}
	}
	return res, true, nil
}

func (s *deepgramStream) Close() error {
	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
