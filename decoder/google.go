package decoder

import (
	"context"
	"fmt"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
)

// Google streams to Cloud Speech-to-Text. Credentials come from the given
// file or GOOGLE_APPLICATION_CREDENTIALS.
type Google struct {
	credentials string
	attempts    int
}

func NewGoogle(credentials string, attempts int) *Google {
	return &Google{credentials: credentials, attempts: attempts}
}

func (g *Google) Name() string { return "google" }

func (g *Google) NewSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	return newStreamSession(ctx, g.Name(), func(ctx context.Context) (rawStream, error) {
		return dialWithRetry(ctx, g.attempts, func(ctx context.Context) (rawStream, error) {
			return g.startStream(ctx, cfg)
		})
	}), nil
}

type googleStream struct {
	client  *speech.Client
	stream  speechpb.Speech_StreamingRecognizeClient
	cancel  context.CancelFunc
	pending []streamResult
	once    sync.Once
}

func (g *Google) startStream(ctx context.Context, cfg SessionConfig) (rawStream, error) {
	var opts []option.ClientOption
	if g.credentials != "" {
		opts = append(opts, option.WithCredentialsFile(g.credentials))
	}
	streamCtx, cancel := context.WithCancel(ctx)
	client, err := speech.NewClient(streamCtx, opts...)
	if err != nil {
		cancel()
		return nil, err
	}

	stream, err := client.StreamingRecognize(streamCtx)
	if err != nil {
		client.Close()
		cancel()
		return nil, err
	}

	// Send streaming config as the first message
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz: int32(cfg.SampleRate),
					LanguageCode:    googleLanguage(cfg.Language),
				},
				InterimResults: true,
			},
		},
	})
	if err != nil {
		client.Close()
		cancel()
		return nil, err
	}

	return &googleStream{client: client, stream: stream, cancel: cancel}, nil
}

// googleLanguage expands a bare language to the BCP-47 tag Google expects.
func googleLanguage(lang string) string {
	switch {
	case lang == "":
		return "en-US"
	case lang == "en":
		return "en-US"
	case !strings.Contains(lang, "-"):
		return lang + "-" + strings.ToUpper(lang)
	}
	return lang
}

func (s *googleStream) Send(pcm []byte) error {
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: pcm,
		},
	})
}

func (s *googleStream) CloseSend() error {
	return s.stream.CloseSend()
}

func (s *googleStream) Recv() (streamResult, error) {
	for len(s.pending) == 0 {
		resp, err := s.stream.Recv()
		if err != nil {
			return streamResult{}, err
		}
		if st := resp.GetError(); st != nil {
			return streamResult{}, fmt.Errorf("google: %s", st.GetMessage())
		}
		s.pending = googleResults(resp)
	}
	res := s.pending[0]
	s.pending = s.pending[1:]
	return res, nil
}

// googleResults flattens one response. Google reports the stable prefix
// and the volatile tail of an interim hypothesis as separate results, so
// interim results are joined into one partial.
func googleResults(resp *speechpb.StreamingRecognizeResponse) []streamResult {
	var out []streamResult
	var interim []string
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		if !r.GetIsFinal() {
			interim = append(interim, strings.TrimSpace(alt.GetTranscript()))
			continue
		}
		out = append(out, streamResult{
			Transcript: strings.TrimSpace(alt.GetTranscript()),
			Final:      true,
			Confidence: float64(alt.GetConfidence()),
			// 0 means the service did not score this result
			Scored: alt.GetConfidence() > 0,
		})
	}
	if len(interim) > 0 {
		out = append(out, streamResult{Transcript: strings.Join(interim, " ")})
	}
	return out
}

func (s *googleStream) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.client.Close()
	})
	return err
}
