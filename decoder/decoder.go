// Package decoder adapts streaming speech recognizers into an ordered
// stream of Partial, Final and Reset events for one utterance at a time.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"os"

	"scriba/config"
)

var ErrUnknownBackend = errors.New("unknown decoder backend")

type SessionConfig struct {
	Language   string
	SampleRate int
}

// Session is one recognition run. Events must be drained until the channel
// is closed; Close may be called from another goroutine while draining.
type Session interface {
	Feed(pcm []byte)
	Events() <-chan Event
	Close() (Stats, error)
}

type Decoder interface {
	Name() string
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// New builds the backend selected by cfg. With backend "auto" the first
// usable one wins: Deepgram with an API key, Google with credentials, then
// a local model for the exec backend.
func New(cfg config.DecoderConfig) (Decoder, error) {
	switch cfg.Backend {
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			return nil, errors.New("deepgram: set DEEPGRAM_API_KEY")
		}
		return NewDeepgram(cfg.DeepgramAPIKey, cfg.Model, cfg.DialAttempts), nil
	case "google":
		return NewGoogle(cfg.GoogleCredentials, cfg.DialAttempts), nil
	case "exec":
		model := cfg.Model
		if model == "" {
			found, err := FindModel(cfg.ModelsDir)
			if err != nil {
				return nil, err
			}
			model = found
		}
		return NewExec(cfg.Command, model)
	case "script":
		return LoadScript(cfg.Script)
	case "auto", "":
		if cfg.DeepgramAPIKey != "" {
			return NewDeepgram(cfg.DeepgramAPIKey, cfg.Model, cfg.DialAttempts), nil
		}
		if cfg.GoogleCredentials != "" || os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
			return NewGoogle(cfg.GoogleCredentials, cfg.DialAttempts), nil
		}
		if model, err := FindModel(cfg.ModelsDir); err == nil {
			return NewExec(cfg.Command, model)
		}
		return nil, fmt.Errorf("no decoder available: set DEEPGRAM_API_KEY, GOOGLE_APPLICATION_CREDENTIALS or install a model under %s", cfg.ModelsDir)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}
