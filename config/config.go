package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SCRIBA_OUTPUT_MODE.
const EnvPrefix = "SCRIBA"

type DecoderConfig struct {
	// Backend is one of auto, deepgram, google, exec or script.
	Backend   string `yaml:"backend"`
	Language  string `yaml:"language"`
	Model     string `yaml:"model" split_words:"true"`
	ModelsDir string `yaml:"models_dir" split_words:"true"`
	// Command starts a local recognizer speaking the Vosk JSON protocol.
	// {model} and {rate} are substituted.
	Command      string `yaml:"command"`
	Script       string `yaml:"script"`
	DialAttempts int    `yaml:"dial_attempts" split_words:"true"`

	DeepgramAPIKey    string `yaml:"-" envconfig:"DEEPGRAM_API_KEY"`
	GoogleCredentials string `yaml:"google_credentials" envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate" split_words:"true"`
	Device     string `yaml:"device"`
	// Gain multiplies captured samples; laptop microphones are quiet.
	Gain int `yaml:"gain"`
}

type ReconcileConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" split_words:"true"`
}

type OutputConfig struct {
	TypingEnabled bool   `yaml:"typing_enabled" split_words:"true"`
	Mode          string `yaml:"mode"` // type or paste
	Separator     string `yaml:"separator"`
	QueueDepth    int    `yaml:"queue_depth" split_words:"true"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days" split_words:"true"`
	MaxUtterances int    `yaml:"max_utterances" split_words:"true"`
}

type MetricsConfig struct {
	Bind string `yaml:"bind"`
}

type Config struct {
	Decoder       DecoderConfig   `yaml:"decoder"`
	Audio         AudioConfig     `yaml:"audio"`
	Reconcile     ReconcileConfig `yaml:"reconcile"`
	Output        OutputConfig    `yaml:"output"`
	DebugPartials bool            `yaml:"debug_partials" split_words:"true"`
	History       HistoryConfig   `yaml:"history"`
	Metrics       MetricsConfig   `yaml:"metrics"`
}

func Default() Config {
	return Config{
		Decoder: DecoderConfig{
			Backend:      "auto",
			Language:     "en",
			ModelsDir:    defaultModelsDir(),
			Command:      "vosk-stream --model {model} --rate {rate}",
			DialAttempts: 3,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Gain:       8,
		},
		Reconcile: ReconcileConfig{
			ConfidenceThreshold: 0.7,
		},
		Output: OutputConfig{
			TypingEnabled: true,
			Mode:          "type",
			Separator:     " ",
			QueueDepth:    64,
		},
		History: HistoryConfig{
			RetentionDays: 30,
			MaxUtterances: 10000,
		},
	}
}

func defaultModelsDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "scriba", "models")
}

// Load layers an optional YAML file, a .env file in the working directory
// and SCRIBA_* environment variables over Default, then validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	_ = godotenv.Load()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Decoder.Backend {
	case "auto", "deepgram", "google", "exec", "script":
	default:
		return fmt.Errorf("decoder.backend %q must be one of auto|deepgram|google|exec|script", c.Decoder.Backend)
	}
	if c.Decoder.Backend == "exec" && c.Decoder.Command == "" {
		return errors.New("decoder.command must be set when backend=exec")
	}
	if c.Decoder.Backend == "script" && c.Decoder.Script == "" {
		return errors.New("decoder.script must be set when backend=script")
	}
	if c.Decoder.DialAttempts <= 0 {
		return errors.New("decoder.dial_attempts must be >= 1")
	}
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if c.Audio.Gain < 0 {
		return errors.New("audio.gain must be >= 0")
	}
	if t := c.Reconcile.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("reconcile.confidence_threshold %v must be within [0,1]", t)
	}
	switch c.Output.Mode {
	case "type", "paste":
	default:
		return fmt.Errorf("output.mode %q must be one of type|paste", c.Output.Mode)
	}
	if c.Output.QueueDepth <= 0 {
		return errors.New("output.queue_depth must be >= 1")
	}
	if c.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if c.History.MaxUtterances < 0 {
		return errors.New("history.max_utterances must be >= 0")
	}
	return nil
}
