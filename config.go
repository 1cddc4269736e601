package dnasonify

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/dnasonify-go/internal/sonify"
)

// Config is the full engine configuration. It can be loaded from YAML or
// JSON; unset fields keep their defaults.
type Config struct {
	SampleRate int           `yaml:"sampleRate" json:"sampleRate"`
	TempoBPM   int           `yaml:"tempoBPM" json:"tempoBPM"`
	Method     sonify.Method `yaml:"method" json:"method"`
	// DurationSeconds truncates playback and exports when positive.
	DurationSeconds float64       `yaml:"durationSeconds" json:"durationSeconds"`
	Volume          float64       `yaml:"volume" json:"volume"`
	Policy          sonify.Policy `yaml:"policy" json:"policy"`
	Dynamics        bool          `yaml:"dynamics" json:"dynamics"`
	Key             string        `yaml:"key" json:"key"`
	// LookaheadSeconds is how far ahead of the playhead audio is prefetched.
	LookaheadSeconds float64 `yaml:"lookaheadSeconds" json:"lookaheadSeconds"`
}

const (
	DefaultSampleRate = 44100
	DefaultVolume     = 0.7
	DefaultKey        = "C Major"
	DefaultLookahead  = 2.0
	TimeSignature     = "4/4"
)

func DefaultConfig() Config {
	return Config{
		SampleRate:       DefaultSampleRate,
		TempoBPM:         sonify.DefaultTempo,
		Method:           sonify.FrequencyMapping,
		Volume:           DefaultVolume,
		Policy:           sonify.Discrete,
		Key:              DefaultKey,
		LookaheadSeconds: DefaultLookahead,
	}
}

// ErrConfig is wrapped by every configuration validation failure.
var ErrConfig = errors.New("invalid config")

// Validate checks ranges. Volume outside [0,1] is an error here even though
// SetVolume clamps, so a bad file is reported rather than silently fixed.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sampleRate must be positive, got %d", ErrConfig, c.SampleRate)
	case c.TempoBPM <= 0:
		return fmt.Errorf("%w: tempoBPM must be positive, got %d", ErrConfig, c.TempoBPM)
	case !c.Method.Valid():
		return fmt.Errorf("%w: unknown method %d", ErrConfig, int(c.Method))
	case math.IsNaN(c.DurationSeconds) || c.DurationSeconds < 0:
		return fmt.Errorf("%w: durationSeconds must be >= 0, got %v", ErrConfig, c.DurationSeconds)
	case math.IsNaN(c.Volume) || c.Volume < 0 || c.Volume > 1:
		return fmt.Errorf("%w: volume must be in [0,1], got %v", ErrConfig, c.Volume)
	case c.LookaheadSeconds < 0:
		return fmt.Errorf("%w: lookaheadSeconds must be >= 0, got %v", ErrConfig, c.LookaheadSeconds)
	}
	return nil
}

func (c Config) params() sonify.Params {
	return sonify.Params{TempoBPM: c.TempoBPM, Policy: c.Policy, Dynamics: c.Dynamics}
}

// ParseConfig decodes YAML (or JSON, which YAML accepts) over the defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
