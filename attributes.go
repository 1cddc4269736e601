package dnasonify

import "github.com/cbegin/dnasonify-go/internal/sequence"

// Complexity is a coarse band of sequence complexity.
type Complexity string

const (
	ComplexityLow      Complexity = "Low"
	ComplexityModerate Complexity = "Moderate"
	ComplexityHigh     Complexity = "High"
)

// ComplexityBand maps a complexity score in [0,10] to its band.
func ComplexityBand(score float64) Complexity {
	switch {
	case score < 4:
		return ComplexityLow
	case score < 7:
		return ComplexityModerate
	}
	return ComplexityHigh
}

// MusicalAttributes summarises a composition for display.
type MusicalAttributes struct {
	Key                string     `json:"key" yaml:"key"`
	TempoBPM           int        `json:"tempoBPM" yaml:"tempoBPM"`
	TimeSignature      string     `json:"timeSignature" yaml:"timeSignature"`
	HarmonicComplexity Complexity `json:"harmonicComplexity" yaml:"harmonicComplexity"`
	Method             string     `json:"method" yaml:"method"`
	Duration           float64    `json:"duration" yaml:"duration"`
}

func attributesOf(cfg Config, st sequence.Stats, duration float64) MusicalAttributes {
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	return MusicalAttributes{
		Key:                key,
		TempoBPM:           cfg.TempoBPM,
		TimeSignature:      TimeSignature,
		HarmonicComplexity: ComplexityBand(st.Complexity),
		Method:             cfg.Method.Title(),
		Duration:           duration,
	}
}
