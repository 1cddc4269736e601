package dnasonify

import (
	"github.com/cbegin/dnasonify-go/internal/export"
	"github.com/cbegin/dnasonify-go/internal/sequence"
	"github.com/cbegin/dnasonify-go/internal/sonify"
	"github.com/cbegin/dnasonify-go/internal/synth"
)

// Compose maps seq to its note stream under cfg.
func Compose(seq *sequence.Sequence, cfg Config) []sonify.NoteEvent {
	return sonify.Map(seq, cfg.Method, cfg.params())
}

// NewRenderer returns a renderer for events with the method's voice,
// cfg's truncation and gain.
func NewRenderer(events []sonify.NoteEvent, cfg Config, gain float64) (*synth.Renderer, error) {
	return synth.NewRenderer(events, cfg.SampleRate, synth.Options{
		Shape:    synth.Voice(cfg.Method),
		Envelope: synth.DefaultEnvelope,
		Gain:     gain,
		Limit:    cfg.DurationSeconds,
	})
}

// RenderSamples renders a whole sequence to mono samples at cfg.Volume.
func RenderSamples(seq *sequence.Sequence, cfg Config) ([]float32, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r, err := NewRenderer(Compose(seq, cfg), cfg, 1)
	if err != nil {
		return nil, err
	}
	src := r.WithGain(cfg.Volume)
	out := make([]float32, src.TotalFrames())
	src.RenderFrames(0, out)
	return out, nil
}

// EncodeWAV wraps mono samples in a WAV container.
func EncodeWAV(samples []float32, sampleRate int, format export.Format) []byte {
	return export.EncodeWAV(samples, sampleRate, format)
}
