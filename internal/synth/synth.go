package synth

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cbegin/dnasonify-go/internal/osc"
	"github.com/cbegin/dnasonify-go/internal/sonify"
)

// ErrInvalidArgument is returned for malformed render windows.
var ErrInvalidArgument = errors.New("invalid argument")

// DefaultEnvelope keeps note boundaries click-free.
var DefaultEnvelope = osc.Envelope{Attack: 0.005, Release: 0.020}

// Voice returns the oscillator shape used for a method.
func Voice(m sonify.Method) osc.Shape {
	switch m {
	case sonify.HarmonicSeries:
		return osc.Organ
	case sonify.Pentatonic:
		return osc.Triangle
	case sonify.Chromatic:
		return osc.SoftSquare
	}
	return osc.Sine
}

// Options configure a Renderer.
type Options struct {
	Shape    osc.Shape
	Envelope osc.Envelope
	Gain     float64 // master gain applied before clipping; 0 means 1
	// Limit truncates the piece at this many seconds when positive.
	Limit float64
}

// Renderer synthesizes mono float32 samples from an event stream. It holds
// no playback state, so a single Renderer may be used from several
// goroutines at once.
type Renderer struct {
	events      []sonify.NoteEvent
	sampleRate  int
	opts        Options
	maxDuration float64
	totalFrames int64
}

// NewRenderer prepares events for chunked rendering. Events must be sorted
// by Offset, which sonify.Map guarantees.
func NewRenderer(events []sonify.NoteEvent, sampleRate int, opts Options) (*Renderer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidArgument, sampleRate)
	}
	if opts.Gain == 0 {
		opts.Gain = 1
	}
	r := &Renderer{events: events, sampleRate: sampleRate, opts: opts}
	for _, ev := range events {
		r.maxDuration = math.Max(r.maxDuration, ev.Duration)
	}
	total := sonify.TotalDuration(events)
	if opts.Limit > 0 && opts.Limit < total {
		total = opts.Limit
	}
	r.totalFrames = int64(math.Round(total * float64(sampleRate)))
	return r, nil
}

// WithGain returns a renderer over the same event index with master gain g.
// Unlike Options.Gain, a zero g renders silence.
func (r *Renderer) WithGain(g float64) *Renderer {
	c := *r
	c.opts.Gain = g
	return &c
}

func (r *Renderer) SampleRate() int { return r.sampleRate }

// Duration returns the rendered length in seconds.
func (r *Renderer) Duration() float64 { return float64(r.totalFrames) / float64(r.sampleRate) }

// TotalFrames returns the rendered length in samples.
func (r *Renderer) TotalFrames() int64 { return r.totalFrames }

// Events returns the event stream the renderer was built from.
func (r *Renderer) Events() []sonify.NoteEvent { return r.events }

// Render returns the samples covering [from, from+chunkDuration). The sample
// count is round(chunkDuration*sampleRate); a window starting at or beyond
// the end of the piece yields an empty slice.
func (r *Renderer) Render(from, chunkDuration float64) ([]float32, error) {
	if math.IsNaN(chunkDuration) || math.IsInf(chunkDuration, 0) || chunkDuration < 0 {
		return nil, fmt.Errorf("%w: chunk duration %v", ErrInvalidArgument, chunkDuration)
	}
	if math.IsNaN(from) || math.IsInf(from, 0) || from < 0 {
		return nil, fmt.Errorf("%w: offset %v", ErrInvalidArgument, from)
	}
	start := int64(math.Round(from * float64(r.sampleRate)))
	if start >= r.totalFrames {
		return []float32{}, nil
	}
	dst := make([]float32, int(math.Round(chunkDuration*float64(r.sampleRate))))
	r.RenderFrames(start, dst)
	return dst, nil
}

// RenderFrames fills dst with the samples starting at absolute frame start.
// Frames past the end of the piece are silent. Each sample depends only on
// its absolute frame index, so adjacent calls stitch exactly.
func (r *Renderer) RenderFrames(start int64, dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	if len(dst) == 0 || start >= r.totalFrames {
		return
	}
	end := start + int64(len(dst))
	if end > r.totalFrames {
		end = r.totalFrames
	}
	sr := float64(r.sampleRate)
	winStart := float64(start) / sr
	winEnd := float64(end) / sr

	acc := make([]float64, end-start)
	first := sort.Search(len(r.events), func(i int) bool {
		return r.events[i].Offset+r.maxDuration > winStart
	})
	for i := first; i < len(r.events); i++ {
		ev := r.events[i]
		if ev.Offset >= winEnd {
			break
		}
		if ev.IsRest() || ev.End() <= winStart {
			continue
		}
		// Only frames whose time falls inside the note are visited.
		f0 := max(start, int64(math.Ceil(ev.Offset*sr)))
		f1 := min(end, int64(math.Ceil(ev.End()*sr)))
		for f := f0; f < f1; f++ {
			t := float64(f)/sr - ev.Offset
			g := r.opts.Envelope.Gain(t, ev.Duration)
			if g == 0 {
				continue
			}
			acc[f-start] += ev.Amplitude * g * osc.Value(r.opts.Shape, ev.Pitch, t, sr)
		}
	}
	for i, v := range acc {
		v *= r.opts.Gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		dst[i] = float32(v)
	}
}

// Render is a convenience for one-off windows: it builds a Renderer with the
// default envelope and a sine voice and renders [from, from+chunkDuration).
func Render(events []sonify.NoteEvent, sampleRate int, from, chunkDuration float64) ([]float32, error) {
	r, err := NewRenderer(events, sampleRate, Options{Shape: osc.Sine, Envelope: DefaultEnvelope})
	if err != nil {
		return nil, err
	}
	return r.Render(from, chunkDuration)
}
