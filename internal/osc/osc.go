package osc

import "math"

// Shape identifies an oscillator waveform.
type Shape int

const (
	Sine       Shape = iota
	Organ            // first four harmonics at 1/k
	Triangle         // odd harmonics at 1/k^2
	SoftSquare       // odd harmonics at 1/k, up to the 7th
)

// partial is one harmonic of an additive waveform.
type partial struct {
	k      int
	weight float64
}

var shapes = [...][]partial{
	Sine:       {{1, 1}},
	Organ:      {{1, 1}, {2, 1.0 / 2}, {3, 1.0 / 3}, {4, 1.0 / 4}},
	Triangle:   {{1, 1}, {3, -1.0 / 9}, {5, 1.0 / 25}, {7, -1.0 / 49}, {9, 1.0 / 81}},
	SoftSquare: {{1, 1}, {3, 1.0 / 3}, {5, 1.0 / 5}, {7, 1.0 / 7}},
}

// norms holds the sum of absolute weights per shape so every shape peaks
// at or below 1.
var norms = func() [len(shapes)]float64 {
	var n [len(shapes)]float64
	for s, parts := range shapes {
		for _, p := range parts {
			n[s] += math.Abs(p.weight)
		}
	}
	return n
}()

// Value evaluates shape at time t seconds into a note of frequency freq.
// Harmonics at or above the Nyquist frequency are dropped so the result is
// band-limited. The oscillator has no state: the same t always gives the same
// value, which lets any stretch of a note be rendered independently.
func Value(shape Shape, freq, t, sampleRate float64) float64 {
	if freq <= 0 {
		return 0
	}
	if shape < 0 || int(shape) >= len(shapes) {
		shape = Sine
	}
	nyquist := sampleRate / 2
	var v float64
	for _, p := range shapes[shape] {
		f := freq * float64(p.k)
		if f >= nyquist {
			break
		}
		v += p.weight * math.Sin(2*math.Pi*math.Mod(f*t, 1))
	}
	return v / norms[shape]
}

// Envelope is a linear attack/release gain applied inside a note.
type Envelope struct {
	Attack  float64 // seconds
	Release float64 // seconds
}

// Gain returns the envelope level at time t into a note of the given
// duration. When the note is shorter than Attack+Release both ramps shrink
// proportionally, so the level is always 0 at the note's start and end.
func (e Envelope) Gain(t, duration float64) float64 {
	if t < 0 || t >= duration {
		return 0
	}
	attack, release := e.Attack, e.Release
	if total := attack + release; total > duration && total > 0 {
		scale := duration / total
		attack *= scale
		release *= scale
	}
	g := 1.0
	if attack > 0 && t < attack {
		g = t / attack
	}
	if rem := duration - t; release > 0 && rem < release {
		g = math.Min(g, rem/release)
	}
	return g
}
