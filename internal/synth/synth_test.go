package synth

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/cbegin/dnasonify-go/internal/osc"
	"github.com/cbegin/dnasonify-go/internal/sequence"
	"github.com/cbegin/dnasonify-go/internal/sonify"
)

func testEvents(t *testing.T, raw string, m sonify.Method) []sonify.NoteEvent {
	t.Helper()
	seq, err := sequence.Parse(raw, sequence.Options{ID: "synth"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return sonify.Map(seq, m, sonify.Params{TempoBPM: 120})
}

func TestRenderSampleCount(t *testing.T) {
	events := testEvents(t, "ATGC", sonify.FrequencyMapping)
	out, err := Render(events, 48000, 0.25, 0.5)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(out) != 24000 {
		t.Fatalf("got %d samples, want 24000", len(out))
	}
	var energy float64
	for _, s := range out {
		energy += math.Abs(float64(s))
	}
	if energy == 0 {
		t.Fatal("expected non-zero audio energy")
	}
}

func TestChunksStitchExactly(t *testing.T) {
	for _, m := range sonify.Methods {
		events := testEvents(t, "ATGCCGTANNAT", m)
		r, err := NewRenderer(events, 44100, Options{Shape: Voice(m), Envelope: DefaultEnvelope, Gain: 0.9})
		if err != nil {
			t.Fatalf("renderer: %v", err)
		}
		whole, err := r.Render(0.5, 2.0)
		if err != nil {
			t.Fatalf("render whole: %v", err)
		}
		a, _ := r.Render(0.5, 0.75)
		b, _ := r.Render(1.25, 1.25)
		joined := append(a, b...)
		if len(joined) != len(whole) {
			t.Fatalf("%v: stitched %d samples, whole %d", m, len(joined), len(whole))
		}
		for i := range whole {
			if math.Abs(float64(joined[i]-whole[i])) > 1e-6 {
				t.Fatalf("%v: sample %d differs: %f vs %f", m, i, joined[i], whole[i])
			}
		}
	}
}

func TestRenderFramesArbitrarySplit(t *testing.T) {
	events := testEvents(t, "GATTACA", sonify.HarmonicSeries)
	r, err := NewRenderer(events, 8000, Options{Shape: osc.Organ, Envelope: DefaultEnvelope})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	whole := make([]float32, 20000)
	r.RenderFrames(1000, whole)
	var pos int64 = 1000
	var parts []float32
	for _, n := range []int{1, 333, 7000, 4096, 8570} {
		buf := make([]float32, n)
		r.RenderFrames(pos, buf)
		parts = append(parts, buf...)
		pos += int64(n)
	}
	for i := range whole {
		if parts[i] != whole[i] {
			t.Fatalf("sample %d differs: %f vs %f", i, parts[i], whole[i])
		}
	}
}

func TestOutputIsClipped(t *testing.T) {
	events := []sonify.NoteEvent{
		{Offset: 0, Pitch: 220, Amplitude: 1, Duration: 1},
		{Offset: 0, Pitch: 220, Amplitude: 1, Duration: 1},
		{Offset: 0, Pitch: 220, Amplitude: 1, Duration: 1},
	}
	out, err := Render(events, 8000, 0, 1)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	peak := 0.0
	for _, s := range out {
		if s > 1 || s < -1 {
			t.Fatalf("sample out of range: %f", s)
		}
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	if peak != 1 {
		t.Fatalf("overlapping notes should clip at 1, peak %f", peak)
	}
}

func TestRenderPastEndIsEmpty(t *testing.T) {
	events := testEvents(t, "ATGC", sonify.FrequencyMapping)
	out, err := Render(events, 48000, 2.0, 1.0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty chunk, got %d samples", len(out))
	}
}

func TestRenderTailIsSilent(t *testing.T) {
	events := testEvents(t, "ATGC", sonify.FrequencyMapping)
	out, err := Render(events, 1000, 1.5, 1.0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(out) != 1000 {
		t.Fatalf("got %d samples, want 1000", len(out))
	}
	for i := 500; i < len(out); i++ {
		if out[i] != 0 {
			t.Fatalf("sample %d past the end should be silent, got %f", i, out[i])
		}
	}
}

func TestRenderRejectsBadWindows(t *testing.T) {
	events := testEvents(t, "ATGC", sonify.FrequencyMapping)
	for _, tc := range []struct{ from, dur float64 }{
		{0, -1},
		{0, math.NaN()},
		{0, math.Inf(1)},
		{-0.5, 1},
		{math.NaN(), 1},
	} {
		if _, err := Render(events, 48000, tc.from, tc.dur); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Render(%v, %v) err = %v, want ErrInvalidArgument", tc.from, tc.dur, err)
		}
	}
	if _, err := Render(events, 0, 0, 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero sample rate err = %v", err)
	}
}

func TestRestsAreSilent(t *testing.T) {
	events := testEvents(t, "NNNN", sonify.Chromatic)
	out, err := Render(events, 8000, 0, 2)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d of a rest should be silent, got %f", i, s)
		}
	}
}

func TestLimitTruncatesPiece(t *testing.T) {
	events := testEvents(t, strings.Repeat("ACGT", 10), sonify.Pentatonic)
	r, err := NewRenderer(events, 1000, Options{Limit: 3})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	if r.Duration() != 3 || r.TotalFrames() != 3000 {
		t.Fatalf("duration = %v frames = %d, want 3s / 3000", r.Duration(), r.TotalFrames())
	}
	out, _ := r.Render(3, 1)
	if len(out) != 0 {
		t.Fatalf("window at limit should be empty, got %d", len(out))
	}
}

func TestLongSequenceChunkIsLocal(t *testing.T) {
	events := testEvents(t, strings.Repeat("ATGCGGTA", 25000), sonify.FrequencyMapping)
	r, err := NewRenderer(events, 8000, Options{Envelope: DefaultEnvelope})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	out, err := r.Render(99000.0, 0.5)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(out) != 4000 {
		t.Fatalf("got %d samples", len(out))
	}
}

func TestWithGainScalesWithoutRebuilding(t *testing.T) {
	events := testEvents(t, "ATGCATGC", sonify.Pentatonic)
	r, err := NewRenderer(events, 8000, Options{Shape: osc.Triangle, Envelope: DefaultEnvelope})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	full, _ := r.Render(0.3, 1)
	half, _ := r.WithGain(0.5).Render(0.3, 1)
	mute, _ := r.WithGain(0).Render(0.3, 1)
	again, _ := r.Render(0.3, 1)
	for i := range full {
		if math.Abs(float64(half[i])-0.5*float64(full[i])) > 1e-6 {
			t.Fatalf("sample %d: half gain %v, full %v", i, half[i], full[i])
		}
		if mute[i] != 0 {
			t.Fatalf("sample %d = %v at zero gain", i, mute[i])
		}
		if again[i] != full[i] {
			t.Fatalf("WithGain changed the receiver at sample %d", i)
		}
	}
}
