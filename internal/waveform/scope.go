package waveform

import "sync"

// RingBuffer is a fixed-size buffer that overwrites its oldest values.
// Cursor points one past the most recently written value.
type RingBuffer[T any] struct {
	Buffer []T
	Cursor int
}

func (r *RingBuffer[T]) WriteWrap(values []T) {
	if len(r.Buffer) == 0 {
		return
	}
	if len(values) > len(r.Buffer) {
		values = values[len(values)-len(r.Buffer):]
	}
	r.Cursor = (r.Cursor + len(values)) % len(r.Buffer)
	a := min(len(values), r.Cursor)                 // how many values to copy before the cursor
	b := min(len(values)-a, len(r.Buffer)-r.Cursor) // how many values to copy to the end of the buffer
	copy(r.Buffer[r.Cursor-a:r.Cursor], values[len(values)-a:])
	copy(r.Buffer[len(r.Buffer)-b:], values[len(values)-a-b:])
}

// Ordered returns the contents from oldest to newest.
func (r *RingBuffer[T]) Ordered() []T {
	out := make([]T, 0, len(r.Buffer))
	out = append(out, r.Buffer[r.Cursor:]...)
	return append(out, r.Buffer[:r.Cursor]...)
}

// Scope keeps the most recent live output for an oscilloscope-style view.
// Write is called from the audio thread; reads take a copy.
type Scope struct {
	mu         sync.Mutex
	ring       RingBuffer[float32]
	sampleRate int
}

// NewScope keeps the last seconds of audio at sampleRate.
func NewScope(sampleRate int, seconds float64) *Scope {
	n := int(float64(sampleRate) * seconds)
	return &Scope{ring: RingBuffer[float32]{Buffer: make([]float32, max(1, n))}, sampleRate: sampleRate}
}

// Write appends mono samples.
func (s *Scope) Write(samples []float32) {
	s.mu.Lock()
	s.ring.WriteWrap(samples)
	s.mu.Unlock()
}

// Reset clears the buffer.
func (s *Scope) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.ring.Buffer)
	s.ring.Cursor = 0
}

// Envelope summarizes the buffered audio.
func (s *Scope) Envelope() *Envelope {
	s.mu.Lock()
	samples := s.ring.Ordered()
	s.mu.Unlock()
	return FromSamples(samples, s.sampleRate, DefaultBlockFrames)
}
