package transport

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Status is the playback state of a Transport.
type Status int

const (
	Idle Status = iota
	Playing
	Paused
	Finished
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(text []byte) error {
	for _, v := range []Status{Idle, Playing, Paused, Finished} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown playback status %q", text)
}

// State is a snapshot of the playback timeline. Times are in seconds.
type State struct {
	Status     Status  `json:"status"`
	Position   float64 `json:"position"`
	Duration   float64 `json:"duration"`
	Volume     float64 `json:"volume"`
	Generation uint64  `json:"generation"`
}

// Progress returns Position/Duration in [0,1].
func (s State) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return math.Min(1, s.Position/s.Duration)
}

// Transport owns the playback position. Every mutation goes through its
// methods under one mutex, so transitions never interleave with a Tick.
// Only Tick advances the position over time.
type Transport struct {
	mu         sync.Mutex
	state      State
	notified   bool // completion already reported for the current run
	onFinished func(State)
}

// Option configures a Transport.
type Option func(*Transport)

// WithOnFinished installs a callback fired once per playback run when the
// position reaches the end. It runs after the transport lock is released.
func WithOnFinished(fn func(State)) Option {
	return func(t *Transport) {
		t.onFinished = fn
	}
}

// New returns an Idle transport for a piece of the given length.
func New(duration float64, volume float64, opts ...Option) *Transport {
	t := &Transport{}
	for _, opt := range opts {
		opt(t)
	}
	t.state.Duration = math.Max(0, duration)
	t.state.Volume = clampVolume(volume)
	return t
}

// State returns a snapshot.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Load replaces the piece: the transport is forced back to Idle at 0 and the
// generation is bumped so anything keyed on the previous piece can tell it
// is stale. It returns the new generation.
func (t *Transport) Load(duration float64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Generation++
	t.state.Duration = math.Max(0, duration)
	t.state.Status = Idle
	t.state.Position = 0
	t.notified = false
	return t.state.Generation
}

// Play starts or resumes playback. Starting from Finished at the end begins
// a new run from 0; after a seek back from Finished playback resumes from the
// seeked position.
func (t *Transport) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state.Status {
	case Playing:
		return
	case Finished:
		if t.state.Position >= t.state.Duration {
			t.state.Position = 0
		}
		t.notified = false
	case Idle:
		t.notified = false
	}
	t.state.Status = Playing
}

// Pause stops advancing time. It is a no-op unless Playing.
func (t *Transport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Status == Playing {
		t.state.Status = Paused
	}
}

// Reset returns to Idle at position 0 from any state.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Status = Idle
	t.state.Position = 0
	t.notified = false
}

// Seek moves the position, clamped to [0, duration]. The status is left as
// is; reaching the end by seeking does not finish playback, the next Tick
// does.
func (t *Transport) Seek(position float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if math.IsNaN(position) {
		return
	}
	t.state.Position = math.Max(0, math.Min(position, t.state.Duration))
}

// SetVolume clamps v to [0,1].
func (t *Transport) SetVolume(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Volume = clampVolume(v)
}

// Tick advances a playing transport by elapsed wall time. Callers pass the
// measured delta since their previous tick, so irregular intervals and long
// suspensions are handled. When the end is reached the position is clamped,
// the status becomes Finished and the completion callback fires once.
// Tick reports whether the position changed.
func (t *Transport) Tick(elapsed time.Duration) bool {
	t.mu.Lock()
	if t.state.Status != Playing || elapsed <= 0 {
		t.mu.Unlock()
		return false
	}
	t.state.Position += elapsed.Seconds()
	var finished *State
	if t.state.Position >= t.state.Duration {
		t.state.Position = t.state.Duration
		t.state.Status = Finished
		if !t.notified {
			t.notified = true
			s := t.state
			finished = &s
		}
	}
	cb := t.onFinished
	t.mu.Unlock()
	if finished != nil && cb != nil {
		cb(*finished)
	}
	return true
}

func clampVolume(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
