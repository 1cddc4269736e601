package sonify

import (
	"fmt"
	"strings"

	"github.com/cbegin/dnasonify-go/internal/sequence"
)

// NoteEvent is one scheduled note of the composition. Times are in seconds.
// A rest has zero Pitch and zero Amplitude.
type NoteEvent struct {
	Index     int           `json:"index" yaml:"index"` // position of the first base in the sequence
	Symbol    sequence.Base `json:"symbol" yaml:"symbol"`
	Offset    float64       `json:"offset" yaml:"offset"`
	Pitch     float64       `json:"pitch" yaml:"pitch"`
	Amplitude float64       `json:"amplitude" yaml:"amplitude"`
	Duration  float64       `json:"duration" yaml:"duration"`
}

// End returns Offset + Duration.
func (e NoteEvent) End() float64 { return e.Offset + e.Duration }

// IsRest reports whether the event is silent.
func (e NoteEvent) IsRest() bool { return e.Pitch == 0 || e.Amplitude == 0 }

// Policy decides how runs of identical bases become notes.
type Policy int

const (
	// Discrete emits one note per base.
	Discrete Policy = iota
	// CollapseRuns emits one note per run of identical bases, lasting the
	// whole run.
	CollapseRuns
)

func (p Policy) String() string {
	switch p {
	case Discrete:
		return "discrete"
	case CollapseRuns:
		return "collapse"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "discrete":
		return Discrete, nil
	case "collapse", "collapse-runs":
		return CollapseRuns, nil
	}
	return 0, fmt.Errorf("unknown run policy %q (expected discrete|collapse)", name)
}

func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Params fixes the timing and dynamics of a mapping.
type Params struct {
	TempoBPM     int
	BeatsPerNote float64 // 0 means one beat
	Policy       Policy
	// Dynamics scales amplitude with the GC content of a sliding window
	// around each base.
	Dynamics bool
}

// DefaultTempo is used when Params.TempoBPM is not positive.
const DefaultTempo = 120

const (
	// dynamicsWindow is the width, in bases, of the centred GC window.
	dynamicsWindow = 32
	dynamicsFloor  = 0.6
)

// NoteLength returns the duration of one base in seconds.
func (p Params) NoteLength() float64 {
	tempo := p.TempoBPM
	if tempo <= 0 {
		tempo = DefaultTempo
	}
	beats := p.BeatsPerNote
	if beats <= 0 {
		beats = 1
	}
	return 60 / float64(tempo) * beats
}

// Map converts seq into its note stream. It is pure: the same sequence,
// method and params always produce the same events. Offsets are computed
// from base positions, not accumulated, so long sequences do not drift.
func Map(seq *sequence.Sequence, m Method, p Params) []NoteEvent {
	n := seq.Len()
	noteLen := p.NoteLength()
	amp := m.Amplitude()

	var gcPrefix []int
	if p.Dynamics {
		gcPrefix = make([]int, n+1)
		for i := 0; i < n; i++ {
			gcPrefix[i+1] = gcPrefix[i]
			if b := seq.At(i); b == sequence.G || b == sequence.C {
				gcPrefix[i+1]++
			}
		}
	}
	level := func(i int) float64 {
		if gcPrefix == nil {
			return amp
		}
		lo := max(0, i-dynamicsWindow/2)
		hi := min(n, i+dynamicsWindow/2)
		gc := float64(gcPrefix[hi]-gcPrefix[lo]) / float64(hi-lo)
		return amp * (dynamicsFloor + (1-dynamicsFloor)*gc)
	}

	events := make([]NoteEvent, 0, n)
	for i := 0; i < n; {
		b := seq.At(i)
		run := 1
		if p.Policy == CollapseRuns {
			for i+run < n && seq.At(i+run) == b {
				run++
			}
		}
		ev := NoteEvent{
			Index:    i,
			Symbol:   b,
			Offset:   float64(i) * noteLen,
			Pitch:    m.Pitch(b, i),
			Duration: float64(run) * noteLen,
		}
		if ev.Pitch > 0 {
			ev.Amplitude = level(i)
		}
		events = append(events, ev)
		i += run
	}
	return events
}

// TotalDuration returns the end time of the last event.
func TotalDuration(events []NoteEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].End()
}
