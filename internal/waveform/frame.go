package waveform

import (
	"math"

	"github.com/cbegin/dnasonify-go/internal/transport"
)

// DefaultWidth matches the 100-bar display of the player view.
const DefaultWidth = 100

// Bar is one display bucket.
type Bar struct {
	Amplitude float64 `json:"amplitude"`
	IsPast    bool    `json:"isPast"`
}

// Frame is a fixed-width amplitude summary of the visible time window.
type Frame struct {
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`
	Bars  []Bar   `json:"bars"`
}

// View selects the visible time window. A zero Span shows the whole piece;
// otherwise Span seconds around the playhead are shown, held inside the
// piece's bounds.
type View struct {
	Span float64
}

// Window returns the visible [start, end) for a playback state.
func (v View) Window(st transport.State) (float64, float64) {
	if v.Span <= 0 || v.Span >= st.Duration {
		return 0, st.Duration
	}
	start := st.Position - v.Span/2
	start = math.Max(0, math.Min(start, st.Duration-v.Span))
	return start, start + v.Span
}

// Render projects env onto width bars for the given playback state. Bars
// starting at or before the playhead are marked IsPast once playback has
// left Idle. Cost is O(width) peak queries, each logarithmic in the length
// of the piece.
func Render(st transport.State, env *Envelope, width int, view View) Frame {
	if width <= 0 {
		width = DefaultWidth
	}
	start, end := view.Window(st)
	f := Frame{Start: start, End: end, Bars: make([]Bar, width)}
	if end <= start {
		return f
	}
	step := (end - start) / float64(width)
	for i := range f.Bars {
		b0 := start + float64(i)*step
		f.Bars[i] = Bar{
			Amplitude: float64(env.Peak(b0, b0+step)),
			IsPast:    st.Status != transport.Idle && b0 <= st.Position,
		}
	}
	return f
}
