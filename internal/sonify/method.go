package sonify

import (
	"fmt"
	"math"
	"strings"

	"github.com/cbegin/dnasonify-go/internal/sequence"
)

// Method selects how bases are turned into pitches.
type Method int

const (
	FrequencyMapping Method = iota
	HarmonicSeries
	Pentatonic
	Chromatic
)

// Methods lists every method in display order.
var Methods = []Method{FrequencyMapping, HarmonicSeries, Pentatonic, Chromatic}

var methodNames = [...]string{"frequency", "harmonic", "pentatonic", "chromatic"}

var methodTitles = [...]string{
	"Frequency Mapping",
	"Harmonic Series",
	"Pentatonic Scale",
	"Chromatic Scale",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// Title is the human-readable name of the method.
func (m Method) Title() string {
	if m < 0 || int(m) >= len(methodTitles) {
		return m.String()
	}
	return methodTitles[m]
}

func (m Method) Valid() bool { return m >= 0 && int(m) < len(methodNames) }

// ParseMethod accepts the short name ("frequency") or the title ("Frequency Mapping").
func ParseMethod(name string) (Method, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i := range methodNames {
		if n == methodNames[i] || n == strings.ToLower(methodTitles[i]) {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sonification method %q (expected frequency|harmonic|pentatonic|chromatic)", name)
}

// MarshalText and UnmarshalText let Method appear by name in JSON and YAML.
func (m Method) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid sonification method %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *Method) UnmarshalText(text []byte) error {
	v, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

const (
	harmonicFundamental = 110.0
	// middleC is C4 in twelve-tone equal temperament.
	middleC = 261.6255653005986
	// scaleOctaves bounds the octave transposition of the scale methods.
	scaleOctaves = 3
)

var (
	frequencyTable  = [4]float64{220, 440, 880, 1760}
	pentatonicScale = []int{0, 2, 4, 7, 9}
	chromaticScale  = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	baseAmplitude   = [...]float64{0.8, 0.6, 0.7, 0.55}
)

// Pitch returns the frequency in Hz for base b at the given sequence position.
// Unknown bases return 0 (a rest).
func (m Method) Pitch(b sequence.Base, position int) float64 {
	idx := b.Index()
	if idx < 0 {
		return 0
	}
	switch m {
	case FrequencyMapping:
		return frequencyTable[idx]
	case HarmonicSeries:
		return harmonicFundamental * float64(idx+1)
	case Pentatonic:
		return scalePitch(pentatonicScale, idx, position)
	case Chromatic:
		return scalePitch(chromaticScale, idx, position)
	}
	return 0
}

// Amplitude is the constant per-method level before dynamics.
func (m Method) Amplitude() float64 {
	if !m.Valid() {
		return 0
	}
	return baseAmplitude[m]
}

func scalePitch(scale []int, idx, position int) float64 {
	degree := scale[idx%len(scale)]
	octave := (position / len(scale)) % scaleOctaves
	return middleC * math.Exp2(float64(degree+12*octave)/12)
}
