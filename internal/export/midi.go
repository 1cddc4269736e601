package export

import (
	"fmt"
	"io"
	"math"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/dnasonify-go/internal/sonify"
)

// TicksPerQuarter is the SMF resolution.
const TicksPerQuarter = 960

// MIDIOptions configure WriteMIDI.
type MIDIOptions struct {
	TempoBPM int
	Channel  uint8
	Program  uint8
	// Limit truncates the piece at this many seconds when positive.
	Limit float64
}

// MIDINote converts a frequency to the nearest MIDI key, clamped to 0..127.
func MIDINote(hz float64) uint8 {
	if hz <= 0 {
		return 0
	}
	n := math.Round(69 + 12*math.Log2(hz/440))
	return uint8(math.Max(0, math.Min(127, n)))
}

func velocity(amp float64) uint8 {
	v := math.Round(amp * 127)
	return uint8(math.Max(1, math.Min(127, v)))
}

// WriteMIDI writes events as a type 1 Standard MIDI File: a conductor track
// with meter and tempo, then one note track. Rests become silence.
func WriteMIDI(w io.Writer, events []sonify.NoteEvent, opts MIDIOptions) error {
	bpm := opts.TempoBPM
	if bpm <= 0 {
		bpm = sonify.DefaultTempo
	}
	ticks := func(sec float64) uint32 {
		return uint32(math.Round(sec * float64(bpm) / 60 * TicksPerQuarter))
	}

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	var conductor smf.Track
	conductor.Add(0, smf.MetaMeter(4, 4))
	conductor.Add(0, smf.MetaTempo(float64(bpm)))
	conductor.Close(0)
	if err := sm.Add(conductor); err != nil {
		return fmt.Errorf("add conductor track: %w", err)
	}

	var track smf.Track
	track.Add(0, smf.MetaTrackSequenceName("dna"))
	track.Add(0, midi.ProgramChange(opts.Channel, opts.Program))
	var now uint32
	for _, ev := range events {
		if ev.IsRest() {
			continue
		}
		start, end := ev.Offset, ev.End()
		if opts.Limit > 0 {
			if start >= opts.Limit {
				break
			}
			end = math.Min(end, opts.Limit)
		}
		on, off := ticks(start), ticks(end)
		if off <= on {
			continue
		}
		key := MIDINote(ev.Pitch)
		track.Add(on-now, midi.NoteOn(opts.Channel, key, velocity(ev.Amplitude)))
		track.Add(off-on, midi.NoteOff(opts.Channel, key))
		now = off
	}
	track.Close(0)
	if err := sm.Add(track); err != nil {
		return fmt.Errorf("add note track: %w", err)
	}
	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("write midi: %w", err)
	}
	return nil
}
