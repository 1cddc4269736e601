package export

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/cbegin/dnasonify-go/internal/sonify"
)

// Sheet music is written as ABC notation in 4/4 with a sixteenth-note unit,
// so every quantised duration is a whole number of units.
const (
	sixteenthsPerBeat = 4
	sixteenthsPerBar  = 4 * sixteenthsPerBeat
	barsPerLine       = 4
)

type ABCOptions struct {
	Title    string
	TempoBPM int
	// Limit drops everything from this many seconds on when positive.
	Limit float64
}

var pitchLetters = [12]string{"C", "C", "D", "D", "E", "F", "F", "G", "G", "A", "A", "B"}

// abcNote is a spelled pitch: Name carries the letter and octave marks
// (C is middle C, c the octave above, c' and C, further out).
type abcNote struct {
	Name  string
	Sharp bool
}

func spell(hz float64) abcNote {
	midi := int(MIDINote(hz))
	octave := midi/12 - 1
	n := abcNote{Name: pitchLetters[midi%12]}
	switch midi % 12 {
	case 1, 3, 6, 8, 10:
		n.Sharp = true
	}
	if octave >= 5 {
		n.Name = strings.ToLower(n.Name) + strings.Repeat("'", octave-5)
	} else {
		n.Name += strings.Repeat(",", 4-octave)
	}
	return n
}

// WriteABC writes events as an ABC tune. Onsets and ends are quantised to the
// nearest sixteenth of a beat at the tempo; notes crossing a barline are
// split and tied, and rests become z.
func WriteABC(w io.Writer, events []sonify.NoteEvent, opts ABCOptions) error {
	tempo := opts.TempoBPM
	if tempo <= 0 {
		tempo = sonify.DefaultTempo
	}
	title := opts.Title
	if title == "" {
		title = "Untitled"
	}
	unit := 60 / float64(tempo) / sixteenthsPerBeat

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "X:1\nT:%s\nM:4/4\nL:1/16\nQ:1/4=%d\nK:C\n", title, tempo)
	t := abcTune{w: bw, lineStart: true}
	for _, ev := range events {
		if opts.Limit > 0 && ev.Offset >= opts.Limit {
			break
		}
		end := ev.End()
		if opts.Limit > 0 {
			end = math.Min(end, opts.Limit)
		}
		start16 := int(math.Round(ev.Offset / unit))
		end16 := int(math.Round(end / unit))
		if start16 > t.pos {
			t.emit(nil, start16-t.pos)
		}
		n := end16 - max(start16, t.pos)
		if n <= 0 {
			continue
		}
		if ev.IsRest() {
			t.emit(nil, n)
		} else {
			note := spell(ev.Pitch)
			t.emit(&note, n)
		}
	}
	t.finish()
	return bw.Flush()
}

type abcTune struct {
	w         *bufio.Writer
	pos       int // sixteenths written
	bars      int
	lineStart bool
	// closed: the last thing written is a barline.
	closed bool
	// wrap: a barline ending a line is owed before the next token.
	wrap bool
	// accidentals in force for the current bar
	acc map[string]byte
}

// emit writes n sixteenths of note, or of rest when note is nil.
func (t *abcTune) emit(note *abcNote, n int) {
	for n > 0 {
		k := min(n, sixteenthsPerBar-t.pos%sixteenthsPerBar)
		tok := "z"
		if note != nil {
			tok = t.accidental(*note) + note.Name
		}
		if k > 1 {
			tok += strconv.Itoa(k)
		}
		if note != nil && k < n {
			tok += "-"
		}
		t.token(tok)
		t.pos += k
		n -= k
		if t.pos%sixteenthsPerBar == 0 {
			t.barline()
		}
	}
}

func (t *abcTune) token(tok string) {
	if t.wrap {
		t.w.WriteString(" |\n")
		t.wrap = false
		t.lineStart = true
	}
	if !t.lineStart {
		t.w.WriteByte(' ')
	}
	t.w.WriteString(tok)
	t.lineStart = false
	t.closed = false
}

func (t *abcTune) barline() {
	t.bars++
	t.acc = nil
	if t.bars%barsPerLine == 0 {
		t.wrap = true
		return
	}
	t.w.WriteString(" |")
	t.closed = true
}

func (t *abcTune) finish() {
	switch {
	case t.pos == 0:
		t.w.WriteString("|]")
	case t.closed:
		t.w.WriteString("]")
	default:
		t.w.WriteString(" |]")
	}
	t.w.WriteByte('\n')
}

// accidental returns the sign needed for note to sound as spelled, given what
// earlier notes in the bar have set.
func (t *abcTune) accidental(note abcNote) string {
	want := byte('=')
	if note.Sharp {
		want = '^'
	}
	cur, ok := t.acc[note.Name]
	if !ok {
		cur = '='
	}
	if cur == want {
		return ""
	}
	if t.acc == nil {
		t.acc = map[string]byte{}
	}
	t.acc[note.Name] = want
	return string(want)
}
