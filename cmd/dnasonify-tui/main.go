package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/dnasonify-go"
	"github.com/cbegin/dnasonify-go/internal/sequence"
	"github.com/cbegin/dnasonify-go/internal/sonify"
	"github.com/cbegin/dnasonify-go/internal/transport"
	"github.com/cbegin/dnasonify-go/internal/waveform"
)

const (
	tickInterval = 100 * time.Millisecond
	barWidth     = waveform.DefaultWidth
	seekStep     = 5.0
	volumeStep   = 0.05
)

var (
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fff"))
	playheadStyle = lipgloss.NewStyle().Reverse(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7fd1b9"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#e06c75"))
)

// Eight heights per cell.
var blocks = []rune(" ▁▂▃▄▅▆▇█")

type tickMsg time.Time

type model struct {
	s        *dnasonify.Session
	last     time.Time
	err      error
	quitting bool
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.err = nil
		st := m.s.State()
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case " ", "p":
			if st.Status == transport.Playing {
				_, m.err = m.s.Pause()
			} else {
				_, m.err = m.s.Play()
			}

		case "r":
			_, m.err = m.s.Reset()

		case "h", "left":
			_, m.err = m.s.Seek(st.Position - seekStep)

		case "l", "right":
			_, m.err = m.s.Seek(st.Position + seekStep)

		case "m":
			m.err = m.s.SetMethod(nextMethod(m.s.Config().Method))

		case "+", "=":
			m.s.SetVolume(st.Volume + volumeStep)

		case "-", "_":
			m.s.SetVolume(st.Volume - volumeStep)
		}

	case tickMsg:
		now := time.Time(msg)
		if _, err := m.s.Tick(now.Sub(m.last)); err != nil {
			m.err = err
		}
		m.last = now
		return m, tick()
	}

	return m, nil
}

func nextMethod(cur sonify.Method) sonify.Method {
	for i, m := range sonify.Methods {
		if m == cur {
			return sonify.Methods[(i+1)%len(sonify.Methods)]
		}
	}
	return sonify.Methods[0]
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	seq := m.s.Sequence()
	attrs, _ := m.s.Attributes()
	st := m.s.State()

	b.WriteString(headerStyle.Render("dnasonify"))
	b.WriteString(statusStyle.Render(fmt.Sprintf("  %s  %d bases\n", seq.Label(), seq.Len())))
	b.WriteString(statusStyle.Render(fmt.Sprintf("%s · %s · %d BPM · %s · %s complexity\n\n",
		attrs.Method, attrs.Key, attrs.TempoBPM, attrs.TimeSignature, attrs.HarmonicComplexity)))

	if f, err := m.s.Frame(barWidth, waveform.View{}); err == nil {
		b.WriteString(renderBars(f, st))
		b.WriteString("\n")
	}
	if scope := m.s.Scope(); scope != nil {
		b.WriteString(dimStyle.Render(renderScope(scope.Envelope(), barWidth)))
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("\n%s  %s / %s  vol %3.0f%%\n",
		activeStyle.Render(st.Status.String()),
		clock(st.Position), clock(st.Duration), 100*st.Volume))

	if stats, err := m.s.Stats(); err == nil {
		var parts []string
		for _, base := range sequence.Alphabet {
			parts = append(parts, fmt.Sprintf("%s %4.1f%%", base, 100*stats.FrequencyOf(base)))
		}
		parts = append(parts, fmt.Sprintf("GC %4.1f%%", 100*stats.GCContent))
		b.WriteString(statusStyle.Render(strings.Join(parts, "  ")))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("\nspace play/pause · r reset · ←/→ seek · m method · +/- volume · q quit"))
	return b.String()
}

func renderBars(f waveform.Frame, st transport.State) string {
	var b strings.Builder
	for _, bar := range f.Bars {
		ch := string(level(bar.Amplitude))
		if bar.IsPast {
			b.WriteString(activeStyle.Render(ch))
		} else {
			b.WriteString(dimStyle.Render(ch))
		}
	}
	b.WriteString("\n")
	head := int(st.Progress() * float64(len(f.Bars)))
	head = min(head, len(f.Bars)-1)
	b.WriteString(strings.Repeat(" ", max(0, head)))
	b.WriteString(playheadStyle.Render("^"))
	return b.String()
}

func renderScope(env *waveform.Envelope, width int) string {
	var b strings.Builder
	step := env.Duration / float64(width)
	for i := 0; i < width; i++ {
		from := float64(i) * step
		b.WriteRune(level(float64(env.Peak(from, from+step))))
	}
	return b.String()
}

func level(a float64) rune {
	i := int(a * float64(len(blocks)-1))
	return blocks[max(0, min(i, len(blocks)-1))]
}

func clock(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(100 * time.Millisecond)
	return fmt.Sprintf("%d:%04.1f", int(d.Minutes()), d.Seconds()-60*float64(int(d.Minutes())))
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML or JSON config file")
		seqInline  = flag.String("seq", "ATGCGTACGTTAGCCGATCGATCGGCTA", "inline sequence")
		fastaPath  = flag.String("file", "", "FASTA file (.gz allowed)")
		strict     = flag.Bool("strict", false, "reject IUPAC ambiguity codes")
		mute       = flag.Bool("mute", false, "do not open the audio device")
	)
	flag.Parse()

	opts := []dnasonify.Option{dnasonify.WithLiveOutput(!*mute)}
	if *configPath != "" {
		cfg, err := dnasonify.LoadConfig(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		opts = append([]dnasonify.Option{dnasonify.WithConfig(cfg)}, opts...)
	}
	s, err := dnasonify.NewSession(opts...)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	seqOpts := sequence.Options{Strict: *strict}
	if *fastaPath != "" {
		_, err = s.LoadFASTA(*fastaPath, seqOpts)
	} else {
		_, err = s.LoadSequence(*seqInline, seqOpts)
	}
	if err != nil {
		log.Fatal(err)
	}

	m := model{s: s, last: time.Now()}
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
