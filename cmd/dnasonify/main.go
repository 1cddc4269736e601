package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cbegin/dnasonify-go"
	"github.com/cbegin/dnasonify-go/internal/export"
	"github.com/cbegin/dnasonify-go/internal/sequence"
	"github.com/cbegin/dnasonify-go/internal/sonify"
)

const defaultSequence = "ATGCGTACGTTAGCCGATCGATCGGCTA"

func main() {
	var (
		configPath = flag.String("config", "", "YAML or JSON config file")
		seqInline  = flag.String("seq", "", "inline sequence")
		fastaPath  = flag.String("file", "", "FASTA file (.gz allowed, - for stdin)")
		methodName = flag.String("method", "frequency", "sonification method: frequency|harmonic|pentatonic|chromatic")
		policyName = flag.String("policy", "discrete", "run policy: discrete|collapse")
		tempo      = flag.Int("tempo", sonify.DefaultTempo, "tempo in BPM, one base per beat")
		sampleRate = flag.Int("sample-rate", dnasonify.DefaultSampleRate, "output sample rate")
		duration   = flag.Float64("duration", 0, "truncate to this many seconds (0 = whole sequence)")
		volume     = flag.Float64("volume", dnasonify.DefaultVolume, "master volume 0..1")
		dynamics   = flag.Bool("dynamics", false, "scale loudness with local GC content")
		strict     = flag.Bool("strict", false, "reject IUPAC ambiguity codes instead of treating them as N")
		showStats  = flag.Bool("stats", true, "print composition statistics")
		wavPath    = flag.String("wav", "", "write a WAV file")
		wavFormat  = flag.String("wav-format", "pcm16", "WAV sample format: pcm16|float32")
		midiPath   = flag.String("midi", "", "write a Standard MIDI File")
		notesPath  = flag.String("notes", "", "write the note list (.json or .yaml)")
		sheetPath  = flag.String("sheet", "", "write sheet music in ABC notation")
		play       = flag.Bool("play", false, "play through the audio device")
	)
	flag.Parse()

	cfg := dnasonify.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = dnasonify.LoadConfig(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	// Flags given explicitly override the config file.
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "method":
			m, err := sonify.ParseMethod(*methodName)
			if err != nil {
				flagErr = err
			}
			cfg.Method = m
		case "policy":
			p, err := sonify.ParsePolicy(*policyName)
			if err != nil {
				flagErr = err
			}
			cfg.Policy = p
		case "tempo":
			cfg.TempoBPM = *tempo
		case "sample-rate":
			cfg.SampleRate = *sampleRate
		case "duration":
			cfg.DurationSeconds = *duration
		case "volume":
			cfg.Volume = *volume
		case "dynamics":
			cfg.Dynamics = *dynamics
		}
	})
	if flagErr != nil {
		log.Fatal(flagErr)
	}

	s, err := dnasonify.NewSession(dnasonify.WithConfig(cfg), dnasonify.WithLiveOutput(*play))
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	opts := sequence.Options{Strict: *strict}
	switch {
	case *fastaPath != "":
		seqs, err := s.LoadFASTA(*fastaPath, opts)
		if err != nil {
			log.Fatal(err)
		}
		if len(seqs) > 1 {
			fmt.Printf("%d records read, using %q\n", len(seqs), seqs[0].Label())
		}
	case strings.TrimSpace(*seqInline) != "":
		if _, err := s.LoadSequence(*seqInline, opts); err != nil {
			log.Fatal(err)
		}
	default:
		if _, err := s.LoadSequence(defaultSequence, opts); err != nil {
			log.Fatal(err)
		}
	}

	if *showStats {
		printStats(s)
	}

	ctx := context.Background()
	if *wavPath != "" {
		format, err := export.ParseFormat(*wavFormat)
		if err != nil {
			log.Fatal(err)
		}
		if err := writeWAV(ctx, s, *wavPath, format); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %s\n", *wavPath)
	}
	if *midiPath != "" {
		if err := writeFile(*midiPath, s.ExportMIDI); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %s\n", *midiPath)
	}
	if *notesPath != "" {
		format := export.JSON
		if ext := strings.ToLower(filepath.Ext(*notesPath)); ext == ".yaml" || ext == ".yml" {
			format = export.YAML
		}
		err := writeFile(*notesPath, func(w io.Writer) error { return s.ExportNotes(w, format) })
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %s\n", *notesPath)
	}

	if *sheetPath != "" {
		if err := writeFile(*sheetPath, s.ExportABC); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %s\n", *sheetPath)
	}

	if *play {
		if err := playToEnd(s); err != nil {
			log.Fatal(err)
		}
	}
}

func printStats(s *dnasonify.Session) {
	st, err := s.Stats()
	if err != nil {
		log.Fatal(err)
	}
	attrs, err := s.Attributes()
	if err != nil {
		log.Fatal(err)
	}
	seq := s.Sequence()
	fmt.Printf("sequence   %s (%d bases)\n", seq.Label(), seq.Len())
	for _, b := range sequence.Alphabet {
		fmt.Printf("  %s        %5d  %5.1f%%\n", b, st.Counts[b], 100*st.FrequencyOf(b))
	}
	if n := st.Counts[sequence.Unknown]; n > 0 {
		fmt.Printf("  N        %5d  %5.1f%%\n", n, 100*st.FrequencyOf(sequence.Unknown))
	}
	fmt.Printf("gc content %.1f%%\n", 100*st.GCContent)
	fmt.Printf("complexity %.2f (%s)\n", st.Complexity, attrs.HarmonicComplexity)
	fmt.Printf("method     %s\n", attrs.Method)
	fmt.Printf("key        %s, %d BPM, %s\n", attrs.Key, attrs.TempoBPM, attrs.TimeSignature)
	fmt.Printf("duration   %.2fs\n", attrs.Duration)
}

func writeWAV(ctx context.Context, s *dnasonify.Session, path string, format export.Format) error {
	if format == export.PCM16 {
		return s.ExportWAVFile(ctx, path)
	}
	return writeFile(path, func(w io.Writer) error { return s.ExportWAV(ctx, w, format) })
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// playToEnd drives the transport from a 100ms ticker until playback ends.
func playToEnd(s *dnasonify.Session) error {
	ch := s.Watch()
	if _, err := s.Play(); err != nil {
		return err
	}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	last := time.Now()
	lastSecond := -1
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Kind == dnasonify.EventPlaybackEnded {
				fmt.Println("playback completed")
				// Let the output buffer drain.
				time.Sleep(200 * time.Millisecond)
				return nil
			}
		case now := <-ticker.C:
			st, err := s.Tick(now.Sub(last))
			if err != nil {
				return err
			}
			last = now
			if sec := int(st.Position); sec != lastSecond {
				lastSecond = sec
				fmt.Printf("%6.1fs / %.1fs\n", st.Position, st.Duration)
			}
		}
	}
}
