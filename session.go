package dnasonify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cbegin/dnasonify-go/internal/audio"
	"github.com/cbegin/dnasonify-go/internal/export"
	"github.com/cbegin/dnasonify-go/internal/prefetch"
	"github.com/cbegin/dnasonify-go/internal/sequence"
	"github.com/cbegin/dnasonify-go/internal/sonify"
	"github.com/cbegin/dnasonify-go/internal/synth"
	"github.com/cbegin/dnasonify-go/internal/transport"
	"github.com/cbegin/dnasonify-go/internal/waveform"
)

// ErrNoSequence is returned by playback and export calls made before a
// sequence is loaded.
var ErrNoSequence = errors.New("no sequence loaded")

// PlaybackEvent carries session events from Watch().
type PlaybackEvent struct {
	Kind  int // EventLoaded, EventStateChanged or EventPlaybackEnded
	State transport.State
}

const (
	EventLoaded int = iota
	EventStateChanged
	EventPlaybackEnded
)

// ChunkSeconds is the prefetch render granularity.
const ChunkSeconds = 0.5

const (
	scopeSeconds = 2.0
	// maxDrift is how far the live output may run from the transport before
	// a tick pulls it back.
	maxDrift = 0.25
)

type Option func(*sessionConfig)

type sessionConfig struct {
	cfg        Config
	liveOutput bool
	history    int
}

// WithConfig replaces the whole configuration; later options still apply.
func WithConfig(cfg Config) Option {
	return func(sc *sessionConfig) { sc.cfg = cfg }
}

func WithMethod(m sonify.Method) Option {
	return func(sc *sessionConfig) { sc.cfg.Method = m }
}

func WithTempo(bpm int) Option {
	return func(sc *sessionConfig) { sc.cfg.TempoBPM = bpm }
}

func WithSampleRate(sampleRate int) Option {
	return func(sc *sessionConfig) { sc.cfg.SampleRate = sampleRate }
}

func WithVolume(v float64) Option {
	return func(sc *sessionConfig) { sc.cfg.Volume = v }
}

func WithPolicy(p sonify.Policy) Option {
	return func(sc *sessionConfig) { sc.cfg.Policy = p }
}

// WithDynamics scales note amplitude with local GC content.
func WithDynamics(enabled bool) Option {
	return func(sc *sessionConfig) { sc.cfg.Dynamics = enabled }
}

// WithDuration truncates playback and exports at seconds; 0 plays the whole
// composition.
func WithDuration(seconds float64) Option {
	return func(sc *sessionConfig) { sc.cfg.DurationSeconds = seconds }
}

func WithLookahead(seconds float64) Option {
	return func(sc *sessionConfig) { sc.cfg.LookaheadSeconds = seconds }
}

// WithLiveOutput plays the transport through the system audio device.
func WithLiveOutput(enabled bool) Option {
	return func(sc *sessionConfig) { sc.liveOutput = enabled }
}

// WithHistory sets how many previously loaded sequences stay recallable.
func WithHistory(n int) Option {
	return func(sc *sessionConfig) { sc.history = n }
}

// Session owns one composition and its playback. Loading a sequence or
// changing the method rebuilds the note stream and returns the transport to
// Idle at 0, so audio from a previous composition is never played against
// the new state.
type Session struct {
	id         string
	sampleRate int

	mu       sync.Mutex
	cfg      Config
	store    *sequence.Store
	events   []sonify.NoteEvent
	renderer *synth.Renderer
	env      *waveform.Envelope

	transport *transport.Transport
	worker    *prefetch.Worker
	cursor    *audio.Cursor
	output    *audio.Player
	scope     *waveform.Scope

	eventCh   chan PlaybackEvent
	eventChMu sync.Mutex
	closeOnce sync.Once
}

func NewSession(opts ...Option) (*Session, error) {
	sc := sessionConfig{cfg: DefaultConfig(), history: sequence.DefaultHistory}
	for _, opt := range opts {
		opt(&sc)
	}
	cfg := sc.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		id:         uuid.New().String(),
		sampleRate: cfg.SampleRate,
		cfg:        cfg,
		store:      sequence.NewStore(sc.history),
	}
	s.transport = transport.New(0, cfg.Volume, transport.WithOnFinished(s.finished))
	chunk := int(math.Round(ChunkSeconds * float64(cfg.SampleRate)))
	ahead := max(1, int(math.Ceil(cfg.LookaheadSeconds/ChunkSeconds)))
	s.worker = prefetch.New(chunk, ahead)
	if sc.liveOutput {
		s.scope = waveform.NewScope(cfg.SampleRate, scopeSeconds)
		s.cursor = audio.NewCursor(s.worker, s.scope.Write)
		s.cursor.SetVolume(cfg.Volume)
		out, err := audio.NewPlayer(cfg.SampleRate, s.cursor)
		if err != nil {
			s.worker.Close()
			return nil, err
		}
		s.output = out
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Config returns the current configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	cfg.Volume = s.transport.State().Volume
	return cfg
}

// LoadSequence validates raw and makes it the current sequence.
func (s *Session) LoadSequence(raw string, opts sequence.Options) (*sequence.Sequence, error) {
	s.mu.Lock()
	seq, err := s.store.Load(raw, opts)
	if err == nil {
		err = s.rebuildLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.sendEvent(PlaybackEvent{Kind: EventLoaded, State: s.transport.State()})
	return seq, nil
}

// LoadFASTA reads every record of a FASTA file (gzip allowed, "-" is stdin).
// The first record becomes current and the rest are kept in the history in
// file order, so Recall can switch between them.
func (s *Session) LoadFASTA(path string, opts sequence.Options) ([]*sequence.Sequence, error) {
	recs, err := sequence.ReadFASTAFile(path)
	if err != nil {
		return nil, err
	}
	seqs, err := s.loadRecords(recs, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return seqs, nil
}

// LoadFASTAFrom is LoadFASTA over an open reader.
func (s *Session) LoadFASTAFrom(r io.Reader, opts sequence.Options) ([]*sequence.Sequence, error) {
	recs, err := sequence.ReadFASTA(r)
	if err != nil {
		return nil, err
	}
	return s.loadRecords(recs, opts)
}

func (s *Session) loadRecords(recs []sequence.Record, opts sequence.Options) ([]*sequence.Sequence, error) {
	if len(recs) == 0 {
		return nil, &sequence.ValidationError{Position: -1, Reason: "no FASTA records"}
	}
	seqs := make([]*sequence.Sequence, len(recs))
	for i, rec := range recs {
		o := opts
		if i > 0 {
			o.ID = "" // IDs must stay unique in the history
		}
		seq, err := rec.Sequence(o)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", rec.ID, err)
		}
		seqs[i] = seq
	}
	s.mu.Lock()
	for i := len(seqs) - 1; i >= 0; i-- {
		s.store.Set(seqs[i])
	}
	err := s.rebuildLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.sendEvent(PlaybackEvent{Kind: EventLoaded, State: s.transport.State()})
	return seqs, nil
}

// Recall makes a previously loaded sequence current again.
func (s *Session) Recall(id string) (*sequence.Sequence, error) {
	s.mu.Lock()
	seq, ok := s.store.Recall(id)
	if !ok {
		if cur := s.store.Current(); cur != nil && cur.ID() == id {
			s.mu.Unlock()
			return cur, nil
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("sequence %q: %w", id, ErrNoSequence)
	}
	err := s.rebuildLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.sendEvent(PlaybackEvent{Kind: EventLoaded, State: s.transport.State()})
	return seq, nil
}

// History lists recallable sequences, most recent first.
func (s *Session) History() []*sequence.Sequence { return s.store.History() }

// Sequence returns the current sequence or nil.
func (s *Session) Sequence() *sequence.Sequence { return s.store.Current() }

// SetMethod switches the sonification method. Changing it resets playback.
func (s *Session) SetMethod(m sonify.Method) error {
	if !m.Valid() {
		return fmt.Errorf("%w: unknown method %d", ErrConfig, int(m))
	}
	return s.reconfigure(func(cfg *Config) bool {
		if cfg.Method == m {
			return false
		}
		cfg.Method = m
		return true
	})
}

// SetTempo changes the tempo. Changing it resets playback.
func (s *Session) SetTempo(bpm int) error {
	if bpm <= 0 {
		return fmt.Errorf("%w: tempoBPM must be positive, got %d", ErrConfig, bpm)
	}
	return s.reconfigure(func(cfg *Config) bool {
		if cfg.TempoBPM == bpm {
			return false
		}
		cfg.TempoBPM = bpm
		return true
	})
}

func (s *Session) reconfigure(apply func(*Config) bool) error {
	s.mu.Lock()
	if !apply(&s.cfg) || s.renderer == nil {
		s.mu.Unlock()
		return nil
	}
	err := s.rebuildLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.sendEvent(PlaybackEvent{Kind: EventLoaded, State: s.transport.State()})
	return nil
}

// rebuildLocked recomputes everything derived from the current sequence and
// configuration. The transport generation moves on, so prefetched audio from
// the previous composition is discarded.
func (s *Session) rebuildLocked() error {
	seq := s.store.Current()
	if seq == nil {
		return ErrNoSequence
	}
	events := Compose(seq, s.cfg)
	r, err := NewRenderer(events, s.cfg, 1)
	if err != nil {
		return err
	}
	s.events = events
	s.renderer = r
	s.env = waveform.FromEvents(events, s.cfg.params().NoteLength())
	gen := s.transport.Load(r.Duration())
	s.worker.Reset(gen, r)
	if s.cursor != nil {
		s.cursor.Load(r.TotalFrames())
	}
	return nil
}

type composition struct {
	cfg      Config
	seq      *sequence.Sequence
	events   []sonify.NoteEvent
	renderer *synth.Renderer
	env      *waveform.Envelope
}

func (s *Session) snapshot() (composition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renderer == nil {
		return composition{}, ErrNoSequence
	}
	return composition{
		cfg:      s.cfg,
		seq:      s.store.Current(),
		events:   s.events,
		renderer: s.renderer,
		env:      s.env,
	}, nil
}

func (s *Session) loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderer != nil
}

// Play starts or resumes playback.
func (s *Session) Play() (transport.State, error) {
	return s.control(func(t *transport.Transport) { t.Play() })
}

func (s *Session) Pause() (transport.State, error) {
	return s.control(func(t *transport.Transport) { t.Pause() })
}

// Reset returns to Idle at 0.
func (s *Session) Reset() (transport.State, error) {
	return s.control(func(t *transport.Transport) { t.Reset() })
}

// Seek moves the playhead, clamped to the piece.
func (s *Session) Seek(seconds float64) (transport.State, error) {
	return s.control(func(t *transport.Transport) { t.Seek(seconds) })
}

func (s *Session) control(fn func(*transport.Transport)) (transport.State, error) {
	if !s.loaded() {
		return transport.State{}, ErrNoSequence
	}
	fn(s.transport)
	st := s.transport.State()
	if st.Status == transport.Playing {
		s.worker.Ahead(s.frameOf(st.Position))
	}
	s.syncOutput(st, true)
	s.sendEvent(PlaybackEvent{Kind: EventStateChanged, State: st})
	return st, nil
}

// Tick advances playback by the wall time elapsed since the previous tick.
// It is meant to be called by a periodic driver.
func (s *Session) Tick(elapsed time.Duration) (transport.State, error) {
	if !s.loaded() {
		return transport.State{}, ErrNoSequence
	}
	moved := s.transport.Tick(elapsed)
	st := s.transport.State()
	if st.Status == transport.Playing {
		s.worker.Ahead(s.frameOf(st.Position))
	}
	if moved {
		s.syncOutput(st, false)
	}
	return st, nil
}

// SetVolume clamps v to [0,1].
func (s *Session) SetVolume(v float64) {
	s.transport.SetVolume(v)
	if s.cursor != nil {
		s.cursor.SetVolume(s.transport.State().Volume)
	}
}

// State returns the playback state.
func (s *Session) State() transport.State { return s.transport.State() }

// finished runs after the transport has released its lock, so a rebuild may
// already have replaced the piece that ended.
func (s *Session) finished(st transport.State) {
	if st.Generation != s.transport.State().Generation {
		return
	}
	if s.cursor != nil {
		s.cursor.SetPlaying(false)
	}
	s.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded, State: st})
}

func (s *Session) frameOf(seconds float64) int64 {
	return int64(math.Round(seconds * float64(s.sampleRate)))
}

// syncOutput keeps the live output on the transport. Drift is measured from
// what the listener hears, the cursor less the device buffer; without force
// only a drift beyond maxDrift moves the cursor.
func (s *Session) syncOutput(st transport.State, force bool) {
	if s.cursor == nil {
		return
	}
	frame := s.frameOf(st.Position)
	heard := s.cursor.Frame() - s.frameOf(s.output.Latency().Seconds())
	drift := math.Abs(float64(heard-frame)) / float64(s.sampleRate)
	if force || drift > maxDrift {
		s.cursor.Seek(frame)
	}
	playing := st.Status == transport.Playing
	s.cursor.SetPlaying(playing)
	s.cursor.SetVolume(st.Volume)
	// A finished piece keeps the device running so its buffered tail drains.
	run := playing || st.Status == transport.Finished
	if s.output.IsPlaying() != run {
		if run {
			s.output.Play()
		} else {
			s.output.Pause()
		}
	}
}

// Frame summarises the composition as width bars for the current state.
func (s *Session) Frame(width int, view waveform.View) (waveform.Frame, error) {
	c, err := s.snapshot()
	if err != nil {
		return waveform.Frame{}, err
	}
	return waveform.Render(s.transport.State(), c.env, width, view), nil
}

// Scope returns the live output ring, or nil without live output.
func (s *Session) Scope() *waveform.Scope { return s.scope }

func (s *Session) Stats() (sequence.Stats, error) {
	c, err := s.snapshot()
	if err != nil {
		return sequence.Stats{}, err
	}
	return c.seq.Stats(), nil
}

func (s *Session) Attributes() (MusicalAttributes, error) {
	c, err := s.snapshot()
	if err != nil {
		return MusicalAttributes{}, err
	}
	return attributesOf(c.cfg, c.seq.Stats(), c.renderer.Duration()), nil
}

// Events returns a copy of the note stream.
func (s *Session) Events() ([]sonify.NoteEvent, error) {
	c, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return append([]sonify.NoteEvent(nil), c.events...), nil
}

// Render returns the mono samples for [from, from+chunkDuration) at the
// current volume.
func (s *Session) Render(from, chunkDuration float64) ([]float32, error) {
	c, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return c.renderer.WithGain(s.transport.State().Volume).Render(from, chunkDuration)
}

func (s *Session) exportSource() (export.Source, error) {
	c, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return c.renderer.WithGain(s.transport.State().Volume), nil
}

// ExportWAV streams the composition to w as a mono WAV.
func (s *Session) ExportWAV(ctx context.Context, w io.Writer, format export.Format) error {
	src, err := s.exportSource()
	if err != nil {
		return err
	}
	return export.WriteWAV(ctx, w, src, export.WAVOptions{Format: format})
}

// ExportWAVFile writes a 16-bit PCM WAV file.
func (s *Session) ExportWAVFile(ctx context.Context, path string) error {
	src, err := s.exportSource()
	if err != nil {
		return err
	}
	return export.WriteWAVFile(ctx, path, src)
}

// ExportMIDI writes the composition as a Standard MIDI File.
func (s *Session) ExportMIDI(w io.Writer) error {
	c, err := s.snapshot()
	if err != nil {
		return err
	}
	return export.WriteMIDI(w, c.events, export.MIDIOptions{
		TempoBPM: c.cfg.TempoBPM,
		Limit:    c.cfg.DurationSeconds,
	})
}

// ExportABC writes the composition as ABC sheet music titled with the
// sequence label.
func (s *Session) ExportABC(w io.Writer) error {
	c, err := s.snapshot()
	if err != nil {
		return err
	}
	return export.WriteABC(w, c.events, export.ABCOptions{
		Title:    c.seq.Label(),
		TempoBPM: c.cfg.TempoBPM,
		Limit:    c.cfg.DurationSeconds,
	})
}

// ExportNotes writes the note list with absolute times. A truncated piece
// lists only the notes that start before the cut.
func (s *Session) ExportNotes(w io.Writer, format export.NoteFormat) error {
	c, err := s.snapshot()
	if err != nil {
		return err
	}
	dur := c.renderer.Duration()
	notes := c.events
	if c.cfg.DurationSeconds > 0 {
		n := 0
		for n < len(notes) && notes[n].Offset < dur {
			n++
		}
		notes = notes[:n]
	}
	return export.WriteNotes(w, export.NoteList{
		SequenceID: c.seq.ID(),
		Method:     c.cfg.Method,
		TempoBPM:   c.cfg.TempoBPM,
		Duration:   dur,
		Notes:      notes,
	}, format)
}

// Watch returns a channel that receives session events:
//   - EventLoaded: a sequence, method or tempo change rebuilt the composition
//   - EventStateChanged: play, pause, reset or seek
//   - EventPlaybackEnded: a tick reached the end of the piece
//
// The channel is buffered (cap 8) and sends never block; only the most recent
// Watch() channel receives events. Close closes it.
func (s *Session) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	s.eventChMu.Lock()
	s.eventCh = ch
	s.eventChMu.Unlock()
	return ch
}

func (s *Session) sendEvent(ev PlaybackEvent) {
	s.eventChMu.Lock()
	defer s.eventChMu.Unlock()
	if s.eventCh == nil {
		return
	}
	select {
	case s.eventCh <- ev:
	default:
		// Channel full; drop event
	}
}

// Close stops live output and the prefetch worker.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.worker.Close()
		if s.output != nil {
			err = s.output.Stop()
		}
		s.eventChMu.Lock()
		if s.eventCh != nil {
			close(s.eventCh)
			s.eventCh = nil
		}
		s.eventChMu.Unlock()
	})
	return err
}
