package audio

import "sync"

// FrameReader supplies mono frames by absolute index; prefetch.Worker
// satisfies it.
type FrameReader interface {
	Read(start int64, dst []float32)
	Ahead(frame int64)
}

// Cursor is the live SampleSource: it walks a FrameReader from a frame
// position while playing and emits silence otherwise. The owner moves it
// with Seek/SetPlaying whenever its transport changes; the audio thread only
// advances it.
type Cursor struct {
	mu      sync.Mutex
	reader  FrameReader
	total   int64
	frame   int64
	playing bool
	volume  float32
	mono    []float32
	tap     func([]float32)
}

// NewCursor returns a stopped cursor. tap, if non-nil, receives each mono
// buffer after volume is applied; it runs on the audio thread.
func NewCursor(reader FrameReader, tap func([]float32)) *Cursor {
	return &Cursor{reader: reader, volume: 1, tap: tap}
}

// Load points the cursor at a new piece of total frames, stopped at 0.
func (c *Cursor) Load(total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = total
	c.frame = 0
	c.playing = false
}

// Seek moves to frame, clamped to the piece.
func (c *Cursor) Seek(frame int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = max(0, min(frame, c.total))
}

func (c *Cursor) SetPlaying(playing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = playing
}

func (c *Cursor) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = float32(v)
}

// Frame returns the next frame to be emitted.
func (c *Cursor) Frame() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Process fills interleaved stereo dst.
func (c *Cursor) Process(dst []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := len(dst) / 2
	if cap(c.mono) < frames {
		c.mono = make([]float32, frames)
	}
	mono := c.mono[:frames]
	if !c.playing || c.frame >= c.total {
		clear(mono)
	} else {
		c.reader.Read(c.frame, mono)
		c.frame = min(c.total, c.frame+int64(frames))
		c.reader.Ahead(c.frame)
		for i := range mono {
			mono[i] *= c.volume
		}
	}
	for i, v := range mono {
		dst[2*i] = v
		dst[2*i+1] = v
	}
	if c.tap != nil {
		c.tap(mono)
	}
}
