package prefetch

import (
	"sync"
	"testing"
	"time"
)

// rampSource yields sample value = frame index scaled by step.
type rampSource struct {
	frames int64
	step   float32
}

func (s rampSource) TotalFrames() int64 { return s.frames }

func (s rampSource) RenderFrames(start int64, dst []float32) {
	for i := range dst {
		f := start + int64(i)
		if f < s.frames {
			dst[i] = float32(f) * s.step
		} else {
			dst[i] = 0
		}
	}
}

// gateSource blocks its first render until released.
type gateSource struct {
	rampSource
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGateSource(frames int64) *gateSource {
	return &gateSource{
		rampSource: rampSource{frames: frames, step: 1},
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (s *gateSource) RenderFrames(start int64, dst []float32) {
	s.once.Do(func() {
		close(s.started)
		<-s.release
	})
	s.rampSource.RenderFrames(start, dst)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAheadFillsCache(t *testing.T) {
	w := New(100, 2)
	defer w.Close()
	w.Reset(1, rampSource{frames: 1000, step: 1})
	w.Ahead(0)
	waitFor(t, func() bool { return w.Stats().Rendered == 3 })
	for idx := int64(0); idx < 3; idx++ {
		c, ok := w.Chunk(idx)
		if !ok {
			t.Fatalf("chunk %d not cached", idx)
		}
		if c[0] != float32(idx*100) {
			t.Fatalf("chunk %d starts with %v", idx, c[0])
		}
	}
	if _, ok := w.Chunk(3); ok {
		t.Fatalf("chunk 3 should not be prefetched")
	}
}

func TestAheadStopsAtEnd(t *testing.T) {
	w := New(100, 8)
	defer w.Close()
	w.Reset(1, rampSource{frames: 250, step: 1})
	w.Ahead(0)
	waitFor(t, func() bool { return w.Stats().Rendered == 3 })
	time.Sleep(10 * time.Millisecond)
	if got := w.Stats().Rendered; got != 3 {
		t.Fatalf("rendered = %d, want 3", got)
	}
}

func TestReadMatchesDirectRender(t *testing.T) {
	src := rampSource{frames: 1000, step: 0.001}
	w := New(64, 2)
	defer w.Close()
	w.Reset(1, src)
	w.Ahead(0)

	got := make([]float32, 300)
	w.Read(50, got)
	want := make([]float32, 300)
	src.RenderFrames(50, want)
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("frame %d: got %v want %v", 50+i, got[i], want[i])
		}
	}
}

func TestReadPastEndIsSilent(t *testing.T) {
	w := New(64, 1)
	defer w.Close()
	w.Reset(1, rampSource{frames: 100, step: 1})
	got := make([]float32, 50)
	w.Read(90, got)
	if got[0] != 90 || got[9] != 99 {
		t.Fatalf("unexpected head %v", got[:10])
	}
	for i := 10; i < len(got); i++ {
		if got[i] != 0 {
			t.Fatalf("frame %d should be silent, got %v", 90+i, got[i])
		}
	}
}

func TestReadWithoutSourceIsSilent(t *testing.T) {
	w := New(64, 1)
	defer w.Close()
	got := []float32{1, 2, 3}
	w.Read(0, got)
	for _, v := range got {
		if v != 0 {
			t.Fatalf("expected silence, got %v", got)
		}
	}
}

func TestResetDropsStaleWork(t *testing.T) {
	w := New(100, 1)
	defer w.Close()
	old := newGateSource(1000)
	w.Reset(1, old)
	w.Ahead(0)
	<-old.started

	fresh := rampSource{frames: 1000, step: 2}
	w.Reset(2, fresh)
	close(old.release)

	waitFor(t, func() bool { return w.Stats().Dropped >= 1 })
	if _, ok := w.Chunk(0); ok {
		t.Fatalf("stale chunk must not be cached")
	}

	w.Ahead(0)
	waitFor(t, func() bool {
		_, ok := w.Chunk(1)
		return ok
	})
	c, _ := w.Chunk(1)
	if c[0] != 200 {
		t.Fatalf("chunk 1 from new source starts with %v, want 200", c[0])
	}
}

func TestResetDoesNotWait(t *testing.T) {
	w := New(100, 1)
	defer w.Close()
	old := newGateSource(1000)
	w.Reset(1, old)
	w.Ahead(0)
	<-old.started

	done := make(chan struct{})
	go func() {
		w.Reset(2, rampSource{frames: 10, step: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Reset blocked on in-flight render")
	}
	if w.Generation() != 2 {
		t.Fatalf("generation = %d, want 2", w.Generation())
	}
	close(old.release)
}

func TestCloseIsIdempotent(t *testing.T) {
	w := New(10, 1)
	w.Close()
	w.Close()
}
