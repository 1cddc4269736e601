// Package prefetch renders audio chunks ahead of the playhead on a
// background goroutine.
//
// Every Reset starts a new generation: the context of in-flight work is
// cancelled and anything that still completes for an older generation is
// dropped rather than cached. Cancellation is advisory; Reset never waits
// for the worker.
package prefetch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Source renders frames by absolute index; synth.Renderer satisfies it.
type Source interface {
	RenderFrames(start int64, dst []float32)
	TotalFrames() int64
}

// subBlock is how many frames are rendered between cancellation checks.
const subBlock = 4096

type request struct {
	ctx   context.Context
	gen   uint64
	src   Source
	chunk int64
}

// Stats counts worker outcomes.
type Stats struct {
	Rendered int64
	Dropped  int64
}

// Worker caches fixed-size chunks of a Source.
type Worker struct {
	chunkFrames int
	ahead       int
	requests    chan request
	quit        chan struct{}
	finished    chan struct{}
	closeOnce   sync.Once

	mu      sync.Mutex
	gen     uint64
	src     Source
	ctx     context.Context
	cancel  context.CancelFunc
	cache   map[int64][]float32
	pending map[int64]bool

	rendered atomic.Int64
	dropped  atomic.Int64
}

// New starts a worker that keeps aheadChunks chunks of chunkFrames frames
// rendered ahead of the playhead.
func New(chunkFrames, aheadChunks int) *Worker {
	if chunkFrames <= 0 {
		chunkFrames = subBlock
	}
	if aheadChunks < 1 {
		aheadChunks = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		chunkFrames: chunkFrames,
		ahead:       aheadChunks,
		requests:    make(chan request, aheadChunks*4),
		quit:        make(chan struct{}),
		finished:    make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		cache:       map[int64][]float32{},
		pending:     map[int64]bool{},
	}
	go w.run()
	return w
}

// ChunkFrames returns the chunk size in frames.
func (w *Worker) ChunkFrames() int { return w.chunkFrames }

// Reset switches to a new source. Cached chunks are discarded and in-flight
// work for the previous generation is cancelled.
func (w *Worker) Reset(gen uint64, src Source) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancel()
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.gen = gen
	w.src = src
	w.cache = map[int64][]float32{}
	w.pending = map[int64]bool{}
}

// Generation returns the generation set by the last Reset.
func (w *Worker) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen
}

// Ahead queues the chunks following frame. It never blocks: if the queue is
// full the request is skipped and Read renders the chunk on demand.
func (w *Worker) Ahead(frame int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.src == nil {
		return
	}
	first := frame / int64(w.chunkFrames)
	last := (w.src.TotalFrames() - 1) / int64(w.chunkFrames)
	for idx := range w.cache {
		if idx < first-1 || idx > first+int64(w.ahead) {
			delete(w.cache, idx)
		}
	}
	for idx := first; idx <= first+int64(w.ahead) && idx <= last; idx++ {
		if _, ok := w.cache[idx]; ok || w.pending[idx] {
			continue
		}
		req := request{ctx: w.ctx, gen: w.gen, src: w.src, chunk: idx}
		if !trySend(w.requests, req) {
			return
		}
		w.pending[idx] = true
	}
}

// Chunk returns a cached chunk.
func (w *Worker) Chunk(idx int64) ([]float32, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.cache[idx]
	return c, ok
}

// Read fills dst with frames starting at start, using cached chunks where
// possible and rendering the rest directly.
func (w *Worker) Read(start int64, dst []float32) {
	w.mu.Lock()
	src, gen := w.src, w.gen
	w.mu.Unlock()
	if src == nil {
		clear(dst)
		return
	}
	cf := int64(w.chunkFrames)
	for len(dst) > 0 {
		idx := start / cf
		off := int(start - idx*cf)
		chunk, ok := w.Chunk(idx)
		if !ok {
			chunk = make([]float32, w.chunkFrames)
			src.RenderFrames(idx*cf, chunk)
			w.store(gen, idx, chunk)
		}
		n := copy(dst, chunk[off:])
		dst = dst[n:]
		start += int64(n)
	}
}

// Stats reports how many chunks were rendered in the background and how
// many were thrown away as stale.
func (w *Worker) Stats() Stats {
	return Stats{Rendered: w.rendered.Load(), Dropped: w.dropped.Load()}
}

// Close stops the worker goroutine and waits for it to exit.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.cancel()
		w.mu.Unlock()
		close(w.quit)
	})
	<-w.finished
}

func (w *Worker) run() {
	defer close(w.finished)
	for {
		select {
		case <-w.quit:
			return
		case req := <-w.requests:
			chunk, ok := w.render(req)
			if !ok || !w.store(req.gen, req.chunk, chunk) {
				w.dropped.Add(1)
				continue
			}
			w.rendered.Add(1)
		}
	}
}

func (w *Worker) render(req request) ([]float32, bool) {
	chunk := make([]float32, w.chunkFrames)
	base := req.chunk * int64(w.chunkFrames)
	for off := 0; off < len(chunk); off += subBlock {
		if req.ctx.Err() != nil {
			return nil, false
		}
		end := min(len(chunk), off+subBlock)
		req.src.RenderFrames(base+int64(off), chunk[off:end])
	}
	return chunk, true
}

// store caches chunk if gen is still current.
func (w *Worker) store(gen uint64, idx int64, chunk []float32) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen || w.src == nil {
		return false
	}
	delete(w.pending, idx)
	w.cache[idx] = chunk
	return true
}

func trySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}
