package waveform

import (
	"math"

	"github.com/viterin/vek/vek32"

	"github.com/cbegin/dnasonify-go/internal/sonify"
)

// maxBaseBuckets bounds the finest envelope level; longer pieces get a
// coarser base bucket instead of more memory.
const maxBaseBuckets = 1 << 20

// DefaultBlockFrames is the base bucket size used by FromSamples.
const DefaultBlockFrames = 512

// Envelope is a peak-amplitude pyramid over a piece. Level 0 has buckets of
// Bucket seconds and each following level halves the resolution, so any
// display width can be served by touching a bounded number of buckets.
type Envelope struct {
	Bucket   float64 // seconds per level-0 bucket
	Duration float64
	levels   [][]float32
}

// FromEvents builds an envelope from a note stream without synthesizing it.
// Each bucket holds the loudest note overlapping it.
func FromEvents(events []sonify.NoteEvent, bucket float64) *Envelope {
	duration := sonify.TotalDuration(events)
	bucket = fitBucket(duration, bucket)
	base := make([]float32, bucketCount(duration, bucket))
	for _, ev := range events {
		if ev.IsRest() {
			continue
		}
		lo, hi := bucketRange(ev.Offset, ev.End(), bucket)
		hi = min(hi, len(base))
		a := float32(ev.Amplitude)
		for i := lo; i < hi; i++ {
			if a > base[i] {
				base[i] = a
			}
		}
	}
	return newEnvelope(base, bucket, duration)
}

// FromSamples builds an envelope from rendered audio, one base bucket per
// blockFrames samples.
func FromSamples(samples []float32, sampleRate, blockFrames int) *Envelope {
	if blockFrames <= 0 {
		blockFrames = DefaultBlockFrames
	}
	duration := float64(len(samples)) / float64(sampleRate)
	n := (len(samples) + blockFrames - 1) / blockFrames
	base := make([]float32, n)
	for i := range base {
		block := samples[i*blockFrames : min(len(samples), (i+1)*blockFrames)]
		base[i] = peak(block)
	}
	return newEnvelope(base, float64(blockFrames)/float64(sampleRate), duration)
}

func newEnvelope(base []float32, bucket, duration float64) *Envelope {
	e := &Envelope{Bucket: bucket, Duration: duration, levels: [][]float32{base}}
	for prev := base; len(prev) > 1; {
		next := make([]float32, (len(prev)+1)/2)
		for i := range next {
			j := 2 * i
			if j+1 < len(prev) {
				next[i] = max(prev[j], prev[j+1])
			} else {
				next[i] = prev[j]
			}
		}
		e.levels = append(e.levels, next)
		prev = next
	}
	return e
}

// Levels returns the number of pyramid levels.
func (e *Envelope) Levels() int { return len(e.levels) }

// Peak returns the loudest value over [from, to) seconds, counting every
// base bucket the span touches. The span is split into aligned power-of-two
// blocks, one per pyramid level at most on each side, so the cost grows with
// the number of levels rather than the length of the span.
func (e *Envelope) Peak(from, to float64) float32 {
	if e == nil || len(e.levels[0]) == 0 || to <= from {
		return 0
	}
	lo, hi := bucketRange(from, to, e.Bucket)
	lo = max(0, lo)
	hi = min(len(e.levels[0]), hi)
	var m float32
	for level := 0; lo < hi; level++ {
		buckets := e.levels[level]
		if lo&1 == 1 {
			m = max(m, buckets[lo])
			lo++
		}
		if hi&1 == 1 {
			hi--
			m = max(m, buckets[hi])
		}
		lo >>= 1
		hi >>= 1
	}
	return m
}

// bucketEpsilon absorbs rounding in offsets that are whole multiples of the
// bucket, such as n*60/tempo.
const bucketEpsilon = 1e-9

// bucketRange returns the base buckets [lo, hi) overlapping [from, to).
func bucketRange(from, to, bucket float64) (int, int) {
	lo := int(math.Floor(from/bucket + bucketEpsilon))
	hi := int(math.Ceil(to/bucket - bucketEpsilon))
	return lo, max(hi, lo+1)
}

func peak(block []float32) float32 {
	if len(block) == 0 {
		return 0
	}
	return max(vek32.Max(block), -vek32.Min(block))
}

func fitBucket(duration, bucket float64) float64 {
	if bucket <= 0 {
		bucket = 0.125
	}
	for duration/bucket > maxBaseBuckets {
		bucket *= 2
	}
	return bucket
}

func bucketCount(duration, bucket float64) int {
	if duration <= 0 {
		return 0
	}
	return int(math.Ceil(duration/bucket - bucketEpsilon))
}
