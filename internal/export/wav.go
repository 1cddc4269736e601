// Package export writes a rendered composition out as WAV audio, a Standard
// MIDI File or a note list.
package export

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"golang.org/x/sync/errgroup"
)

// Source renders mono frames by absolute index; synth.Renderer satisfies it.
type Source interface {
	RenderFrames(start int64, dst []float32)
	TotalFrames() int64
	SampleRate() int
}

// Format is a WAV sample encoding.
type Format int

const (
	Float32 Format = iota // IEEE float, format tag 3
	PCM16                 // signed 16-bit, format tag 1
)

func (f Format) String() string {
	switch f {
	case Float32:
		return "float32"
	case PCM16:
		return "pcm16"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat accepts "float32" (or "f32") and "pcm16" (or "s16").
func ParseFormat(name string) (Format, error) {
	switch name {
	case "", "float32", "f32":
		return Float32, nil
	case "pcm16", "s16", "int16":
		return PCM16, nil
	}
	return 0, fmt.Errorf("unknown wav format %q (expected float32|pcm16)", name)
}

func (f Format) bytesPerSample() int {
	if f == PCM16 {
		return 2
	}
	return 4
}

func (f Format) tag() uint16 {
	if f == PCM16 {
		return 1
	}
	return 3
}

const headerSize = 44

// DefaultChunkFrames is the render granularity of streaming exports.
const DefaultChunkFrames = 1 << 15

// WAVOptions tune streaming export.
type WAVOptions struct {
	Format      Format
	ChunkFrames int // frames per render job; 0 means DefaultChunkFrames
	Parallel    int // render jobs in flight; 0 means GOMAXPROCS
}

// Header returns the 44-byte RIFF header for frames mono samples.
func Header(format Format, sampleRate int, frames int64) []byte {
	const channels = 1
	bps := format.bytesPerSample()
	dataSize := uint32(frames) * uint32(channels*bps)
	out := make([]byte, headerSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], 36+dataSize)
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], format.tag())
	binary.LittleEndian.PutUint16(out[22:], channels)
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(sampleRate*channels*bps))
	binary.LittleEndian.PutUint16(out[32:], uint16(channels*bps))
	binary.LittleEndian.PutUint16(out[34:], uint16(8*bps))
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], dataSize)
	return out
}

// EncodeWAV encodes samples in one shot.
func EncodeWAV(samples []float32, sampleRate int, format Format) []byte {
	out := Header(format, sampleRate, int64(len(samples)))
	return append(out, encode(nil, samples, format)...)
}

// WriteWAV streams src to w. The header is written first since the length
// is known up front. Chunks are rendered concurrently, one batch at a time,
// and written in order, so memory use is bounded by the batch size rather
// than the length of the piece.
func WriteWAV(ctx context.Context, w io.Writer, src Source, opts WAVOptions) error {
	chunk := opts.ChunkFrames
	if chunk <= 0 {
		chunk = DefaultChunkFrames
	}
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}
	total := src.TotalFrames()
	if _, err := w.Write(Header(opts.Format, src.SampleRate(), total)); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}

	bufs := make([][]float32, parallel)
	for i := range bufs {
		bufs[i] = make([]float32, chunk)
	}
	var out []byte
	for start := int64(0); start < total; start += int64(chunk * parallel) {
		g, gctx := errgroup.WithContext(ctx)
		n := 0
		for k := 0; k < parallel; k++ {
			from := start + int64(k*chunk)
			if from >= total {
				break
			}
			buf := bufs[k][:min(int64(chunk), total-from)]
			n++
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				src.RenderFrames(from, buf)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for k := 0; k < n; k++ {
			from := start + int64(k*chunk)
			buf := bufs[k][:min(int64(chunk), total-from)]
			out = encode(out[:0], buf, opts.Format)
			if _, err := w.Write(out); err != nil {
				return fmt.Errorf("write wav data: %w", err)
			}
		}
	}
	return nil
}

// WriteWAVFile renders src to a 16-bit PCM file through go-audio's encoder.
func WriteWAVFile(ctx context.Context, path string, src Source) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sr := src.SampleRate()
	enc := wav.NewEncoder(f, sr, 16, 1, 1)
	buf := make([]float32, DefaultChunkFrames)
	intBuf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sr},
		Data:           make([]int, DefaultChunkFrames),
		SourceBitDepth: 16,
	}
	total := src.TotalFrames()
	for start := int64(0); start < total; start += DefaultChunkFrames {
		if err := ctx.Err(); err != nil {
			enc.Close()
			return err
		}
		n := int(min(int64(DefaultChunkFrames), total-start))
		src.RenderFrames(start, buf[:n])
		intBuf.Data = intBuf.Data[:n]
		for i, v := range buf[:n] {
			intBuf.Data[i] = int(toPCM16(v))
		}
		if err := enc.Write(intBuf); err != nil {
			enc.Close()
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return f.Close()
}

func encode(dst []byte, samples []float32, format Format) []byte {
	bps := format.bytesPerSample()
	off := len(dst)
	dst = append(dst, make([]byte, len(samples)*bps)...)
	for i, s := range samples {
		p := dst[off+i*bps:]
		if format == PCM16 {
			binary.LittleEndian.PutUint16(p, uint16(toPCM16(s)))
		} else {
			binary.LittleEndian.PutUint32(p, math.Float32bits(s))
		}
	}
	return dst
}

func toPCM16(v float32) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(float64(v) * 32767))
}
