// Package buffer implements the reference-counted, multi-plane sample
// container that is the unit of transfer between pads. A Buffer may be
// shared (cheap, same memory) or deep-copied (allocates fresh memory);
// the backing memory is freed exactly once, when the last handle
// releases it.
package buffer

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/axleaudio/graphengine/format"
)

var (
	// ErrInvalidFrames is returned by New when frames < 0. A zero-frame
	// buffer is allowed.
	ErrInvalidFrames = errors.New("buffer: frames must not be negative")
	// ErrInvalidChannels is returned by New when the format has no channels.
	ErrInvalidChannels = errors.New("buffer: format has no channels")
	// ErrInvalidSampleRate is returned by New when frames > 0 but rate <= 0.
	ErrInvalidSampleRate = errors.New("buffer: sample rate must be positive when frames > 0")
)

// shared is the memory block a family of Buffer handles refers to. It is
// only ever mutated by whichever handle currently holds sole ownership;
// refCount is the only field touched concurrently, and only atomically.
type shared struct {
	planes   [][]byte
	refCount int64
}

// Buffer is a handle to a shared, reference-counted block of sample
// memory. The zero value is not usable; construct with New, Share, or
// DeepCopy. A Buffer is not safe for concurrent mutation from two
// handles at once — only the holder of the sole handle should write.
type Buffer struct {
	s          *shared
	Frames     int
	SampleRate int
	Format     format.Format
	// LinesizePerPlane is the stride, in bytes, of one plane — equal to
	// Format.PlaneBytes(Frames, i) for every plane in this implementation
	// (no row padding), kept as a field so callers don't recompute it.
	LinesizePerPlane int
	released         int32
}

// New allocates a zeroed buffer of the given shape.
func New(frames int, sampleRate int, f format.Format) (*Buffer, error) {
	if frames < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrames, frames)
	}
	if f.NumChannels() <= 0 {
		return nil, ErrInvalidChannels
	}
	if frames > 0 && sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}

	planeCount := f.PlaneCount()
	planes := make([][]byte, planeCount)
	var linesize int
	for i := range planes {
		n := f.PlaneBytes(frames, i)
		planes[i] = make([]byte, n)
		linesize = n
	}

	b := &Buffer{
		s:                &shared{planes: planes, refCount: 1},
		Frames:           frames,
		SampleRate:       sampleRate,
		Format:           f,
		LinesizePerPlane: linesize,
	}
	return b, nil
}

// Share returns a new handle sharing this buffer's memory, incrementing
// the reference count atomically. The returned handle must be released
// independently of the original.
func (b *Buffer) Share() *Buffer {
	atomic.AddInt64(&b.s.refCount, 1)
	clone := *b
	clone.released = 0
	return &clone
}

// DeepCopy allocates fresh memory and copies every plane's contents.
func (b *Buffer) DeepCopy() (*Buffer, error) {
	nb, err := New(b.Frames, b.SampleRate, b.Format)
	if err != nil {
		return nil, err
	}
	for i := range b.s.planes {
		copy(nb.s.planes[i], b.s.planes[i])
	}
	return nb, nil
}

// Release decrements the reference count. When the last handle releases,
// the backing memory becomes eligible for garbage collection. Release is
// idempotent: calling it twice on the same handle is a no-op the second
// time, so defer-Release patterns are safe even when a caller pipes a
// buffer further along before returning.
func (b *Buffer) Release() {
	if b == nil || !atomic.CompareAndSwapInt32(&b.released, 0, 1) {
		return
	}
	atomic.AddInt64(&b.s.refCount, -1)
}

// RefCount returns the current reference count, for tests and diagnostics.
func (b *Buffer) RefCount() int64 {
	return atomic.LoadInt64(&b.s.refCount)
}

// Plane returns the raw byte region backing plane i. It is valid only
// while the caller holds a handle to this buffer.
func (b *Buffer) Plane(i int) ([]byte, error) {
	if i < 0 || i >= len(b.s.planes) {
		return nil, fmt.Errorf("buffer: plane index %d out of range [0,%d)", i, len(b.s.planes))
	}
	return b.s.planes[i], nil
}

// ChannelView returns a view over channel c's samples. For planar
// formats this is Plane(c) directly; for interleaved formats it returns
// a strided view copied out of plane 0 — callers that need a true
// zero-copy stride for interleaved data should index Plane(0) manually
// using Format.Element.BytesPerSample() and NumChannels() as the stride.
func (b *Buffer) ChannelView(c int) ([]byte, error) {
	n := b.Format.NumChannels()
	if c < 0 || c >= n {
		return nil, fmt.Errorf("buffer: channel index %d out of range [0,%d)", c, n)
	}
	if b.Format.Layout == format.Planar {
		return b.Plane(c)
	}
	bps := b.Format.Element.BytesPerSample()
	p0, err := b.Plane(0)
	if err != nil {
		return nil, err
	}
	out := make([]byte, b.Frames*bps)
	stride := n * bps
	for frame := 0; frame < b.Frames; frame++ {
		src := frame*stride + c*bps
		copy(out[frame*bps:(frame+1)*bps], p0[src:src+bps])
	}
	return out, nil
}

// Zero rewrites every plane with silence without reallocating. Used by
// the realtime silence-substitution paths (underrun handling) so that
// recycled buffers from a Pool never leak a previous block's samples.
func (b *Buffer) Zero() {
	for _, p := range b.s.planes {
		for i := range p {
			p[i] = 0
		}
	}
}

// SameShape reports whether b and other share frame count, sample rate,
// and format — the check set_input uses to reject a mismatched buffer.
func (b *Buffer) SameShape(other *Buffer) bool {
	if b == nil || other == nil {
		return false
	}
	return b.Frames == other.Frames && b.SampleRate == other.SampleRate && b.Format.Equal(other.Format)
}
