package buffer

import "sync"

// Pool recycles buffers of one fixed shape so realtime nodes can satisfy
// the "no allocation on the realtime path" property: instead of calling
// New on every process() call, a node draws from a Pool sized for its
// configured block shape and returns buffers to it once downstream
// consumers release them.
type Pool struct {
	frames     int
	sampleRate int
	format     formatKey
	pool       sync.Pool
}

// formatKey avoids importing format's comparison helper into a map key;
// Pool only ever holds buffers of the shape it was built for.
type formatKey struct {
	element  int
	layout   int
	channels int
}

// NewPool creates a pool that only ever hands out buffers shaped exactly
// like the sample buffer passed in.
func NewPool(sample *Buffer) *Pool {
	p := &Pool{
		frames:     sample.Frames,
		sampleRate: sample.SampleRate,
		format:     formatKey{int(sample.Format.Element), int(sample.Format.Layout), sample.Format.NumChannels()},
	}
	f := sample.Format
	p.pool.New = func() any {
		b, err := New(sample.Frames, sample.SampleRate, f)
		if err != nil {
			return nil
		}
		return b
	}
	return p
}

// Get returns a zeroed buffer of the pool's configured shape. It may
// allocate on first use per shape but steady-state calls recycle.
func (p *Pool) Get() *Buffer {
	v := p.pool.Get()
	if v == nil {
		return nil
	}
	b := v.(*Buffer)
	b.released = 0
	b.s.refCount = 1
	b.Zero()
	return b
}

// Put returns a buffer to the pool once its refcount has dropped to
// zero. Callers must not use b after calling Put.
func (p *Pool) Put(b *Buffer) {
	if b == nil || b.RefCount() > 0 {
		return
	}
	p.pool.Put(b)
}
