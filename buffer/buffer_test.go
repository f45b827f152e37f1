package buffer

import (
	"testing"

	"github.com/axleaudio/graphengine/format"
	"pgregory.net/rapid"
)

func stereoF32() format.Format {
	return format.Stereo(format.F32, format.Planar)
}

func TestNewRejectsBadShape(t *testing.T) {
	if _, err := New(-1, 48000, stereoF32()); err == nil {
		t.Fatal("expected error for negative frames")
	}
	if _, err := New(512, 48000, format.Format{}); err == nil {
		t.Fatal("expected error for zero channels")
	}
	if _, err := New(512, 0, stereoF32()); err == nil {
		t.Fatal("expected error for zero sample rate with nonzero frames")
	}
	if _, err := New(0, 0, stereoF32()); err != nil {
		t.Fatalf("zero-frame buffer with zero rate should be allowed: %v", err)
	}
}

func TestPlaneShape(t *testing.T) {
	b, err := New(256, 48000, stereoF32())
	if err != nil {
		t.Fatal(err)
	}
	if len(b.s.planes) != 2 {
		t.Fatalf("expected 2 planes for planar stereo, got %d", len(b.s.planes))
	}
	p0, err := b.Plane(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(p0) != 256*4 {
		t.Fatalf("expected plane of %d bytes, got %d", 256*4, len(p0))
	}
}

func TestRefcountConservation(t *testing.T) {
	b, err := New(128, 48000, stereoF32())
	if err != nil {
		t.Fatal(err)
	}
	if b.RefCount() != 1 {
		t.Fatalf("fresh buffer should have refcount 1, got %d", b.RefCount())
	}
	h2 := b.Share()
	h3 := h2.Share()
	if b.RefCount() != 3 {
		t.Fatalf("expected refcount 3 after two shares, got %d", b.RefCount())
	}
	h2.Release()
	h3.Release()
	if b.RefCount() != 1 {
		t.Fatalf("expected refcount 1 after releasing shares, got %d", b.RefCount())
	}
	b.Release()
	if b.RefCount() != 0 {
		t.Fatalf("expected refcount 0 after final release, got %d", b.RefCount())
	}
	// double release must not double-decrement
	b.Release()
	if b.RefCount() != 0 {
		t.Fatalf("double release must be a no-op, got refcount %d", b.RefCount())
	}
}

// TestRefcountConservationProperty is the property-based counterpart of
// TestRefcountConservation: for any sequence of share/release operations,
// the implied refcount computed independently must match Buffer's own
// count, and it must never go negative.
func TestRefcountConservationProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		root, err := New(64, 48000, stereoF32())
		if err != nil {
			rt.Fatal(err)
		}
		handles := []*Buffer{root}
		want := 1
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if len(handles) > 0 && rapid.Bool().Draw(rt, "share") {
				idx := rapid.IntRange(0, len(handles)-1).Draw(rt, "idx")
				nh := handles[idx].Share()
				handles = append(handles, nh)
				want++
			} else if len(handles) > 0 {
				idx := rapid.IntRange(0, len(handles)-1).Draw(rt, "idx")
				handles[idx].Release()
				handles = append(handles[:idx], handles[idx+1:]...)
				want--
			}
			if root.RefCount() != int64(want) {
				rt.Fatalf("refcount mismatch: got %d want %d", root.RefCount(), want)
			}
		}
		for _, h := range handles {
			h.Release()
		}
	})
}

func TestDeepCopyIndependence(t *testing.T) {
	b, err := New(4, 48000, stereoF32())
	if err != nil {
		t.Fatal(err)
	}
	p0, _ := b.Plane(0)
	p0[0] = 0xAB
	cp, err := b.DeepCopy()
	if err != nil {
		t.Fatal(err)
	}
	cp0, _ := cp.Plane(0)
	if cp0[0] != 0xAB {
		t.Fatal("deep copy should start with the same contents")
	}
	cp0[0] = 0x00
	if p0[0] != 0xAB {
		t.Fatal("mutating the deep copy must not affect the original")
	}
}

func TestChannelViewPlanarReturnsPlane(t *testing.T) {
	b, err := New(4, 48000, stereoF32())
	if err != nil {
		t.Fatal(err)
	}
	p1, _ := b.Plane(1)
	p1[0] = 0x7F
	view, err := b.ChannelView(1)
	if err != nil {
		t.Fatalf("ChannelView: %v", err)
	}
	if view[0] != 0x7F {
		t.Fatal("planar channel view must alias the channel's plane")
	}
	if _, err := b.ChannelView(2); err == nil {
		t.Fatal("expected error for out-of-range channel")
	}
}

func TestChannelViewInterleavedExtractsStride(t *testing.T) {
	f := format.Stereo(format.F32, format.Interleaved)
	b, err := New(3, 48000, f)
	if err != nil {
		t.Fatal(err)
	}
	// Frames as interleaved pairs: L=1,2,3  R=10,20,30.
	if err := b.PutFloat32Samples([]float32{1, 10, 2, 20, 3, 30}); err != nil {
		t.Fatal(err)
	}
	view, err := b.ChannelView(1)
	if err != nil {
		t.Fatalf("ChannelView: %v", err)
	}
	if len(view) != 3*4 {
		t.Fatalf("expected 3 samples of 4 bytes, got %d bytes", len(view))
	}
	right, _ := New(3, 48000, format.Mono(format.F32, format.Interleaved))
	plane, _ := right.Plane(0)
	copy(plane, view)
	samples, _ := right.Float32Samples()
	if samples[0] != 10 || samples[1] != 20 || samples[2] != 30 {
		t.Fatalf("expected right-channel samples 10,20,30, got %v", samples)
	}
}

func TestZeroClearsPlanes(t *testing.T) {
	b, _ := New(4, 48000, stereoF32())
	p0, _ := b.Plane(0)
	p0[0] = 0xFF
	b.Zero()
	if p0[0] != 0 {
		t.Fatal("Zero should clear plane contents")
	}
}

func TestSameShape(t *testing.T) {
	a, _ := New(128, 48000, stereoF32())
	b, _ := New(128, 48000, stereoF32())
	c, _ := New(64, 48000, stereoF32())
	if !a.SameShape(b) {
		t.Fatal("identical shapes should match")
	}
	if a.SameShape(c) {
		t.Fatal("different frame counts should not match")
	}
}

func TestPoolRecycles(t *testing.T) {
	sample, _ := New(256, 48000, stereoF32())
	pool := NewPool(sample)
	sample.Release()

	b1 := pool.Get()
	p0, _ := b1.Plane(0)
	p0[0] = 0x42
	b1.Release()
	pool.Put(b1)

	b2 := pool.Get()
	p0b, _ := b2.Plane(0)
	if p0b[0] != 0 {
		t.Fatal("pooled buffer must be zeroed on Get")
	}
}
