package buffer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/axleaudio/graphengine/format"
)

// Float32Samples decodes plane 0 as interleaved 32-bit float samples.
// It is the bridge every in-process DSP stage uses to read a Buffer's
// contents without depending on the byte layout directly.
func (b *Buffer) Float32Samples() ([]float32, error) {
	if b.Format.Element != format.F32 {
		return nil, fmt.Errorf("buffer: Float32Samples requires format.F32, got %s", b.Format.Element)
	}
	plane, err := b.Plane(0)
	if err != nil {
		return nil, err
	}
	n := len(plane) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(plane[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

// PutFloat32Samples re-encodes samples into plane 0, overwriting its
// current contents. len(samples) must equal Frames*NumChannels.
func (b *Buffer) PutFloat32Samples(samples []float32) error {
	if b.Format.Element != format.F32 {
		return fmt.Errorf("buffer: PutFloat32Samples requires format.F32, got %s", b.Format.Element)
	}
	plane, err := b.Plane(0)
	if err != nil {
		return err
	}
	want := b.Frames * b.Format.NumChannels()
	if len(samples) != want {
		return fmt.Errorf("buffer: expected %d samples, got %d", want, len(samples))
	}
	for i, s := range samples {
		binary.LittleEndian.PutUint32(plane[i*4:], math.Float32bits(s))
	}
	return nil
}

// SampleAt decodes sample idx of plane as a float64. Integer elements
// map onto [-1,1); float elements are returned as stored.
func SampleAt(plane []byte, e format.Element, idx int) float64 {
	switch e {
	case format.U8:
		return (float64(plane[idx]) - 128) / 128
	case format.S16:
		v := int16(binary.LittleEndian.Uint16(plane[idx*2:]))
		return float64(v) / 32768
	case format.S32:
		v := int32(binary.LittleEndian.Uint32(plane[idx*4:]))
		return float64(v) / 2147483648
	case format.F32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(plane[idx*4:])))
	case format.F64:
		return math.Float64frombits(binary.LittleEndian.Uint64(plane[idx*8:]))
	default:
		return 0
	}
}

// PutSampleAt encodes v into sample idx of plane, the inverse of
// SampleAt. Values outside [-1,1] are clipped for integer elements.
func PutSampleAt(plane []byte, e format.Element, idx int, v float64) {
	switch e {
	case format.U8:
		plane[idx] = byte(clip(v)*127 + 128)
	case format.S16:
		binary.LittleEndian.PutUint16(plane[idx*2:], uint16(int16(clip(v)*32767)))
	case format.S32:
		binary.LittleEndian.PutUint32(plane[idx*4:], uint32(int32(clip(v)*2147483647)))
	case format.F32:
		binary.LittleEndian.PutUint32(plane[idx*4:], math.Float32bits(float32(v)))
	case format.F64:
		binary.LittleEndian.PutUint64(plane[idx*8:], math.Float64bits(v))
	}
}

func clip(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
