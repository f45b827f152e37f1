package filecodec

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// memWriteSeeker adapts a bytes.Buffer into an io.WriteSeeker for tests;
// go-audio/wav.Encoder requires Seek to patch the RIFF size fields after
// writing, which bytes.Buffer alone does not support.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = len(m.buf)
	default:
		return 0, errors.New("memWriteSeeker: invalid whence")
	}
	m.pos = base + int(offset)
	return int64(m.pos), nil
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	mem := &memWriteSeeker{}
	enc := NewEncoder(mem, 48000, 1)
	in := []float32{0.5, -0.5, 0.25, -0.25}
	if err := enc.WriteBlock(in); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dec, err := NewDecoder(bytes.NewReader(mem.buf), 4)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if dec.SampleRate() != 48000 || dec.Channels() != 1 {
		t.Fatalf("unexpected header: rate=%d channels=%d", dec.SampleRate(), dec.Channels())
	}
	out := make([]float32, 4)
	frames, err := dec.ReadBlock(out)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if frames != 4 {
		t.Fatalf("expected 4 frames, got %d", frames)
	}
	for i := range in {
		diff := out[i] - in[i]
		if diff > 0.001 || diff < -0.001 {
			t.Fatalf("sample %d: got %v want %v", i, out[i], in[i])
		}
	}
}

func TestDecoderRejectsNonWav(t *testing.T) {
	if _, err := NewDecoder(bytes.NewReader([]byte("not a wav file at all")), 4); err == nil {
		t.Fatal("expected error for non-wav input")
	}
}
