// Package filecodec implements the FileSource/FileSink on-disk codec
// using go-audio/wav and go-audio/audio: a streaming block decoder and
// encoder converting between int-domain PCM and the engine's float32
// sample domain.
package filecodec

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Decoder streams float32 interleaved samples out of a WAV file, frame
// block at a time.
type Decoder struct {
	dec      *wav.Decoder
	buf      *audio.IntBuffer
	divisor  float32
	channels int
}

// NewDecoder opens r as a WAV stream and validates its header.
func NewDecoder(r io.ReadSeeker, blockFrames int) (*Decoder, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("filecodec: not a valid wav file")
	}
	var divisor float32
	switch dec.BitDepth {
	case 16:
		divisor = 32768.0
	case 24:
		divisor = 8388608.0
	case 32:
		divisor = 2147483648.0
	default:
		return nil, fmt.Errorf("filecodec: unsupported bit depth %d", dec.BitDepth)
	}
	channels := int(dec.NumChans)
	buf := &audio.IntBuffer{
		Data:   make([]int, blockFrames*channels),
		Format: &audio.Format{SampleRate: int(dec.SampleRate), NumChannels: channels},
	}
	return &Decoder{dec: dec, buf: buf, divisor: divisor, channels: channels}, nil
}

// SampleRate reports the file's native sample rate.
func (d *Decoder) SampleRate() int { return int(d.dec.SampleRate) }

// Channels reports the file's channel count.
func (d *Decoder) Channels() int { return d.channels }

// ReadBlock fills out with the next decoded block as interleaved
// float32 samples, returning the number of frames read. io.EOF is
// returned once the file is exhausted.
func (d *Decoder) ReadBlock(out []float32) (frames int, err error) {
	n, err := d.dec.PCMBuffer(d.buf)
	if err != nil {
		return 0, fmt.Errorf("filecodec: decoding: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i := 0; i < n && i < len(out); i++ {
		out[i] = float32(d.buf.Data[i]) / d.divisor
	}
	return n / d.channels, nil
}

// Encoder writes float32 interleaved samples to a WAV file as 16-bit PCM.
type Encoder struct {
	enc      *wav.Encoder
	channels int
	buf      *audio.IntBuffer
}

// NewEncoder creates an Encoder writing to w with the given shape.
// Callers must call Close to flush the WAV header and trailer.
func NewEncoder(w io.WriteSeeker, sampleRate, channels int) *Encoder {
	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)
	return &Encoder{
		enc:      enc,
		channels: channels,
		buf: &audio.IntBuffer{
			Format: &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		},
	}
}

// WriteBlock encodes one block of interleaved float32 samples.
func (e *Encoder) WriteBlock(samples []float32) error {
	if cap(e.buf.Data) < len(samples) {
		e.buf.Data = make([]int, len(samples))
	}
	e.buf.Data = e.buf.Data[:len(samples)]
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		e.buf.Data[i] = int(s * 32767.0)
	}
	if err := e.enc.Write(e.buf); err != nil {
		return fmt.Errorf("filecodec: encoding: %w", err)
	}
	return nil
}

// Close flushes the WAV header/trailer. It does not close the
// underlying writer.
func (e *Encoder) Close() error {
	return e.enc.Close()
}
