// Package format describes the sample layout carried by a Pad or an
// AudioBuffer: element width, planar vs interleaved storage, and channel
// layout. It is a pure value package with no I/O and no concurrency.
package format

import "fmt"

// Element is the on-the-wire width and type of a single sample.
type Element int

const (
	U8 Element = iota
	S16
	S32
	F32
	F64
)

// BytesPerSample returns the storage width of one sample of this element.
func (e Element) BytesPerSample() int {
	switch e {
	case U8:
		return 1
	case S16:
		return 2
	case S32, F32:
		return 4
	case F64:
		return 8
	default:
		return 0
	}
}

func (e Element) String() string {
	switch e {
	case U8:
		return "u8"
	case S16:
		return "s16"
	case S32:
		return "s32"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return "unknown"
	}
}

// Layout describes whether channel planes are interleaved into one
// contiguous region or stored as separate planes.
type Layout int

const (
	Interleaved Layout = iota
	Planar
)

func (l Layout) String() string {
	if l == Planar {
		return "planar"
	}
	return "interleaved"
}

// ChannelTag is a routing/display hint only; it never drives resampling
// or mixing decisions (automatic sample-rate/channel conversion across
// mismatched nodes is a declared Non-goal).
type ChannelTag int

const (
	ChannelUnspecified ChannelTag = iota
	ChannelLeft
	ChannelRight
	ChannelCenter
	ChannelLFE
	ChannelSurroundLeft
	ChannelSurroundRight
)

// Format is a value type describing the sample layout of a Pad or buffer.
// Two formats compare equal iff every field matches, including channel
// order. The Channels slice makes Format non-comparable, so it cannot be
// used as a map key or with ==; compare with Equal.
type Format struct {
	Element  Element
	Layout   Layout
	Channels []ChannelTag
}

// Stereo is a convenience constructor for a left/right stereo format with
// the given element and layout.
func Stereo(element Element, layout Layout) Format {
	return Format{
		Element:  element,
		Layout:   layout,
		Channels: []ChannelTag{ChannelLeft, ChannelRight},
	}
}

// Mono is a convenience constructor for a single-channel format.
func Mono(element Element, layout Layout) Format {
	return Format{Element: element, Layout: layout, Channels: []ChannelTag{ChannelCenter}}
}

// NumChannels returns the channel count implied by this format.
func (f Format) NumChannels() int {
	return len(f.Channels)
}

// Equal reports whether f and other describe the same layout. Format
// values cannot be compared with == because []ChannelTag is not
// comparable in Go; use Equal when comparing two Format values.
func (f Format) Equal(other Format) bool {
	if f.Element != other.Element || f.Layout != other.Layout {
		return false
	}
	if len(f.Channels) != len(other.Channels) {
		return false
	}
	for i := range f.Channels {
		if f.Channels[i] != other.Channels[i] {
			return false
		}
	}
	return true
}

// PlaneCount returns how many distinct memory planes a buffer of this
// format needs: 1 for interleaved, one per channel for planar.
func (f Format) PlaneCount() int {
	if f.Layout == Planar {
		return f.NumChannels()
	}
	return 1
}

// PlaneBytes returns the byte size of plane i for the given frame count.
func (f Format) PlaneBytes(frames int, plane int) int {
	bps := f.Element.BytesPerSample()
	if f.Layout == Planar {
		return frames * bps
	}
	return frames * f.NumChannels() * bps
}

func (f Format) String() string {
	return fmt.Sprintf("%s/%s/%dch", f.Element, f.Layout, f.NumChannels())
}
