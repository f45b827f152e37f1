package engine

import (
	"fmt"

	"github.com/axleaudio/graphengine/buffer"
	"github.com/axleaudio/graphengine/format"
	"github.com/axleaudio/graphengine/graph"
	"github.com/axleaudio/graphengine/node"
)

// convertNode is the implicit format-conversion node Initialize inserts
// into a connection whose pad formats differ and whose spec allows
// conversion. It is scheduled like any other node and shows up in status
// events under its own name, so the conversion is visible rather than
// hidden inside the transfer.
type convertNode struct {
	machine *node.Machine

	from, to format.Format
	frames   int
	rate     int

	input  *buffer.Buffer
	output *buffer.Buffer
}

func newConvertNode(from, to format.Format) *convertNode {
	return &convertNode{machine: node.NewMachine(), from: from, to: to}
}

func (c *convertNode) Configure(params node.Params, sampleRate, blockFrames int, f format.Format) error {
	if err := c.machine.Configure(); err != nil {
		return err
	}
	c.rate = sampleRate
	c.frames = blockFrames
	return nil
}

func (c *convertNode) Start() error { return c.machine.Start() }
func (c *convertNode) Stop() error  { return c.machine.Stop() }

func (c *convertNode) Reset() error {
	if err := c.machine.Reset(); err != nil {
		return err
	}
	c.input, c.output = nil, nil
	return nil
}

// sampleIndex maps (frame, channel) onto a (plane, index) pair for the
// given layout.
func sampleIndex(f format.Format, frame, ch int) (plane, idx int) {
	if f.Layout == format.Planar {
		return ch, frame
	}
	return 0, frame*f.NumChannels() + ch
}

func (c *convertNode) Process() error {
	if err := c.machine.RequireRunning(); err != nil {
		return err
	}
	if c.input == nil {
		c.output = nil
		return nil
	}
	in := c.input
	out, err := buffer.New(in.Frames, in.SampleRate, c.to)
	if err != nil {
		return fmt.Errorf("format_convert: %w", err)
	}
	channels := c.from.NumChannels()
	if n := c.to.NumChannels(); n < channels {
		channels = n
	}
	for frame := 0; frame < in.Frames; frame++ {
		for ch := 0; ch < channels; ch++ {
			sp, si := sampleIndex(c.from, frame, ch)
			dp, di := sampleIndex(c.to, frame, ch)
			src, err := in.Plane(sp)
			if err != nil {
				return err
			}
			dst, err := out.Plane(dp)
			if err != nil {
				return err
			}
			buffer.PutSampleAt(dst, c.to.Element, di, buffer.SampleAt(src, c.from.Element, si))
		}
	}
	c.output = out
	c.input = nil
	return nil
}

func (c *convertNode) GetOutput(i int) (*buffer.Buffer, error) {
	if i != 0 {
		return nil, fmt.Errorf("format_convert: output pad %d out of range", i)
	}
	return c.output, nil
}

func (c *convertNode) SetInput(b *buffer.Buffer, i int) error {
	if i != 0 {
		return fmt.Errorf("format_convert: input pad %d out of range", i)
	}
	c.input = b
	return nil
}

func (c *convertNode) InputCount() int  { return 1 }
func (c *convertNode) OutputCount() int { return 1 }

func (c *convertNode) ControlMessage(kind string, params map[string]any) error {
	return node.ErrUnhandled
}

func (c *convertNode) State() node.State { return c.machine.Current() }

// PadFormat reports the differing formats on the two sides of the
// conversion.
func (c *convertNode) PadFormat(direction graph.Direction, index int) format.Format {
	if direction == graph.In {
		return c.from
	}
	return c.to
}
