// Package filter implements the FilterProcessor node type
// ("filter_processor" in the type registry): a single-input,
// single-output node that runs its input block through a
// filterpipeline.Pipeline built from the "filter_description" config
// parameter. Live parameter updates address a named sub-filter instance
// and apply on a block boundary.
package filter

import (
	"fmt"

	"github.com/axleaudio/graphengine/buffer"
	"github.com/axleaudio/graphengine/errs"
	"github.com/axleaudio/graphengine/filterpipeline"
	"github.com/axleaudio/graphengine/format"
	"github.com/axleaudio/graphengine/node"
)

func init() {
	node.Register(node.TypeFilterProcessor, func() node.Node { return New() })
}

// Processor is the FilterProcessor node.
type Processor struct {
	machine  *node.Machine
	pipeline *filterpipeline.Pipeline

	sampleRate  int
	blockFrames int
	format      format.Format

	input  *buffer.Buffer
	output *buffer.Buffer
}

// New constructs an unconfigured FilterProcessor.
func New() *Processor {
	return &Processor{machine: node.NewMachine()}
}

// Configure validates "filter_description" and builds the pipeline.
// Recognized params:
//   - filter_description: required, the filterpipeline.Build grammar.
func (p *Processor) Configure(params node.Params, sampleRate, blockFrames int, f format.Format) error {
	desc, ok := params["filter_description"]
	if !ok || desc == "" {
		return fmt.Errorf("filter: missing required parameter %q", "filter_description")
	}
	pipeline, err := filterpipeline.Build(desc)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if err := p.machine.Configure(); err != nil {
		return err
	}
	p.pipeline = pipeline
	p.sampleRate = sampleRate
	p.blockFrames = blockFrames
	p.format = f
	return nil
}

func (p *Processor) Start() error { return p.machine.Start() }
func (p *Processor) Stop() error  { return p.machine.Stop() }

func (p *Processor) Reset() error {
	if err := p.machine.Reset(); err != nil {
		return err
	}
	p.input = nil
	p.output = nil
	return nil
}

// Process runs the current input block through the pipeline and stores
// the result for GetOutput. If no input was set this block, Process is
// a no-op and GetOutput returns nil (the upstream scheduling contract
// ensures SetInput precedes Process for a connected pad).
func (p *Processor) Process() error {
	if err := p.machine.RequireRunning(); err != nil {
		return err
	}
	if p.input == nil {
		p.output = nil
		return nil
	}
	samples, err := p.input.Float32Samples()
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	out, status := p.pipeline.Process(samples, p.format.NumChannels(), p.sampleRate)
	switch status {
	case filterpipeline.StatusEndOfStream:
		p.output = nil
		p.input = nil
		return p.machine.Stop()
	case filterpipeline.StatusNeedMore:
		p.output = nil
		p.input = nil
		return nil
	}

	outBuf, err := buffer.New(p.input.Frames, p.sampleRate, p.format)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if err := outBuf.PutFloat32Samples(out); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	p.output = outBuf
	p.input = nil
	return nil
}

func (p *Processor) GetOutput(i int) (*buffer.Buffer, error) {
	if i != 0 {
		return nil, fmt.Errorf("filter: output pad %d out of range", i)
	}
	return p.output, nil
}

func (p *Processor) SetInput(b *buffer.Buffer, i int) error {
	if i != 0 {
		return fmt.Errorf("filter: input pad %d out of range", i)
	}
	if b.Frames > p.blockFrames || !b.Format.Equal(p.format) {
		return fmt.Errorf("%w: filter expects up to %d frames of %s, got %d frames of %s",
			errs.ErrFormatMismatch, p.blockFrames, p.format, b.Frames, b.Format)
	}
	p.input = b
	return nil
}

func (p *Processor) InputCount() int  { return 1 }
func (p *Processor) OutputCount() int { return 1 }

// ControlMessage handles "update" (and the synonym "update_parameter")
// with params {"filter"|"instance": string, "param"|"key": string,
// "value": string}: a live sub-filter parameter change, applied by the
// pipeline at the next block boundary.
func (p *Processor) ControlMessage(kind string, params map[string]any) error {
	if kind != "update" && kind != "update_parameter" {
		return node.ErrUnhandled
	}
	instance := stringParam(params, "filter", "instance")
	key := stringParam(params, "param", "key")
	value := stringParam(params, "value")
	return p.pipeline.UpdateParameter(instance, key, value)
}

// stringParam returns the first of the named params present as a string.
func stringParam(params map[string]any, names ...string) string {
	for _, n := range names {
		if v, ok := params[n].(string); ok {
			return v
		}
	}
	return ""
}

func (p *Processor) State() node.State { return p.machine.Current() }
