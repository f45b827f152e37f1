// Package asio implements the AsioSource/AsioSink node types
// ("asio_source"/"asio_sink"), the two nodes driven directly by a
// node.DriverBridge's realtime callback. Each keeps an A/B double-slot
// so the driver thread's accept/produce calls never contend with
// process() on the same block's data: the driver writes the next slot
// while process() reads the slot it swapped to last call.
package asio

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/axleaudio/graphengine/buffer"
	"github.com/axleaudio/graphengine/errs"
	"github.com/axleaudio/graphengine/format"
	"github.com/axleaudio/graphengine/node"
)

func init() {
	node.Register(node.TypeAsioSource, func() node.Node { return NewSource() })
	node.Register(node.TypeAsioSink, func() node.Node { return NewSink() })
}

// parseChannels resolves the "channels" config param (comma-separated
// driver channel indices, e.g. "0,1") against the node's channel count.
// An empty param defaults to the identity mapping 0..n-1.
func parseChannels(s string, want int) ([]int, error) {
	if s == "" {
		out := make([]int, want)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad driver channel index %q", errs.ErrConfig, p)
		}
		out = append(out, n)
	}
	if len(out) != want {
		return nil, fmt.Errorf("%w: %d driver channels mapped onto %d node channels", errs.ErrConfig, len(out), want)
	}
	return out, nil
}

// Source is the AsioSource node: its AcceptDriverBlock is invoked from
// the driver thread; process() swaps to the most recently completed
// slot. Output buffers come from a fixed-shape pool so the steady-state
// block path recycles instead of allocating.
type Source struct {
	machine  *node.Machine
	channels []int

	sampleRate  int
	blockFrames int
	format      format.Format

	slots   [2][]float32
	current atomic.Int32 // index of the slot process() should read next

	pool   *buffer.Pool
	output *buffer.Buffer
}

func NewSource() *Source { return &Source{machine: node.NewMachine()} }

func (s *Source) Configure(params node.Params, sampleRate, blockFrames int, f format.Format) error {
	channels, err := parseChannels(params["channels"], f.NumChannels())
	if err != nil {
		return fmt.Errorf("asio: source: %w", err)
	}
	if err := s.machine.Configure(); err != nil {
		return err
	}
	s.channels = channels
	s.sampleRate = sampleRate
	s.blockFrames = blockFrames
	s.format = f
	n := blockFrames * f.NumChannels()
	s.slots[0] = make([]float32, n)
	s.slots[1] = make([]float32, n)
	s.current.Store(-1)

	sample, err := buffer.New(blockFrames, sampleRate, f)
	if err != nil {
		return err
	}
	s.pool = buffer.NewPool(sample)
	return nil
}

func (s *Source) Start() error { return s.machine.Start() }
func (s *Source) Stop() error  { return s.machine.Stop() }

func (s *Source) Reset() error {
	if err := s.machine.Reset(); err != nil {
		return err
	}
	s.current.Store(-1)
	s.output = nil
	return nil
}

// AcceptDriverBlock gathers this node's configured driver channels out
// of the native per-channel planes, interleaves them into slot
// halfIndex, and publishes it as current. Called only from the driver
// thread; does not allocate.
func (s *Source) AcceptDriverBlock(halfIndex int, native [][]float32) error {
	if halfIndex != 0 && halfIndex != 1 {
		return fmt.Errorf("asio: invalid half index %d", halfIndex)
	}
	slot := s.slots[halfIndex]
	channels := s.format.NumChannels()
	for c, drv := range s.channels {
		if drv >= len(native) {
			return fmt.Errorf("%w: driver channel %d not present (device has %d)", errs.ErrDriver, drv, len(native))
		}
		plane := native[drv]
		for frame := 0; frame < s.blockFrames && frame < len(plane); frame++ {
			slot[frame*channels+c] = plane[frame]
		}
	}
	s.current.Store(int32(halfIndex))
	return nil
}

func (s *Source) Process() error {
	if err := s.machine.RequireRunning(); err != nil {
		return err
	}
	idx := s.current.Load()
	if idx < 0 {
		s.output = nil
		return nil
	}
	if old := s.output; old != nil {
		old.Release()
		s.pool.Put(old)
	}
	b := s.pool.Get()
	if b == nil {
		return fmt.Errorf("asio: %w", errs.ErrAlloc)
	}
	if err := b.PutFloat32Samples(s.slots[idx]); err != nil {
		return err
	}
	s.output = b
	return nil
}

func (s *Source) GetOutput(i int) (*buffer.Buffer, error) {
	if i != 0 {
		return nil, fmt.Errorf("asio: source output pad %d out of range", i)
	}
	return s.output, nil
}

func (s *Source) SetInput(b *buffer.Buffer, i int) error {
	return fmt.Errorf("asio: source has no input pads")
}

func (s *Source) InputCount() int  { return 0 }
func (s *Source) OutputCount() int { return 1 }
func (s *Source) ControlMessage(kind string, params map[string]any) error {
	return node.ErrUnhandled
}
func (s *Source) State() node.State { return s.machine.Current() }

// Sink is the AsioSink node: SetInput deposits the most recent input;
// ProduceDriverBlock reads it, or emits silence and reports an underrun
// if no block has arrived since the previous call.
type Sink struct {
	machine  *node.Machine
	channels []int

	sampleRate  int
	blockFrames int
	format      format.Format

	pending []float32
	haveNew atomic.Bool
}

func NewSink() *Sink { return &Sink{machine: node.NewMachine()} }

func (s *Sink) Configure(params node.Params, sampleRate, blockFrames int, f format.Format) error {
	channels, err := parseChannels(params["channels"], f.NumChannels())
	if err != nil {
		return fmt.Errorf("asio: sink: %w", err)
	}
	if err := s.machine.Configure(); err != nil {
		return err
	}
	s.channels = channels
	s.sampleRate = sampleRate
	s.blockFrames = blockFrames
	s.format = f
	s.pending = make([]float32, blockFrames*f.NumChannels())
	return nil
}

func (s *Sink) Start() error { return s.machine.Start() }
func (s *Sink) Stop() error  { return s.machine.Stop() }

func (s *Sink) Reset() error {
	if err := s.machine.Reset(); err != nil {
		return err
	}
	s.haveNew.Store(false)
	for i := range s.pending {
		s.pending[i] = 0
	}
	return nil
}

func (s *Sink) Process() error { return s.machine.RequireRunning() }

func (s *Sink) GetOutput(i int) (*buffer.Buffer, error) {
	return nil, fmt.Errorf("asio: sink has no output pads")
}

func (s *Sink) SetInput(b *buffer.Buffer, i int) error {
	if i != 0 {
		return fmt.Errorf("asio: sink input pad %d out of range", i)
	}
	if b.Frames != s.blockFrames || !b.Format.Equal(s.format) {
		return fmt.Errorf("%w: asio sink expects %d frames of %s, got %d frames of %s",
			errs.ErrFormatMismatch, s.blockFrames, s.format, b.Frames, b.Format)
	}
	samples, err := b.Float32Samples()
	if err != nil {
		return err
	}
	copy(s.pending, samples)
	s.haveNew.Store(true)
	return nil
}

func (s *Sink) InputCount() int  { return 1 }
func (s *Sink) OutputCount() int { return 0 }
func (s *Sink) ControlMessage(kind string, params map[string]any) error {
	return node.ErrUnhandled
}
func (s *Sink) State() node.State { return s.machine.Current() }

// ProduceDriverBlock scatters the most recently received input onto
// this node's configured driver channels of the native per-channel
// planes, or writes silence there if no new block has arrived since the
// previous call, reporting whether an underrun occurred. Channels the
// node does not own are left untouched. Called only from the driver
// thread; does not allocate.
func (s *Sink) ProduceDriverBlock(halfIndex int, out [][]float32) (underrun bool) {
	channels := s.format.NumChannels()
	fresh := s.haveNew.CompareAndSwap(true, false)
	for c, drv := range s.channels {
		if drv >= len(out) {
			continue
		}
		plane := out[drv]
		for frame := 0; frame < s.blockFrames && frame < len(plane); frame++ {
			if fresh {
				plane[frame] = s.pending[frame*channels+c]
			} else {
				plane[frame] = 0
			}
		}
	}
	return !fresh
}
