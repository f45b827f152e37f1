// Package driverio implements node.DriverBridge against a real sound
// card via gordonklaus/portaudio: device lookup by name, a full-duplex
// float32 stream, and a per-block callback bridged onto the engine's
// half-buffer convention.
package driverio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Bridge adapts a PortAudio full-duplex stream to node.DriverBridge.
// It owns one fixed-size plane per device channel in each direction so
// the realtime callback never allocates; driver source/sink nodes pick
// their configured channels out of these planes.
type Bridge struct {
	mu sync.Mutex

	device *portaudio.DeviceInfo
	stream *portaudio.Stream

	inChannels, outChannels int
	actualRate              float64
	actualBlock             int

	inPlanes  [][]float32
	outPlanes [][]float32

	callback func(halfIndex int)
	halfIdx  int
}

// New returns an unloaded Bridge. Initialize must have been called on
// the process-wide portaudio library before Load.
func New() *Bridge {
	return &Bridge{}
}

func (b *Bridge) Load(deviceName string) error {
	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("driverio: enumerating devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceName {
			b.device = d
			return nil
		}
	}
	if deviceName == "" {
		def, err := portaudio.DefaultInputDevice()
		if err == nil {
			b.device = def
			return nil
		}
	}
	return fmt.Errorf("driverio: device %q not found", deviceName)
}

func (b *Bridge) Init(preferredRate, preferredBlock int) (actualRate, actualBlock int, err error) {
	if b.device == nil {
		return 0, 0, fmt.Errorf("driverio: Load must be called before Init")
	}
	b.inChannels = b.device.MaxInputChannels
	b.outChannels = b.device.MaxOutputChannels
	if b.inChannels == 0 && b.outChannels == 0 {
		return 0, 0, fmt.Errorf("driverio: device %q has no channels", b.device.Name)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: b.inChannels,
			Device:   b.device,
			Latency:  b.device.DefaultLowInputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: b.outChannels,
			Device:   b.device,
			Latency:  b.device.DefaultLowOutputLatency,
		},
		SampleRate:      float64(preferredRate),
		FramesPerBuffer: preferredBlock,
	}

	b.inPlanes = makePlanes(b.inChannels, preferredBlock)
	b.outPlanes = makePlanes(b.outChannels, preferredBlock)

	stream, err := portaudio.OpenStream(params, b.process)
	if err != nil {
		return 0, 0, fmt.Errorf("driverio: OpenStream: %w", err)
	}
	b.stream = stream
	info := stream.Info()
	b.actualRate = info.SampleRate
	b.actualBlock = preferredBlock
	return int(b.actualRate), b.actualBlock, nil
}

func makePlanes(channels, frames int) [][]float32 {
	planes := make([][]float32, channels)
	for i := range planes {
		planes[i] = make([]float32, frames)
	}
	return planes
}

func (b *Bridge) ChannelCounts() (in, out int) { return b.inChannels, b.outChannels }

func (b *Bridge) SetCallback(fn func(halfIndex int)) {
	b.mu.Lock()
	b.callback = fn
	b.mu.Unlock()
}

// process is PortAudio's realtime callback: deinterleave the device
// input into per-channel planes, invoke the registered half-buffer
// callback (which lets sink nodes fill the output planes), then
// reinterleave the output planes onto the wire. No allocation.
func (b *Bridge) process(in, out []float32) {
	for frame := 0; frame*b.inChannels < len(in); frame++ {
		for c := 0; c < b.inChannels; c++ {
			b.inPlanes[c][frame] = in[frame*b.inChannels+c]
		}
	}
	b.mu.Lock()
	cb := b.callback
	b.mu.Unlock()
	if cb != nil {
		cb(b.halfIdx)
		b.halfIdx ^= 1
	}
	for frame := 0; frame*b.outChannels < len(out); frame++ {
		for c := 0; c < b.outChannels; c++ {
			out[frame*b.outChannels+c] = b.outPlanes[c][frame]
		}
	}
}

// InputChannels returns the most recent input block as one plane per
// device channel, for AcceptDriverBlock to gather from.
func (b *Bridge) InputChannels() [][]float32 { return b.inPlanes }

// OutputChannels returns the per-device-channel planes that will be
// played on the next callback return, for ProduceDriverBlock to
// scatter into.
func (b *Bridge) OutputChannels() [][]float32 { return b.outPlanes }

func (b *Bridge) Start() error {
	if b.stream == nil {
		return fmt.Errorf("driverio: Init must be called before Start")
	}
	return b.stream.Start()
}

func (b *Bridge) Stop() error {
	if b.stream == nil {
		return nil
	}
	if err := b.stream.Stop(); err != nil {
		return err
	}
	return b.stream.Close()
}
