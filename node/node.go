// Package node defines the polymorphic node capability set that every
// graph participant (source, processor, sink) implements, plus a
// factory registry keyed by the configuration type strings. Node
// variants are a closed set registered in the factory table rather
// than an open subclass hierarchy.
package node

import (
	"errors"

	"github.com/axleaudio/graphengine/buffer"
	"github.com/axleaudio/graphengine/format"
)

// Params is the node-type-specific configuration map passed to
// Configure. Each node reads the keys it recognizes; the built-in node
// types (asio, fileio, filter, midictl) ignore any other keys rather
// than reporting an error.
type Params map[string]string

// ErrUnhandled is returned by ControlMessage when a node does not
// recognize the given message kind.
var ErrUnhandled = errors.New("control message unhandled")

// Node is the capability set every graph participant implements.
// Implementations must not block on contended locks or allocate on
// Process when Running — that is the realtime path.
type Node interface {
	// Configure validates params and allocates internal resources for
	// the given block shape. Legal only from Unconfigured or Stopped.
	Configure(params Params, sampleRate int, blockFrames int, f format.Format) error
	// Start transitions to Running. Idempotent when already Running.
	Start() error
	// Process advances the node by one block. Legal only while Running.
	Process() error
	// Stop transitions to Stopped, releasing runtime resources but
	// keeping configuration.
	Stop() error
	// Reset clears internal DSP/queue state without changing configuration.
	Reset() error

	// GetOutput returns this block's output on output pad i, or nil if
	// the node produced no output this block.
	GetOutput(i int) (*buffer.Buffer, error)
	// SetInput hands ownership of a buffer to input pad i.
	SetInput(b *buffer.Buffer, i int) error

	InputCount() int
	OutputCount() int

	// ControlMessage is the generic side channel for live parameter
	// updates and other out-of-band commands. Returns ErrUnhandled when
	// kind is not recognized by this node.
	ControlMessage(kind string, params map[string]any) error

	// State reports the node's current lifecycle state, for the
	// scheduler and engine to introspect without guessing.
	State() State
}

// DriverBridge abstracts the hardware callback: device load, rate and
// block-size negotiation, channel counts, and the per-block half-buffer
// callback. Concrete adapters (e.g. package driverio) implement this
// against a real audio backend; tests implement it with an in-memory
// mock so the realtime callback path is exercised without hardware.
type DriverBridge interface {
	Load(deviceName string) error
	Init(preferredRate, preferredBlock int) (actualRate, actualBlock int, err error)
	ChannelCounts() (in, out int)
	// SetCallback registers the function the driver invokes once per
	// block, on the driver's own thread, with the half-buffer index
	// that is now current.
	SetCallback(fn func(halfIndex int))
	Start() error
	Stop() error
}
