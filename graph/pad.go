// Package graph implements the Pad/Connection model and the scheduler
// that computes and replays a deterministic process order over the node
// graph.
package graph

import (
	"github.com/axleaudio/graphengine/format"
)

// Direction is whether a Pad is an input or an output port.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// Pad identifies one input or output port on a node. Pads are typed by
// a Format set at node configuration time; they never store buffers
// themselves — the owning node does.
type Pad struct {
	NodeName  string
	Direction Direction
	Index     int
	Format    format.Format
}

// BufferPolicy controls whether a Connection shares the producer's
// buffer handle directly or hands the consumer a private copy.
type BufferPolicy int

const (
	// Auto picks ShareDirect when the formats match and the sink does
	// not declare that it mutates its input in place, DeepCopy otherwise.
	Auto BufferPolicy = iota
	ShareDirect
	DeepCopy
)

// Connection is a directed edge from one node's output pad to another
// node's input pad.
type Connection struct {
	SourceNode         string
	SourceOutPad       int
	SinkNode           string
	SinkInPad          int
	AllowFormatConvert bool
	BufferPolicy       BufferPolicy
}
