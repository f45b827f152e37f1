// Package midictl implements a "custom" node (registered under
// node.TypeCustom) that maps incoming MIDI control-change messages onto
// filterpipeline parameter updates, decoding raw MIDI bytes with
// gitlab.com/gomidi/midi/v2's Message helpers.
package midictl

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"github.com/axleaudio/graphengine/buffer"
	"github.com/axleaudio/graphengine/format"
	"github.com/axleaudio/graphengine/node"
)

func init() {
	node.Register(node.TypeCustom, func() node.Node { return New() })
}

// Target receives a decoded MIDI control-change value, already
// normalized to [0,1], addressed at a named filterpipeline instance and
// parameter key. cmd/audiographd wires it to an update_parameter control
// message offered to the engine's configured nodes.
type Target func(instance, key string, normalizedValue float64) error

// mapping is one "ccN=instance:key" entry from the midi_map param.
type mapping struct {
	instance string
	key      string
}

// Node is the MIDI-control custom node. It has no audio pads: it is
// driven entirely by control_message calls carrying raw MIDI bytes from
// an external collector; this node only decodes and routes.
type Node struct {
	machine *node.Machine

	mu     sync.Mutex
	ccMap  map[uint8]mapping
	target Target
}

// New returns an unconfigured midictl Node.
func New() *Node { return &Node{machine: node.NewMachine()} }

// SetTarget installs the callback invoked when a mapped CC arrives.
// Safe to call before or after Configure.
func (n *Node) SetTarget(t Target) {
	n.mu.Lock()
	n.target = t
	n.mu.Unlock()
}

// Configure recognizes "midi_map": a comma-separated list of
// "cc<N>=instance:key" entries, e.g. "cc1=vol:level,cc74=low:f".
func (n *Node) Configure(params node.Params, sampleRate, blockFrames int, f format.Format) error {
	if err := n.machine.Configure(); err != nil {
		return err
	}
	ccMap := make(map[uint8]mapping)
	for _, entry := range strings.Split(params["midi_map"], ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		eq := strings.IndexByte(entry, '=')
		if eq < 0 {
			return fmt.Errorf("midictl: malformed midi_map entry %q", entry)
		}
		ccPart, target := entry[:eq], entry[eq+1:]
		if !strings.HasPrefix(ccPart, "cc") {
			return fmt.Errorf("midictl: malformed midi_map entry %q (expected ccN=...)", entry)
		}
		ccNum, err := strconv.Atoi(strings.TrimPrefix(ccPart, "cc"))
		if err != nil {
			return fmt.Errorf("midictl: malformed midi_map entry %q: %w", entry, err)
		}
		colon := strings.IndexByte(target, ':')
		if colon < 0 {
			return fmt.Errorf("midictl: malformed midi_map target %q (expected instance:key)", target)
		}
		ccMap[uint8(ccNum)] = mapping{instance: target[:colon], key: target[colon+1:]}
	}
	n.mu.Lock()
	n.ccMap = ccMap
	n.mu.Unlock()
	return nil
}

func (n *Node) Start() error { return n.machine.Start() }
func (n *Node) Stop() error  { return n.machine.Stop() }
func (n *Node) Reset() error { return n.machine.Reset() }

// Process is a no-op: this node has no audio pads and no per-block work.
func (n *Node) Process() error { return n.machine.RequireRunning() }

func (n *Node) GetOutput(i int) (*buffer.Buffer, error) {
	return nil, fmt.Errorf("midictl: node has no output pads")
}

func (n *Node) SetInput(b *buffer.Buffer, i int) error {
	return fmt.Errorf("midictl: node has no input pads")
}

func (n *Node) InputCount() int  { return 0 }
func (n *Node) OutputCount() int { return 0 }

// ControlMessage handles kind "midi_bytes" with params {"bytes": []byte}:
// a raw MIDI message delivered from an external collector. Control
// changes matching a configured mapping are normalized to [0,1] and
// forwarded to the installed Target.
func (n *Node) ControlMessage(kind string, params map[string]any) error {
	if kind != "midi_bytes" {
		return node.ErrUnhandled
	}
	raw, ok := params["bytes"].([]byte)
	if !ok {
		return fmt.Errorf("midictl: control_message %q requires []byte \"bytes\"", kind)
	}
	msg := midi.Message(raw)
	var channel, controller, value uint8
	if !msg.GetControlChange(&channel, &controller, &value) {
		return nil
	}

	n.mu.Lock()
	m, ok := n.ccMap[controller]
	target := n.target
	n.mu.Unlock()
	if !ok || target == nil {
		return nil
	}
	return target(m.instance, m.key, float64(value)/127.0)
}

func (n *Node) State() node.State { return n.machine.Current() }
