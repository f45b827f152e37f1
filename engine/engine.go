// Package engine implements the node-graph orchestrator: it parses a
// config.Resolved into nodes and connections, computes a process order
// with graph.Scheduler, drives one block per driver callback (or per
// fallback-timer tick when no hardware is configured), and routes
// status events through status.Registry. Realtime-critical status
// messages go through a lock-free ring drained by a reporter goroutine
// so the block path never invokes subscriber callbacks synchronously.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/axleaudio/graphengine/config"
	"github.com/axleaudio/graphengine/errs"
	"github.com/axleaudio/graphengine/format"
	"github.com/axleaudio/graphengine/graph"
	"github.com/axleaudio/graphengine/internal/workqueue"
	"github.com/axleaudio/graphengine/node"
	"github.com/axleaudio/graphengine/status"
)

// LifecycleState is the engine's position in the New -> Initialized ->
// Running -> Stopped -> Cleaned progression.
type LifecycleState int

const (
	Created LifecycleState = iota
	Initialized
	Running
	Stopped
	Cleaned
)

func (s LifecycleState) String() string {
	switch s {
	case Created:
		return "created"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Cleaned:
		return "cleaned"
	default:
		return "unknown"
	}
}

// ControlSurface is the external-control collaborator the engine talks
// to. The engine only ever sends and queries; inbound events are routed
// back in by the owner of the surface via HandleControlEvent.
type ControlSurface interface {
	Send(address string, args []any) error
	Query(address string, cb func(success bool, values []any)) error
}

// PadFormatter is implemented by nodes whose pad formats differ from
// the engine's internal format. Nodes that do not implement it are
// assumed to carry the internal format on every pad.
type PadFormatter interface {
	PadFormat(direction graph.Direction, index int) format.Format
}

// InPlaceMutator is implemented by nodes that overwrite their input
// buffer's memory during Process. A connection with the Auto buffer
// policy hands such a sink a deep copy instead of a shared handle.
type InPlaceMutator interface {
	MutatesInputInPlace() bool
}

// hasStatus is implemented by node adapters (fileio.Source, fileio.Sink)
// that surface non-fatal status events from their worker goroutine
// without depending on the status package directly.
type hasStatus interface {
	LastStatus() (category, message string, ok bool)
}

// driverSource is the extra entry point a source node exposes to the
// driver thread; the engine invokes it before the per-block node loop
// with one plane per device input channel, from which the node gathers
// its configured channel subset.
type driverSource interface {
	AcceptDriverBlock(halfIndex int, native [][]float32) error
}

// driverSink is the sink-side counterpart, invoked after the node loop
// to scatter its block onto its configured device output channels. A
// true return means the sink had no fresh input and substituted
// silence.
type driverSink interface {
	ProduceDriverBlock(halfIndex int, out [][]float32) (underrun bool)
}

// blockDriver is the subset of a DriverBridge adapter that exposes
// per-device-channel plane access for the driver source/sink nodes.
type blockDriver interface {
	InputChannels() [][]float32
	OutputChannels() [][]float32
}

// Engine is the node-graph runtime: immutable node list and connection
// list after Initialize, a computed process order, and a status
// registry wired to every configured node.
type Engine struct {
	id  uuid.UUID
	log *log.Logger

	mu    sync.Mutex
	state LifecycleState

	nodes       map[string]node.Node
	nodeNames   []string
	connections []graph.Connection
	order       *graph.Order

	statusReg *status.Registry
	ring      *status.Ring
	driver    node.DriverBridge
	control   ControlSurface
	ctrlQ     *workqueue.Queue

	sampleRate      int
	blockFrames     int
	internal        format.Format
	initialCommands []config.ControlCommand

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Engine with a fresh identity and a default logger.
func New() *Engine {
	return &Engine{
		id:        uuid.New(),
		log:       log.Default(),
		nodes:     make(map[string]node.Node),
		statusReg: status.NewRegistry(),
		ring:      status.NewRing(256),
		state:     Created,
	}
}

// ID returns this engine's unique identity.
func (e *Engine) ID() uuid.UUID { return e.id }

// StatusRegistry exposes the engine's status callback surface.
func (e *Engine) StatusRegistry() *status.Registry { return e.statusReg }

// Node returns the configured node registered under name, for callers
// that need to wire node-specific hooks (e.g. a MIDI control target)
// after Initialize.
func (e *Engine) Node(name string) (node.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes[name]
	return n, ok
}

// NodeNames returns the configured node names in insertion order,
// including any implicitly inserted conversion nodes.
func (e *Engine) NodeNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.nodeNames...)
}

func elementFromName(name string) format.Element {
	switch name {
	case "f64":
		return format.F64
	case "s32":
		return format.S32
	case "s16":
		return format.S16
	case "u8":
		return format.U8
	default:
		return format.F32
	}
}

func layoutFromName(name string) format.Layout {
	if name == "planar" {
		return format.Planar
	}
	return format.Interleaved
}

func policyFromName(name string) graph.BufferPolicy {
	switch name {
	case "share", "share_direct":
		return graph.ShareDirect
	case "copy", "deep_copy":
		return graph.DeepCopy
	default:
		return graph.Auto
	}
}

// padFormat resolves the format a node presents on one of its pads,
// defaulting to the engine's internal format.
func (e *Engine) padFormat(n node.Node, direction graph.Direction, index int) format.Format {
	if pf, ok := n.(PadFormatter); ok {
		return pf.PadFormat(direction, index)
	}
	return e.internal
}

// Initialize parses cfg into nodes and connections, configures every
// node in insertion order, validates pad indices and formats, resolves
// buffer policies, and computes the process order. On any failure it
// stops and cleans up partially configured nodes before returning the
// error, leaving the engine in a clean Stopped state.
func (e *Engine) Initialize(cfg config.Resolved) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Created && e.state != Cleaned {
		return fmt.Errorf("%w: initialize not legal in state %s", errs.ErrInvalidState, e.state)
	}

	e.sampleRate = cfg.SampleRate
	e.blockFrames = cfg.BlockFrames
	e.internal = format.Format{
		Element:  elementFromName(cfg.InternalFormat),
		Layout:   layoutFromName(cfg.InternalLayout),
		Channels: []format.ChannelTag{format.ChannelLeft, format.ChannelRight},
	}
	g := graph.New()
	configured := make([]string, 0, len(cfg.Nodes))

	rollback := func(cause error) error {
		for i := len(configured) - 1; i >= 0; i-- {
			if n, ok := e.nodes[configured[i]]; ok {
				_ = n.Stop()
			}
		}
		e.nodes = make(map[string]node.Node)
		e.nodeNames = nil
		e.connections = nil
		e.state = Stopped
		return cause
	}

	for _, ns := range cfg.Nodes {
		n, err := node.Create(ns.Type)
		if err != nil {
			return rollback(fmt.Errorf("engine: node %q: %w", ns.Name, err))
		}
		if err := n.Configure(node.Params(ns.Params), e.sampleRate, e.blockFrames, e.internal); err != nil {
			return rollback(fmt.Errorf("engine: configuring node %q: %w", ns.Name, err))
		}
		if err := g.AddNode(ns.Name); err != nil {
			return rollback(fmt.Errorf("engine: %w", err))
		}
		e.nodes[ns.Name] = n
		e.nodeNames = append(e.nodeNames, ns.Name)
		configured = append(configured, ns.Name)
	}

	for i, cs := range cfg.Connections {
		conn := graph.Connection{
			SourceNode: cs.SourceName, SourceOutPad: cs.SourcePad,
			SinkNode: cs.SinkName, SinkInPad: cs.SinkPad,
			AllowFormatConvert: cs.AllowFormatConvert,
			BufferPolicy:       policyFromName(cs.BufferPolicy),
		}
		resolved, err := e.resolveConnection(g, conn, i, configured)
		if err != nil {
			return rollback(err)
		}
		configured = resolved
	}

	order, err := graph.NewScheduler(g).Compute()
	if err != nil {
		return rollback(fmt.Errorf("engine: %w", err))
	}
	e.order = order
	e.initialCommands = cfg.InitialCommands

	e.ctrlQ = workqueue.New(32)
	e.ctrlQ.Start()

	e.state = Initialized
	return nil
}

// resolveConnection validates one connection's pad indices and formats,
// resolves its Auto buffer policy, inserts an implicit conversion node
// when the formats differ and conversion is allowed, and registers the
// resulting edge(s) with g. It returns the updated configured-node list.
func (e *Engine) resolveConnection(g *graph.Graph, conn graph.Connection, i int, configured []string) ([]string, error) {
	src, ok := e.nodes[conn.SourceNode]
	if !ok {
		return configured, fmt.Errorf("engine: connection %d: unknown source node %q", i, conn.SourceNode)
	}
	sink, ok := e.nodes[conn.SinkNode]
	if !ok {
		return configured, fmt.Errorf("engine: connection %d: unknown sink node %q", i, conn.SinkNode)
	}
	if conn.SourceOutPad < 0 || conn.SourceOutPad >= src.OutputCount() {
		return configured, fmt.Errorf("%w: connection %d: node %q has no output pad %d",
			errs.ErrConfig, i, conn.SourceNode, conn.SourceOutPad)
	}
	if conn.SinkInPad < 0 || conn.SinkInPad >= sink.InputCount() {
		return configured, fmt.Errorf("%w: connection %d: node %q has no input pad %d",
			errs.ErrConfig, i, conn.SinkNode, conn.SinkInPad)
	}

	srcFormat := e.padFormat(src, graph.Out, conn.SourceOutPad)
	sinkFormat := e.padFormat(sink, graph.In, conn.SinkInPad)

	if srcFormat.Equal(sinkFormat) {
		if conn.BufferPolicy == graph.Auto {
			conn.BufferPolicy = graph.ShareDirect
			if m, ok := sink.(InPlaceMutator); ok && m.MutatesInputInPlace() {
				conn.BufferPolicy = graph.DeepCopy
			}
		}
		if err := g.Connect(conn); err != nil {
			return configured, fmt.Errorf("engine: %w", err)
		}
		e.connections = append(e.connections, conn)
		return configured, nil
	}

	if !conn.AllowFormatConvert {
		return configured, fmt.Errorf("%w: connection %d: %s pad %d (%s) -> %s pad %d (%s)",
			errs.ErrFormatMismatch, i,
			conn.SourceNode, conn.SourceOutPad, srcFormat,
			conn.SinkNode, conn.SinkInPad, sinkFormat)
	}

	convName := fmt.Sprintf("format_convert_%d", i)
	conv := newConvertNode(srcFormat, sinkFormat)
	if err := conv.Configure(nil, e.sampleRate, e.blockFrames, e.internal); err != nil {
		return configured, fmt.Errorf("engine: configuring %s: %w", convName, err)
	}
	if err := g.AddNode(convName); err != nil {
		return configured, fmt.Errorf("engine: %w", err)
	}
	e.nodes[convName] = conv
	e.nodeNames = append(e.nodeNames, convName)
	configured = append(configured, convName)

	upstream := graph.Connection{
		SourceNode: conn.SourceNode, SourceOutPad: conn.SourceOutPad,
		SinkNode: convName, SinkInPad: 0, BufferPolicy: graph.ShareDirect,
	}
	downstream := graph.Connection{
		SourceNode: convName, SourceOutPad: 0,
		SinkNode: conn.SinkNode, SinkInPad: conn.SinkInPad, BufferPolicy: graph.ShareDirect,
	}
	for _, c := range []graph.Connection{upstream, downstream} {
		if err := g.Connect(c); err != nil {
			return configured, fmt.Errorf("engine: %w", err)
		}
		e.connections = append(e.connections, c)
	}
	return configured, nil
}

// applyInitialCommands runs cfg.InitialCommands once, before the first
// block is processed. A command whose target starts with "/" is sent
// out through the control surface as-is; anything else addresses a
// configured node by name.
func (e *Engine) applyInitialCommands() {
	for _, cmd := range e.initialCommands {
		var err error
		if strings.HasPrefix(cmd.Target, "/") {
			if e.control == nil {
				err = fmt.Errorf("no control surface configured")
			} else {
				args := make([]any, 0, len(cmd.Params))
				for k, v := range cmd.Params {
					args = append(args, k, v)
				}
				err = e.control.Send(cmd.Target, args)
			}
		} else {
			err = e.ControlMessage(cmd.Target, cmd.Kind, cmd.Params)
		}
		if err != nil {
			e.statusReg.Emit("Warning", fmt.Sprintf("engine: initial_control_command on %q: %v", cmd.Target, err))
		}
	}
}

// SetDriverBridge installs the DriverBridge the engine drives its
// process loop from. Optional — a config with no hardware device runs
// on the fallback timer instead (see Run).
func (e *Engine) SetDriverBridge(d node.DriverBridge) {
	e.mu.Lock()
	e.driver = d
	e.mu.Unlock()
}

// SetControlSurface installs the external-control collaborator used for
// outbound sends and queries. Inbound events should be routed to
// HandleControlEvent by whoever owns the surface's receive side.
func (e *Engine) SetControlSurface(cs ControlSurface) {
	e.mu.Lock()
	e.control = cs
	e.mu.Unlock()
}

// HandleControlEvent routes one inbound control event onto the control
// queue. Addresses have the form "/node/<name>/<kind>"; args are
// interpreted as alternating key/value pairs. The application is
// asynchronous — updates take effect no later than the next block.
func (e *Engine) HandleControlEvent(address string, args []any) {
	parts := strings.Split(strings.TrimPrefix(address, "/"), "/")
	if len(parts) != 3 || parts[0] != "node" {
		e.statusReg.Emit("Warning", fmt.Sprintf("engine: unroutable control address %q", address))
		return
	}
	name, kind := parts[1], parts[2]
	params := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		params[key] = args[i+1]
	}
	err := e.ctrlQ.Enqueue(workqueue.JobFunc(func(ctx context.Context) error {
		if err := e.ControlMessage(name, kind, params); err != nil {
			e.statusReg.Emit("Warning", fmt.Sprintf("engine: control event %q: %v", address, err))
		}
		return nil
	}))
	if err != nil {
		e.statusReg.Emit("Warning", fmt.Sprintf("engine: control event %q: %v", address, err))
	}
}

// Run transitions to Running and begins dispatching blocks. If a
// DriverBridge was installed, its callback drives the block loop
// directly; otherwise a fallback timer paces blocks at one block
// duration per tick. ctx is the engine's cancellation token: cancelling
// it stops the fallback loop and the status reporter, though Stop must
// still be called to wind down nodes and workers.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.state != Initialized && e.state != Stopped {
		e.mu.Unlock()
		return fmt.Errorf("%w: run not legal in state %s", errs.ErrInvalidState, e.state)
	}
	e.state = Running
	e.ctx, e.cancel = context.WithCancel(ctx)
	driver := e.driver
	names := append([]string(nil), e.order.Nodes...)
	e.mu.Unlock()

	for _, name := range names {
		if err := e.nodes[name].Start(); err != nil {
			e.statusReg.Emit("Error", fmt.Sprintf("engine: starting node %q: %v", name, err))
		}
	}
	e.applyInitialCommands()

	e.wg.Add(1)
	go e.reportLoop()

	if driver != nil {
		driver.SetCallback(func(halfIndex int) { e.ProcessBlock(halfIndex) })
		return driver.Start()
	}

	period := time.Duration(float64(e.blockFrames) / float64(e.sampleRate) * float64(time.Second))
	e.wg.Add(1)
	go e.fallbackLoop(period)
	return nil
}

func (e *Engine) fallbackLoop(period time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	half := 0
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.ProcessBlock(half)
			half ^= 1
		}
	}
}

// reportLoop drains the realtime status ring into the registry off the
// block path.
func (e *Engine) reportLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			e.drainRing()
			return
		default:
		}
		if !e.drainRing() {
			time.Sleep(2 * time.Millisecond)
		}
	}
}

// drainRing forwards every queued ring event to the registry, reporting
// whether anything was drained.
func (e *Engine) drainRing() bool {
	any := false
	for {
		category, message, ok := e.ring.TryPop()
		if !ok {
			return any
		}
		any = true
		e.statusReg.Emit(category, message)
	}
}

// reportRT queues a status event from the realtime path. A full ring
// drops the event rather than blocking.
func (e *Engine) reportRT(category, message string) {
	_ = e.ring.TryPush(category, message)
}

// ProcessBlock advances the whole graph by one block: driver sources
// first, then every node in process order with its outgoing transfers
// flushed right behind it, then driver sinks. A node's Process error is
// reported via the status ring and does not halt the remaining nodes.
func (e *Engine) ProcessBlock(halfIndex int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bd, _ := e.driver.(blockDriver)
	if bd != nil {
		in := bd.InputChannels()
		for _, name := range e.order.Nodes {
			if ds, ok := e.nodes[name].(driverSource); ok {
				if err := ds.AcceptDriverBlock(halfIndex, in); err != nil {
					e.reportRT("Error", fmt.Sprintf("engine: node %q: %v", name, err))
				}
			}
		}
	}

	// Transfers are grouped immediately after their producing node, so a
	// buffer produced this block is consumed this block: process a node,
	// then flush its outgoing edges before the next node runs.
	transfers := e.order.Transfers
	cursor := 0
	for _, name := range e.order.Nodes {
		n := e.nodes[name]
		if err := n.Process(); err != nil {
			e.reportRT("Error", fmt.Sprintf("engine: node %q: %v", name, err))
		}
		if hs, ok := n.(hasStatus); ok {
			if category, message, ok := hs.LastStatus(); ok {
				e.reportRT(category, message)
			}
		}
		for cursor < len(transfers) && transfers[cursor].SourceNode == name {
			e.transfer(transfers[cursor])
			cursor++
		}
	}

	if bd != nil {
		out := bd.OutputChannels()
		for _, name := range e.order.Nodes {
			if ds, ok := e.nodes[name].(driverSink); ok {
				if underrun := ds.ProduceDriverBlock(halfIndex, out); underrun {
					e.reportRT("Underrun", fmt.Sprintf("engine: node %q produced silence", name))
				}
			}
		}
	}
}

// transfer moves one connection's buffer from source pad to sink pad,
// deep-copying when the resolved policy demands a private copy.
func (e *Engine) transfer(conn graph.Connection) {
	src := e.nodes[conn.SourceNode]
	sink := e.nodes[conn.SinkNode]
	if src == nil || sink == nil {
		return
	}
	b, err := src.GetOutput(conn.SourceOutPad)
	if err != nil {
		e.reportRT("Error", fmt.Sprintf("engine: transfer %s->%s: %v", conn.SourceNode, conn.SinkNode, err))
		return
	}
	if b == nil {
		return
	}
	handoff := b
	if conn.BufferPolicy == graph.DeepCopy {
		handoff, err = b.DeepCopy()
		if err != nil {
			e.reportRT("Error", fmt.Sprintf("engine: transfer %s->%s: %v", conn.SourceNode, conn.SinkNode, err))
			return
		}
	}
	if err := sink.SetInput(handoff, conn.SinkInPad); err != nil {
		e.reportRT("Error", fmt.Sprintf("engine: transfer %s->%s: %v", conn.SourceNode, conn.SinkNode, err))
	}
}

// ControlMessage routes a control_message to a named node.
func (e *Engine) ControlMessage(nodeName, kind string, params map[string]any) error {
	e.mu.Lock()
	n, ok := e.nodes[nodeName]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("engine: no such node %q", nodeName)
	}
	return n.ControlMessage(kind, params)
}

// Stop winds the graph down: the driver first, then every node in
// reverse process order. Each node is given a 2-second join deadline; a
// missed deadline is reported and the join is then waited on
// indefinitely rather than leaking the worker.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != Running {
		e.mu.Unlock()
		return fmt.Errorf("%w: stop not legal in state %s", errs.ErrInvalidState, e.state)
	}
	driver := e.driver
	names := append([]string(nil), e.order.Nodes...)
	e.state = Stopped
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	if driver != nil {
		if err := driver.Stop(); err != nil {
			e.statusReg.Emit("Warning", fmt.Sprintf("engine: stopping driver: %v", err))
		}
	}

	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		n := e.nodes[name]
		done := make(chan error, 1)
		go func() { done <- n.Stop() }()
		select {
		case err := <-done:
			if err != nil {
				e.statusReg.Emit("Warning", fmt.Sprintf("engine: stopping node %q: %v", name, err))
			}
		case <-time.After(2 * time.Second):
			e.statusReg.Emit("Warning", fmt.Sprintf("engine: node %q join deadline exceeded", name))
			err := <-done
			if err != nil {
				e.statusReg.Emit("Warning", fmt.Sprintf("engine: stopping node %q: %v", name, err))
			}
		}
	}

	e.wg.Wait()
	e.drainRing()
	return nil
}

// Cleanup releases the node graph, allowing Initialize to be called
// again.
func (e *Engine) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Stopped {
		return fmt.Errorf("%w: cleanup not legal in state %s", errs.ErrInvalidState, e.state)
	}
	if e.ctrlQ != nil {
		e.ctrlQ.Close()
		e.ctrlQ = nil
	}
	e.nodes = make(map[string]node.Node)
	e.nodeNames = nil
	e.connections = nil
	e.order = nil
	e.state = Cleaned
	return nil
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() LifecycleState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
