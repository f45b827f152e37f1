// Package oscctl implements the engine's external-control collaborator
// over OSC using hypebeast/go-osc: a generic send(address, args)/
// query(address, cb) surface for outbound traffic plus an inbound
// dispatcher with add/remove event callbacks.
package oscctl

import (
	"fmt"
	"sync"

	"github.com/hypebeast/go-osc/osc"
)

// Handle identifies a registered event callback, for RemoveEventCallback.
type Handle uint64

// EventCallback receives an inbound OSC message's address and argument
// list.
type EventCallback func(address string, args []any)

// Surface is the engine's external-control collaborator: an OSC client
// for outbound send/query plus an OSC server dispatching inbound
// messages to registered callbacks.
type Surface struct {
	client *osc.Client
	server *osc.Server
	disp   *osc.StandardDispatcher

	mu        sync.Mutex
	next      uint64
	callbacks map[Handle]EventCallback

	pendingMu sync.Mutex
	pending   map[string][]func(success bool, values []any)
}

// NewSurface constructs an unconfigured Surface.
func NewSurface() *Surface {
	return &Surface{
		disp:      osc.NewStandardDispatcher(),
		callbacks: make(map[Handle]EventCallback),
		pending:   make(map[string][]func(success bool, values []any)),
	}
}

// Configure sets up the outbound client (targetIP:targetPort) and, if
// receivePort is nonzero, starts listening for inbound messages.
func (s *Surface) Configure(targetIP string, targetPort, receivePort int) error {
	s.client = osc.NewClient(targetIP, targetPort)
	if receivePort <= 0 {
		return nil
	}
	if err := s.disp.AddMsgHandler("*", s.dispatch); err != nil {
		return fmt.Errorf("oscctl: registering wildcard handler: %w", err)
	}
	s.server = &osc.Server{Addr: fmt.Sprintf(":%d", receivePort), Dispatcher: s.disp}
	go func() {
		_ = s.server.ListenAndServe()
	}()
	return nil
}

func (s *Surface) dispatch(msg *osc.Message) {
	args := make([]any, len(msg.Arguments))
	copy(args, msg.Arguments)

	s.pendingMu.Lock()
	cbs := s.pending[msg.Address]
	if len(cbs) > 0 {
		s.pending[msg.Address] = cbs[1:]
	}
	s.pendingMu.Unlock()
	if len(cbs) > 0 {
		cbs[0](true, args)
	}

	s.mu.Lock()
	listeners := make([]EventCallback, 0, len(s.callbacks))
	for _, cb := range s.callbacks {
		listeners = append(listeners, cb)
	}
	s.mu.Unlock()
	for _, cb := range listeners {
		cb(msg.Address, args)
	}
}

// Send transmits an OSC message with the given address and arguments.
func (s *Surface) Send(address string, args []any) error {
	if s.client == nil {
		return fmt.Errorf("oscctl: Configure must be called before Send")
	}
	msg := osc.NewMessage(address)
	for _, a := range args {
		msg.Append(a)
	}
	return s.client.Send(msg)
}

// Query sends address and registers cb to receive the first inbound
// message matching that address, interpreted as the reply.
func (s *Surface) Query(address string, cb func(success bool, values []any)) error {
	s.pendingMu.Lock()
	s.pending[address] = append(s.pending[address], cb)
	s.pendingMu.Unlock()
	if err := s.Send(address, nil); err != nil {
		return err
	}
	return nil
}

// AddEventCallback registers fn to be invoked for every inbound message,
// returning a handle for RemoveEventCallback.
func (s *Surface) AddEventCallback(fn EventCallback) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	h := Handle(s.next)
	s.callbacks[h] = fn
	return h
}

// RemoveEventCallback deregisters a callback. Removing an unknown or
// already-removed handle is a no-op.
func (s *Surface) RemoveEventCallback(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.callbacks, h)
}

// Close releases the Surface. go-osc's Server has no exported stop
// method in the version this package targets, so an active listener
// goroutine runs until process exit; Close is a placeholder for a
// future graceful-shutdown path and is safe to call unconditionally.
func (s *Surface) Close() error {
	return nil
}
