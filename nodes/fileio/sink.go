package fileio

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/axleaudio/graphengine/buffer"
	"github.com/axleaudio/graphengine/errs"
	"github.com/axleaudio/graphengine/filecodec"
	"github.com/axleaudio/graphengine/format"
	"github.com/axleaudio/graphengine/node"
)

// Sink is the FileSink node. set_input enqueues a shared buffer handle
// onto a bounded writer queue; if full, the oldest queued block is
// dropped (the realtime path never blocks) and an underrun is reported.
type Sink struct {
	machine *node.Machine

	path            string
	flushDeadlineMS int

	sampleRate  int
	blockFrames int
	format      format.Format

	mu     sync.Mutex
	queue  []*buffer.Buffer
	notify chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	lastCategory string
	lastMessage  string
}

// NewSink returns an unconfigured FileSink.
func NewSink() *Sink {
	return &Sink{machine: node.NewMachine()}
}

func (s *Sink) Configure(params node.Params, sampleRate, blockFrames int, f format.Format) error {
	path, ok := params["path"]
	if !ok || path == "" {
		return fmt.Errorf("fileio: sink missing required parameter %q", "path")
	}
	if err := s.machine.Configure(); err != nil {
		return err
	}
	s.path = path
	s.flushDeadlineMS = 1000
	if v, ok := params["flush_deadline_ms"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.flushDeadlineMS = n
		}
	}
	s.sampleRate = sampleRate
	s.blockFrames = blockFrames
	s.format = f
	s.queue = nil
	s.notify = make(chan struct{}, 1)
	s.stopCh = make(chan struct{})
	return nil
}

func (s *Sink) Start() error {
	if s.machine.Current() == node.Running {
		return nil
	}
	if err := s.machine.Start(); err != nil {
		return err
	}
	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *Sink) run() {
	defer s.wg.Done()
	file, err := os.Create(s.path)
	if err != nil {
		s.setStatus("Error", fmt.Sprintf("fileio: creating %s: %v", s.path, err))
		return
	}
	defer file.Close()
	enc := filecodec.NewEncoder(file, s.sampleRate, s.format.NumChannels())

	for {
		select {
		case <-s.stopCh:
			s.drain(enc, s.flushDeadlineMS)
			_ = enc.Close()
			return
		case <-s.notify:
			s.writeAvailable(enc)
		}
	}
}

func (s *Sink) writeAvailable(enc *filecodec.Encoder) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		b := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.writeOne(enc, b)
	}
}

func (s *Sink) writeOne(enc *filecodec.Encoder, b *buffer.Buffer) {
	defer b.Release()
	samples, err := b.Float32Samples()
	if err != nil {
		s.setStatus("Error", fmt.Sprintf("fileio: sink %s: %v", s.path, err))
		return
	}
	if err := enc.WriteBlock(samples); err != nil {
		s.setStatus("Error", fmt.Sprintf("fileio: sink %s: %v", s.path, err))
	}
}

func (s *Sink) drain(enc *filecodec.Encoder, deadlineMS int) {
	deadline := time.After(time.Duration(deadlineMS) * time.Millisecond)
	done := make(chan struct{})
	go func() {
		s.writeAvailable(enc)
		close(done)
	}()
	select {
	case <-done:
	case <-deadline:
		s.mu.Lock()
		abandoned := s.queue
		s.queue = nil
		s.mu.Unlock()
		for _, b := range abandoned {
			b.Release()
		}
		s.setStatus("Overrun", fmt.Sprintf("fileio: sink %s flush deadline exceeded, abandoned %d queued blocks", s.path, len(abandoned)))
	}
}

func (s *Sink) setStatus(category, message string) {
	s.mu.Lock()
	s.lastCategory, s.lastMessage = category, message
	s.mu.Unlock()
}

// LastStatus returns and clears the most recent status event.
func (s *Sink) LastStatus() (category, message string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastCategory == "" {
		return "", "", false
	}
	category, message = s.lastCategory, s.lastMessage
	s.lastCategory, s.lastMessage = "", ""
	return category, message, true
}

const sinkQueueBound = 4

func (s *Sink) Process() error {
	return s.machine.RequireRunning()
}

func (s *Sink) Stop() error {
	if err := s.machine.Stop(); err != nil {
		return err
	}
	close(s.stopCh)
	s.wg.Wait()
	return nil
}

func (s *Sink) Reset() error {
	if err := s.machine.Reset(); err != nil {
		return err
	}
	s.mu.Lock()
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, b := range queued {
		b.Release()
	}
	return nil
}

func (s *Sink) GetOutput(i int) (*buffer.Buffer, error) {
	return nil, fmt.Errorf("fileio: sink has no output pads")
}

// SetInput enqueues a shared handle onto the writer queue. If the queue
// is already at its bound, the oldest queued block is dropped (and
// released) and an underrun is reported — set_input never blocks.
func (s *Sink) SetInput(b *buffer.Buffer, i int) error {
	if i != 0 {
		return fmt.Errorf("fileio: sink input pad %d out of range", i)
	}
	if b.Frames > s.blockFrames || !b.Format.Equal(s.format) {
		return fmt.Errorf("%w: fileio sink expects up to %d frames of %s, got %d frames of %s",
			errs.ErrFormatMismatch, s.blockFrames, s.format, b.Frames, b.Format)
	}
	owned := b.Share()
	s.mu.Lock()
	if len(s.queue) >= sinkQueueBound {
		dropped := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		dropped.Release()
		s.setStatus("Underrun", fmt.Sprintf("fileio: sink %s queue full, dropped oldest block", s.path))
		s.mu.Lock()
	}
	s.queue = append(s.queue, owned)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

func (s *Sink) InputCount() int  { return 1 }
func (s *Sink) OutputCount() int { return 0 }

func (s *Sink) ControlMessage(kind string, params map[string]any) error {
	return node.ErrUnhandled
}

func (s *Sink) State() node.State { return s.machine.Current() }
