// Package fileio implements the FileSource and FileSink node types
// ("file_source"/"file_sink"), keeping WAV decode/encode off the
// realtime path via a worker goroutine per node and a bounded
// SPSC-style queue of buffer.Buffer handles. The block path never
// blocks on the worker: an empty source queue substitutes silence, a
// full sink queue drops its oldest block.
package fileio

import (
	"fmt"
	"os"
	"sync"

	"github.com/axleaudio/graphengine/buffer"
	"github.com/axleaudio/graphengine/filecodec"
	"github.com/axleaudio/graphengine/format"
	"github.com/axleaudio/graphengine/node"
)

const defaultQueueBound = 4

func init() {
	node.Register(node.TypeFileSource, func() node.Node { return NewSource() })
	node.Register(node.TypeFileSink, func() node.Node { return NewSink() })
}

// Source is the FileSource node: a worker goroutine decodes file blocks
// and pushes them into a bounded queue; Process dequeues one block per
// call, substituting silence and reporting an underrun when the queue
// is empty.
type Source struct {
	machine *node.Machine

	path string
	loop bool

	sampleRate  int
	blockFrames int
	format      format.Format

	queue   chan *buffer.Buffer
	stopCh  chan struct{}
	wg      sync.WaitGroup
	silence *buffer.Buffer
	output  *buffer.Buffer

	mu           sync.Mutex
	lastCategory string
	lastMessage  string
}

// NewSource returns an unconfigured FileSource.
func NewSource() *Source {
	return &Source{machine: node.NewMachine()}
}

func (s *Source) Configure(params node.Params, sampleRate, blockFrames int, f format.Format) error {
	path, ok := params["path"]
	if !ok || path == "" {
		return fmt.Errorf("fileio: source missing required parameter %q", "path")
	}
	if err := s.machine.Configure(); err != nil {
		return err
	}
	s.path = path
	s.loop = params["loop"] == "true"
	s.sampleRate = sampleRate
	s.blockFrames = blockFrames
	s.format = f
	s.queue = make(chan *buffer.Buffer, defaultQueueBound)
	s.stopCh = make(chan struct{})

	silence, err := buffer.New(blockFrames, sampleRate, f)
	if err != nil {
		return err
	}
	s.silence = silence
	return nil
}

func (s *Source) Start() error {
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

func (s *Source) run() {
	defer s.wg.Done()
	for {
		if err := s.decodeOnce(); err != nil {
			if !s.loop {
				return
			}
		}
		select {
		case <-s.stopCh:
			return
		default:
		}
	}
}

func (s *Source) decodeOnce() error {
	file, err := os.Open(s.path)
	if err != nil {
		s.setStatus("Error", fmt.Sprintf("fileio: opening %s: %v", s.path, err))
		return err
	}
	defer file.Close()

	dec, err := filecodec.NewDecoder(file, s.blockFrames)
	if err != nil {
		s.setStatus("Error", fmt.Sprintf("fileio: decoding %s: %v", s.path, err))
		return err
	}
	channels := s.format.NumChannels()
	for {
		raw := make([]float32, s.blockFrames*channels)
		frames, err := dec.ReadBlock(raw)
		if frames > 0 {
			b, berr := buffer.New(frames, s.sampleRate, s.format)
			if berr == nil {
				_ = b.PutFloat32Samples(raw[:frames*channels])
				select {
				case s.queue <- b:
				case <-s.stopCh:
					return nil
				}
			}
		}
		if err != nil {
			return err
		}
		select {
		case <-s.stopCh:
			return nil
		default:
		}
	}
}

func (s *Source) setStatus(category, message string) {
	s.mu.Lock()
	s.lastCategory, s.lastMessage = category, message
	s.mu.Unlock()
}

// LastStatus returns the most recent status event, if any, clearing it.
// The engine polls this after each Process call to forward status
// events without the node depending on the status package directly.
func (s *Source) LastStatus() (category, message string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastCategory == "" {
		return "", "", false
	}
	category, message = s.lastCategory, s.lastMessage
	s.lastCategory, s.lastMessage = "", ""
	return category, message, true
}

func (s *Source) Process() error {
	if err := s.machine.RequireRunning(); err != nil {
		return err
	}
	select {
	case b := <-s.queue:
		s.output = b
	default:
		s.silence.Zero()
		s.output = s.silence
		s.setStatus("Underrun", fmt.Sprintf("fileio: source %s queue empty", s.path))
	}
	return nil
}

func (s *Source) Stop() error {
	if err := s.machine.Stop(); err != nil {
		return err
	}
	close(s.stopCh)
	s.wg.Wait()
	return nil
}

func (s *Source) Reset() error {
	if err := s.machine.Reset(); err != nil {
		return err
	}
	for {
		select {
		case b := <-s.queue:
			b.Release()
		default:
			s.output = nil
			return nil
		}
	}
}

func (s *Source) GetOutput(i int) (*buffer.Buffer, error) {
	if i != 0 {
		return nil, fmt.Errorf("fileio: source output pad %d out of range", i)
	}
	return s.output, nil
}

func (s *Source) SetInput(b *buffer.Buffer, i int) error {
	return fmt.Errorf("fileio: source has no input pads")
}

func (s *Source) InputCount() int  { return 0 }
func (s *Source) OutputCount() int { return 1 }

func (s *Source) ControlMessage(kind string, params map[string]any) error {
	return node.ErrUnhandled
}

func (s *Source) State() node.State { return s.machine.Current() }
