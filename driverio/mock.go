package driverio

import "sync"

// Mock is an in-memory node.DriverBridge implementation used by tests
// that exercise the driver-callback path without real hardware: callers
// push per-channel blocks in with Deliver and read produced output with
// Produced.
type Mock struct {
	mu sync.Mutex

	inCh, outCh int
	rate, block int
	callback    func(halfIndex int)
	halfIdx     int
	inPlanes    [][]float32
	outPlanes   [][]float32
	started     bool
}

// NewMock returns a Mock configured for the given channel counts.
func NewMock(inChannels, outChannels int) *Mock {
	return &Mock{inCh: inChannels, outCh: outChannels}
}

func (m *Mock) Load(deviceName string) error { return nil }

func (m *Mock) Init(preferredRate, preferredBlock int) (int, int, error) {
	m.rate, m.block = preferredRate, preferredBlock
	m.outPlanes = makePlanes(m.outCh, preferredBlock)
	return preferredRate, preferredBlock, nil
}

func (m *Mock) ChannelCounts() (in, out int) { return m.inCh, m.outCh }

func (m *Mock) SetCallback(fn func(halfIndex int)) {
	m.mu.Lock()
	m.callback = fn
	m.mu.Unlock()
}

func (m *Mock) Start() error { m.started = true; return nil }
func (m *Mock) Stop() error  { m.started = false; return nil }

// Deliver simulates one driver callback: planes[i] is device channel
// i's block. The registered callback runs synchronously, so Produced
// reflects the same block on return.
func (m *Mock) Deliver(planes [][]float32) {
	m.mu.Lock()
	m.inPlanes = planes
	if m.outPlanes == nil && len(planes) > 0 {
		m.outPlanes = makePlanes(m.outCh, len(planes[0]))
	}
	cb := m.callback
	idx := m.halfIdx
	m.halfIdx ^= 1
	m.mu.Unlock()
	if cb != nil {
		cb(idx)
	}
}

func (m *Mock) InputChannels() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inPlanes
}

func (m *Mock) OutputChannels() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outPlanes
}

// Produced returns a copy of the current output planes, for test
// assertions.
func (m *Mock) Produced() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]float32, len(m.outPlanes))
	for i, p := range m.outPlanes {
		out[i] = append([]float32(nil), p...)
	}
	return out
}
