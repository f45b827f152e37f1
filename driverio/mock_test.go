package driverio

import "testing"

func TestMockDeliverInvokesCallback(t *testing.T) {
	m := NewMock(1, 1)
	if _, _, err := m.Init(48000, 4); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var gotHalf = -1
	m.SetCallback(func(half int) { gotHalf = half })
	m.Deliver([][]float32{{1, 2, 3, 4}})
	if gotHalf != 0 {
		t.Fatalf("expected first callback to report half 0, got %d", gotHalf)
	}
	if got := m.InputChannels(); len(got) != 1 || got[0][0] != 1 {
		t.Fatalf("unexpected input planes: %v", got)
	}
	m.Deliver([][]float32{{5, 6, 7, 8}})
	if gotHalf != 1 {
		t.Fatalf("expected second callback to toggle to half 1, got %d", gotHalf)
	}
}

func TestMockOutputChannelsRoundTrip(t *testing.T) {
	m := NewMock(0, 2)
	if _, _, err := m.Init(48000, 2); err != nil {
		t.Fatalf("Init: %v", err)
	}
	planes := m.OutputChannels()
	if len(planes) != 2 {
		t.Fatalf("expected 2 output planes, got %d", len(planes))
	}
	planes[0][0] = 0.5
	planes[1][1] = -0.5
	out := m.Produced()
	if out[0][0] != 0.5 || out[1][1] != -0.5 {
		t.Fatalf("unexpected produced planes: %v", out)
	}
	// Produced returns a copy, not the live planes.
	out[0][0] = 9
	if m.OutputChannels()[0][0] != 0.5 {
		t.Fatal("mutating the Produced copy must not touch the live planes")
	}
}
