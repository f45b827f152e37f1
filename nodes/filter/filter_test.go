package filter

import (
	"testing"

	"github.com/axleaudio/graphengine/buffer"
	"github.com/axleaudio/graphengine/format"
	"github.com/axleaudio/graphengine/node"
)

func monoBuffer(t *testing.T, samples []float32, sampleRate int) *buffer.Buffer {
	t.Helper()
	f := format.Mono(format.F32, format.Interleaved)
	b, err := buffer.New(len(samples), sampleRate, f)
	if err != nil {
		t.Fatalf("buffer.New: %v", err)
	}
	if err := b.PutFloat32Samples(samples); err != nil {
		t.Fatalf("PutFloat32Samples: %v", err)
	}
	return b
}

func TestProcessorAppliesVolume(t *testing.T) {
	p := New()
	f := format.Mono(format.F32, format.Interleaved)
	if err := p.Configure(node.Params{"filter_description": "volume level=0.5"}, 48000, 4, f); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	in := monoBuffer(t, []float32{1, -1, 0.5, 0}, 48000)
	if err := p.SetInput(in, 0); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if err := p.Process(); err != nil {
		t.Fatalf("Process: %v", err)
	}
	out, err := p.GetOutput(0)
	if err != nil {
		t.Fatalf("GetOutput: %v", err)
	}
	samples, err := out.Float32Samples()
	if err != nil {
		t.Fatalf("Float32Samples: %v", err)
	}
	want := []float32{0.5, -0.5, 0.25, 0}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("sample %d: got %v want %v", i, samples[i], want[i])
		}
	}
}

func TestProcessorRejectsMissingDescription(t *testing.T) {
	p := New()
	f := format.Mono(format.F32, format.Interleaved)
	if err := p.Configure(node.Params{}, 48000, 4, f); err == nil {
		t.Fatal("expected error for missing filter_description")
	}
}

func TestProcessorControlMessageUpdatesNamedInstance(t *testing.T) {
	p := New()
	f := format.Mono(format.F32, format.Interleaved)
	if err := p.Configure(node.Params{"filter_description": "volume@vol level=1.0"}, 48000, 2, f); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.ControlMessage("update_parameter", map[string]any{
		"instance": "vol", "key": "level", "value": "0.25",
	}); err != nil {
		t.Fatalf("ControlMessage: %v", err)
	}
	in := monoBuffer(t, []float32{1, 1}, 48000)
	_ = p.SetInput(in, 0)
	_ = p.Process()
	out, _ := p.GetOutput(0)
	samples, _ := out.Float32Samples()
	if samples[0] != 0.25 {
		t.Fatalf("expected updated parameter to apply, got %v", samples[0])
	}
}

func TestProcessorRejectsProcessBeforeRunning(t *testing.T) {
	p := New()
	f := format.Mono(format.F32, format.Interleaved)
	_ = p.Configure(node.Params{"filter_description": "volume level=1"}, 48000, 2, f)
	if err := p.Process(); err == nil {
		t.Fatal("expected error processing before Start")
	}
}

func TestRegisteredUnderFilterProcessorType(t *testing.T) {
	if !node.Registered(node.TypeFilterProcessor) {
		t.Fatal("expected filter_processor type to be registered")
	}
	n, err := node.Create(node.TypeFilterProcessor)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := n.(*Processor); !ok {
		t.Fatalf("expected *Processor, got %T", n)
	}
}
