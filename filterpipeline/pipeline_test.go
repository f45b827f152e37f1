package filterpipeline

import (
	"testing"

	"github.com/axleaudio/graphengine/internal/analyze"
)

func TestBuildBareVolumeDefaultsInstanceName(t *testing.T) {
	p, err := Build("volume level=0.5")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := p.byName["volume"]; !ok {
		t.Fatalf("expected implicit instance name %q, got %v", "volume", p.byName)
	}
}

func TestBuildShorthandBindsPrincipalParameter(t *testing.T) {
	p, err := Build("volume=0.5")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out, status := p.Process([]float32{1.0, -1.0}, 1, 48000)
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	if out[0] != 0.5 || out[1] != -0.5 {
		t.Fatalf("expected shorthand to bind level=0.5, got %v", out)
	}
}

func TestBuildShorthandUnknownPrimitiveRejected(t *testing.T) {
	if _, err := Build("reverb=0.3"); err == nil {
		t.Fatal("expected error for shorthand on an unregistered primitive")
	}
}

func TestVolumeScalesWithinOneULP(t *testing.T) {
	p, err := Build("volume level=0.5")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	in := []float32{1.0, -1.0, 0.25, 0.0}
	out, status := p.Process(append([]float32(nil), in...), 1, 48000)
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	want := []float32{0.5, -0.5, 0.125, 0.0}
	for i := range want {
		if !analyze.WithinULPs(out[i], want[i], 1) {
			t.Fatalf("sample %d: got %v want %v", i, out[i], want[i])
		}
	}
}

func TestNamedInstancesAddressableByUpdateParameter(t *testing.T) {
	p, err := Build("volume@in level=1.0, volume@out level=1.0")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := p.UpdateParameter("out", "level", "0.25"); err != nil {
		t.Fatalf("UpdateParameter: %v", err)
	}
	out, _ := p.Process([]float32{1.0}, 1, 48000)
	if out[0] != 0.25 {
		t.Fatalf("expected second stage alone to scale by 0.25, got %v", out[0])
	}
}

func TestUnknownPrimitiveRejected(t *testing.T) {
	if _, err := Build("not_a_real_stage x=1"); err == nil {
		t.Fatal("expected error for unknown primitive")
	}
}

func TestDuplicateInstanceNameRejected(t *testing.T) {
	if _, err := Build("volume@a level=1, gain@a g=0"); err == nil {
		t.Fatal("expected error for duplicate instance name")
	}
}

func TestUpdateParameterUnknownInstance(t *testing.T) {
	p, err := Build("volume level=1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := p.UpdateParameter("nope", "level", "0.1"); err == nil {
		t.Fatal("expected error for unknown instance")
	}
}

func TestSignalEndOfStream(t *testing.T) {
	p, err := Build("volume level=1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p.SignalEndOfStream()
	out, status := p.Process([]float32{1}, 1, 48000)
	if status != StatusEndOfStream || out != nil {
		t.Fatalf("expected end-of-stream with nil samples, got %v %v", out, status)
	}
}

func TestGainStageUnityAtZeroDB(t *testing.T) {
	p, err := Build("gain g=0")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out, _ := p.Process([]float32{0.5, -0.5}, 1, 48000)
	if out[0] != 0.5 || out[1] != -0.5 {
		t.Fatalf("expected 0dB gain to be unity, got %v", out)
	}
}

func TestCompressorPassesQuietSignalUnchanged(t *testing.T) {
	p, err := Build("compressor ratio=4 threshold=-6")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	in := []float32{0.001, -0.001, 0.0005}
	out, _ := p.Process(append([]float32(nil), in...), 1, 48000)
	for i := range in {
		diff := out[i] - in[i]
		if diff > 1e-4 || diff < -1e-4 {
			t.Fatalf("expected signal well under threshold to pass essentially unchanged, got %v want %v", out[i], in[i])
		}
	}
}

func TestEQStageDoesNotBlowUp(t *testing.T) {
	p, err := Build("eq f=1000 g=6 q=0.707")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	samples := make([]float32, 64)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 0.2
		} else {
			samples[i] = -0.2
		}
	}
	out, status := p.Process(samples, 1, 48000)
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	for i, v := range out {
		if v > 10 || v < -10 {
			t.Fatalf("sample %d diverged: %v", i, v)
		}
	}
}

func TestChainedStagesApplyInOrder(t *testing.T) {
	p, err := Build("volume@a level=0.5, volume@b level=2.0")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out, _ := p.Process([]float32{1.0}, 1, 48000)
	if out[0] != 1.0 {
		t.Fatalf("expected 0.5 then 2.0 to round-trip to unity, got %v", out[0])
	}
}
