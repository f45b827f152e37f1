package analyze

import "testing"

func TestRMSOfConstantSignal(t *testing.T) {
	if got := RMS([]float32{0.5, 0.5, 0.5, 0.5}); got != 0.5 {
		t.Fatalf("expected RMS of a constant 0.5 signal to be 0.5, got %v", got)
	}
}

func TestRMSOfEmptyIsZero(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Fatalf("expected RMS of empty slice to be 0, got %v", got)
	}
}

func TestGainChangeDBHalvingIsMinusSixDB(t *testing.T) {
	db := GainChangeDB(1.0, 0.5)
	if db > -5.9 || db < -6.1 {
		t.Fatalf("expected halving RMS to be about -6dB, got %v", db)
	}
}

func TestWithinULPsTrueForIdentical(t *testing.T) {
	if !WithinULPs(0.5, 0.5, 1) {
		t.Fatal("expected identical values to be within tolerance")
	}
}
