package node

import (
	"errors"
	"testing"

	"github.com/axleaudio/graphengine/errs"
)

func TestMachineLegalTransitions(t *testing.T) {
	m := NewMachine()
	if m.Current() != Unconfigured {
		t.Fatalf("expected Unconfigured, got %s", m.Current())
	}
	if err := m.Configure(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("starting an already-Running node must be idempotent: %v", err)
	}
	if err := m.RequireRunning(); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := m.Reset(); err != nil {
		t.Fatal(err)
	}
	if m.Current() != Configured {
		t.Fatalf("expected Configured after reset, got %s", m.Current())
	}
}

func TestMachineIllegalTransitions(t *testing.T) {
	m := NewMachine()
	if err := m.Start(); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("starting an Unconfigured node should fail with ErrInvalidState, got %v", err)
	}
	if err := m.RequireRunning(); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("process on non-Running node should fail, got %v", err)
	}
	if err := m.Stop(); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("stop on non-Running node should fail, got %v", err)
	}
	_ = m.Configure()
	if err := m.Stop(); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("stop on Configured node should fail, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	Register("test_probe", func() Node { return nil })
	if !Registered("test_probe") {
		t.Fatal("expected test_probe to be registered")
	}
	if _, err := Create("does_not_exist"); err == nil {
		t.Fatal("expected error creating unregistered type")
	}
}
