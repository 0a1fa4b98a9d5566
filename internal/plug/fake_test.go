package plug

import (
	"context"
	"errors"
	"testing"
)

// Verify Fake implements Device
var _ Device = (*Fake)(nil)
var _ Device = (*MQTTPlug)(nil)
var _ Device = (*GPIORelay)(nil)

func TestFakeRecordsSwitches(t *testing.T) {
	f := NewFake(false)
	ctx := context.Background()

	f.SetPower(ctx, true)
	f.SetPower(ctx, false)
	f.SetPower(ctx, true)

	if !f.On {
		t.Error("expected On after last SetPower(true)")
	}
	if f.Count(true) != 2 {
		t.Errorf("Count(true): got %d, want 2", f.Count(true))
	}
	if f.Count(false) != 1 {
		t.Errorf("Count(false): got %d, want 1", f.Count(false))
	}
}

func TestFakeScriptedErrors(t *testing.T) {
	boom := errors.New("boom")
	f := NewFake(true)
	f.StateErrors = []error{boom, nil}
	f.SetErrors = []error{ErrConnection}
	ctx := context.Background()

	if _, err := f.PowerState(ctx); !errors.Is(err, boom) {
		t.Errorf("PowerState 1: expected boom, got %v", err)
	}
	if on, err := f.PowerState(ctx); err != nil || !on {
		t.Errorf("PowerState 2: got (%v, %v), want (true, nil)", on, err)
	}
	if err := f.SetPower(ctx, false); !errors.Is(err, ErrConnection) {
		t.Errorf("SetPower 1: expected ErrConnection, got %v", err)
	}
	if !f.On {
		t.Error("failed SetPower must not change state")
	}
	if err := f.SetPower(ctx, false); err != nil {
		t.Errorf("SetPower 2: %v", err)
	}
	if f.StateCalls != 2 {
		t.Errorf("StateCalls: got %d, want 2", f.StateCalls)
	}
	if len(f.SetCalls) != 1 {
		t.Errorf("SetCalls: got %d, want 1", len(f.SetCalls))
	}
}

func TestFakeInitializeAndClose(t *testing.T) {
	f := NewFake(false)
	f.InitErrors = []error{ErrConnection}

	if err := f.Initialize(context.Background()); !errors.Is(err, ErrConnection) {
		t.Errorf("expected ErrConnection, got %v", err)
	}
	if err := f.Initialize(context.Background()); err != nil {
		t.Errorf("second Initialize: %v", err)
	}
	if f.InitCalls != 2 {
		t.Errorf("InitCalls: got %d, want 2", f.InitCalls)
	}

	f.Close()
	if !f.Closed {
		t.Error("expected Closed")
	}
}

func TestStateString(t *testing.T) {
	if StateString(true) != "ON" || StateString(false) != "OFF" {
		t.Errorf("StateString: got %q/%q", StateString(true), StateString(false))
	}
}
