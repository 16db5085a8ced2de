package lifecycle

import (
	"errors"
	"testing"

	"stackctl/internal/envfile"
)

func TestMachineStartsStopped(t *testing.T) {
	m := NewMachine(envfile.Dev)
	if m.State() != Stopped {
		t.Fatalf("expected stopped, got %s", m.State())
	}
}

func TestMachineTransitions(t *testing.T) {
	tests := []struct {
		name  string
		path  []State
		valid bool
	}{
		{"full cycle", []State{Starting, Running, Stopping, Stopped}, true},
		{"failed start", []State{Starting, Stopped}, true},
		{"stop unknown stack", []State{Stopping, Stopped}, true},
		{"skip starting", []State{Running}, false},
		{"stop while starting", []State{Starting, Stopping}, false},
		{"start while running", []State{Starting, Running, Starting}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(envfile.Staging)
			var err error
			for _, s := range tt.path {
				if err = m.Transition(s); err != nil {
					break
				}
			}
			if tt.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestMachineRejectedTransitionKeepsState(t *testing.T) {
	m := NewMachine(envfile.Prod)
	if err := m.Transition(Running); err == nil {
		t.Fatal("expected error")
	}
	if m.State() != Stopped {
		t.Errorf("state changed after rejected transition: %s", m.State())
	}
	if m.CanTransition(Running) {
		t.Error("CanTransition(Running) from stopped")
	}
	if !m.CanTransition(Starting) {
		t.Error("CanTransition(Starting) from stopped")
	}
}

func TestMachineObservers(t *testing.T) {
	m := NewMachine(envfile.Dev)
	var seen []string
	m.OnTransition(func(env envfile.Environment, from, to State) {
		seen = append(seen, string(env)+":"+string(from)+">"+string(to))
	})

	_ = m.Transition(Starting)
	_ = m.Transition(Running)
	_ = m.Transition(Starting) // rejected, not observed

	want := []string{"dev:stopped>starting", "dev:starting>running"}
	if len(seen) != len(want) {
		t.Fatalf("observed %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("observed[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}
