//go:build unix

package concmd

import (
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"
)

// TestParseSignal tests signal names and numbers
func TestParseSignal(t *testing.T) {
	tests := []struct {
		in   string
		want syscall.Signal
		ok   bool
	}{
		{"USR1", syscall.SIGUSR1, true},
		{"SIGUSR1", syscall.SIGUSR1, true},
		{"usr2", syscall.SIGUSR2, true},
		{"15", syscall.SIGTERM, true},
		{"SIGNOPE", 0, false},
		{"0", 0, false},
	}

	for _, tt := range tests {
		got, err := parseSignal(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("parseSignal(%q) error = %v, want ok %v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("parseSignal(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestRaise tests delivering a signal to this process
func TestRaise(t *testing.T) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	defer signal.Stop(ch)

	name, err := raise("USR1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if name != "SIGUSR1" {
		t.Errorf("Expected SIGUSR1, got %q", name)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Error("Expected SIGUSR1 to be delivered")
	}
}
