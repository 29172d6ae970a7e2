package models

import "testing"

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from, to ScanStatus
		want     bool
	}{
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusCancelled, true},
		{StatusRunning, StatusError, true},
		{StatusRunning, StatusRunning, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusCompleted, false},
		{StatusError, StatusRunning, false},
		{ScanStatus("paused"), StatusCompleted, false},
	}

	for _, tt := range tests {
		if got := IsValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestScanStatus_Terminal(t *testing.T) {
	terminal := map[ScanStatus]bool{
		StatusRunning:        false,
		StatusCompleted:      true,
		StatusCancelled:      true,
		StatusError:          true,
		ScanStatus(""):       false,
		ScanStatus("paused"): false,
	}

	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%q.Terminal() = %v, want %v", status, got, want)
		}
	}
}
