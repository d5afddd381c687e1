package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/VanDung-dev/MzParquet-Engine/mzml"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		res  *Result
		err  error
		want int
	}{
		{"success", &Result{State: StateClosed}, nil, ExitOK},
		{"partial", &Result{State: StateClosed, Skipped: 2}, nil, ExitPartial},
		{"io", &Result{State: StateFailed}, &IOError{Op: "open", Path: "x", Err: errors.New("denied")}, ExitIO},
		{"parse", &Result{State: StateFailed}, &mzml.ParseError{Offset: 10, Err: errors.New("bad")}, ExitInvalid},
		{"validation", &Result{State: StateFailed}, &mzml.ValidationError{Field: "mz", Reason: "missing"}, ExitInvalid},
		{"decode", &Result{State: StateFailed}, &mzml.DecodeError{Reason: "base64"}, ExitInvalid},
		{"cancelled state", &Result{State: StateCancelled, Skipped: 1}, cancelled(context.Canceled), ExitCancelled},
		{"cancelled without result", nil, cancelled(context.Canceled), ExitCancelled},
		{"unknown", nil, errors.New("boom"), ExitIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.res, tt.err); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestCombineExitCodes(t *testing.T) {
	tests := []struct {
		codes []int
		want  int
	}{
		{nil, ExitOK},
		{[]int{ExitOK, ExitPartial}, ExitPartial},
		{[]int{ExitPartial, ExitInvalid}, ExitInvalid},
		{[]int{ExitInvalid, ExitIO, ExitPartial}, ExitIO},
		{[]int{ExitIO, ExitCancelled}, ExitCancelled},
	}
	for _, tt := range tests {
		if got := CombineExitCodes(tt.codes...); got != tt.want {
			t.Errorf("CombineExitCodes(%v) = %d, want %d", tt.codes, got, tt.want)
		}
	}
}

func TestIOErrorUnwrap(t *testing.T) {
	base := errors.New("disk full")
	err := error(&IOError{Op: "write batch", Err: base})
	if !errors.Is(err, base) {
		t.Error("Expected IOError to unwrap")
	}
	if err.Error() != "write batch: disk full" {
		t.Errorf("Unexpected message %q", err.Error())
	}
	withPath := &IOError{Op: "open", Path: "a.mzML", Err: base}
	if withPath.Error() != "open a.mzML: disk full" {
		t.Errorf("Unexpected message %q", withPath.Error())
	}
}

func TestStateString(t *testing.T) {
	if StateCancelled.String() != "cancelled" || State(99).String() != "unknown" {
		t.Error("Unexpected state names")
	}
}
