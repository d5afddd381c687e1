package engine

import (
	"errors"
	"fmt"

	"github.com/VanDung-dev/MzParquet-Engine/mzml"
)

// Process exit codes for a conversion.
const (
	ExitOK        = 0
	ExitIO        = 1
	ExitInvalid   = 2
	ExitPartial   = 3
	ExitCancelled = 130
)

// Common errors for conversion operations
var (
	ErrDriverUsed = errors.New("driver has already run")
	ErrCancelled  = errors.New("conversion cancelled")
	ErrBadFormat  = errors.New("unknown output format")
)

// IOError reports a failure reading the source or writing the destination.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ExitCode maps the outcome of one conversion to a process exit code.
func ExitCode(res *Result, err error) int {
	if res != nil && res.State == StateCancelled {
		return ExitCancelled
	}
	if err != nil {
		var ioErr *IOError
		var pe *mzml.ParseError
		switch {
		case errors.As(err, &ioErr):
			return ExitIO
		case errors.As(err, &pe), mzml.IsRecoverable(err):
			return ExitInvalid
		case errors.Is(err, ErrCancelled):
			return ExitCancelled
		}
		return ExitIO
	}
	if res != nil && res.Skipped > 0 {
		return ExitPartial
	}
	return ExitOK
}

// exitRank orders exit codes by severity when several files are converted.
func exitRank(code int) int {
	switch code {
	case ExitCancelled:
		return 4
	case ExitIO:
		return 3
	case ExitInvalid:
		return 2
	case ExitPartial:
		return 1
	}
	return 0
}

// CombineExitCodes returns the most severe of codes.
func CombineExitCodes(codes ...int) int {
	worst := ExitOK
	for _, c := range codes {
		if exitRank(c) > exitRank(worst) {
			worst = c
		}
	}
	return worst
}
