// mzparquet converts mzML mass spectrometry files to mzparquet.
//
// Usage:
//
//	mzparquet convert run1.mzML run2.mzML.gz [-o out/] [--layout long] [--format ipc]
//	mzparquet convert gs://bucket/raw/run1.mzML -o gs://bucket/parquet/
//	mzparquet verify run1.mzparquet
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/VanDung-dev/MzParquet-Engine/engine"
)

// Version information
const (
	Version = "0.1.0"
	Name    = "MzParquet-Engine"
)

// exitError carries a process exit code out of a command. err may be nil
// when the command finished but the exit code is still non-zero.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return engine.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "Error:", ee.err)
		}
		return ee.code
	}
	// Usage errors: bad flags, wrong argument count.
	fmt.Fprintln(stderr, "Error:", err)
	return engine.ExitInvalid
}
