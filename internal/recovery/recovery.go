// internal/recovery/recovery.go
package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync/atomic"
)

// ErrPanic marks an error converted from a recovered panic
var ErrPanic = errors.New("panic recovered")

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// SetLogger replaces the logger panics are reported to. Default: text to stderr.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

func report(msg string, r any, args ...any) {
	args = append(args, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
	logger.Load().Error(msg, args...)
}

// HandlePanic should be deferred at the top of main().
// It logs panic details and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		report("FATAL", r)
		os.Exit(1)
	}
}

// HandlePanicFunc logs panic details, calls cleanup and exits with code 1.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		report("FATAL", r)
		if cleanup != nil {
			cleanup()
		}
		os.Exit(1)
	}
}

// Guard wraps fn for errgroup-style goroutines: a panic is logged and
// returned as an error wrapping ErrPanic instead of crashing the process.
func Guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				report("goroutine panic", r, "goroutine", name)
				err = fmt.Errorf("%s: %w: %v", name, ErrPanic, r)
			}
		}()
		return fn()
	}
}
