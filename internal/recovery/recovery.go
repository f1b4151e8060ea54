// Package recovery keeps a panicking goroutine from taking the process down.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// PanicError carries a recovered panic value.
type PanicError struct {
	Goroutine string
	Value     interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Goroutine, e.Value)
}

// RecoverWithLog recovers from a panic and logs it with its stack.
// Use it with defer at the start of goroutines:
//
//	go func() {
//	    defer recovery.RecoverWithLog(logger, "ws echo")
//	    // ...
//	}()
func RecoverWithLog(logger *slog.Logger, name string) {
	if r := recover(); r != nil {
		report(logger, name, r)
	}
}

// RecoverInto recovers from a panic, logs it and stores a *PanicError in
// *errp so the goroutine can still report a result.
func RecoverInto(logger *slog.Logger, name string, errp *error) {
	if r := recover(); r != nil {
		report(logger, name, r)
		*errp = &PanicError{Goroutine: name, Value: r}
	}
}

func report(logger *slog.Logger, name string, r interface{}) {
	if logger == nil {
		return
	}
	logger.Error("panic recovered",
		"goroutine", name,
		"panic", fmt.Sprintf("%v", r),
		"stack", string(debug.Stack()))
}
