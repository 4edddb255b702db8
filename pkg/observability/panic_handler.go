package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers a panic in the calling goroutine and logs it with the
// stack. It must be called directly by defer. The panic is not re-raised.
//
//	defer observability.RecoverPanic(logger, "retention sweep")
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithField("panic", fmt.Sprint(r)).
			WithField("stack", string(debug.Stack())).
			WithField("context", where).
			Error("PANIC recovered")
	}
}
