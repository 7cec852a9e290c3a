package common

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/ternarybob/arbor"
)

// SafeGo starts fn on its own goroutine. A panic is logged with its stack
// and swallowed so a failing sweeper or worker cannot take the process down.
//
//	common.SafeGo(logger, "cache-sweep", c.sweepLoop)
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	go func() {
		defer recoverGoroutine(logger, name)
		fn()
	}()
}

func recoverGoroutine(logger arbor.ILogger, name string) {
	v := recover()
	if v == nil {
		return
	}
	stack := string(debug.Stack())
	if logger == nil {
		fmt.Fprintf(os.Stderr, "panic in goroutine %s: %v\n%s\n", name, v, stack)
		return
	}
	logger.Error().
		Str("goroutine", name).
		Str("panic", fmt.Sprintf("%v", v)).
		Str("stack", stack).
		Msg("Recovered from panic in goroutine")
}
