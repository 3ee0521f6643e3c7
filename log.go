package vtexcore

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// defaultLogger is the console-pretty zerolog.Logger that Manager, Cache
// and PageTables all log through, grounded on the pack's
// zerolog-based page-pool logging (mtrqq-squirrel/pkg/page/page-pool.go),
// which this codebase generalizes from a single clock-replacement cache
// into the core's drop/failure events.
var (
	defaultLoggerOnce sync.Once
	defaultLoggerVal  zerolog.Logger
)

func defaultLogger() zerolog.Logger {
	defaultLoggerOnce.Do(func() {
		defaultLoggerVal = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	})
	return defaultLoggerVal
}

// StrictMode gates the debugAssert helper. When true, caller-contract
// violations (duplicate Commit, duplicate Cancel, out-of-range page-table
// writes) panic; when false they are logged and treated as a no-op. This
// gives callers an abort-in-debug / no-op-in-release policy without
// requiring a separate build tag.
var StrictMode = false

func debugAssert(log zerolog.Logger, cond bool, msg string) {
	if cond {
		return
	}
	if StrictMode {
		panic("vtexcore: " + msg)
	}
	log.Warn().Str("assertion", msg).Msg("caller contract violated; ignoring in non-strict mode")
}
