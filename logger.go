package clouds

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/clouds/internal/logging"
)

// loggerPtr stores the package logger. Accessed atomically so that
// SetLogger can be called concurrently with ticking compositors.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(logging.Nop())
}

// SetLogger configures the default logger for compositors created without
// WithLogger. By default nothing is logged.
//
// Pass nil to restore silence. Compositors pick up the new logger on
// their next Initialize.
//
// Log levels used:
//   - [slog.LevelDebug]: per-frame decisions (units, blend factor, barriers)
//   - [slog.LevelInfo]: lifecycle (initialize, resize, shutdown)
//   - [slog.LevelWarn]: skipped frames and discarded cycles, once per cause
//
// Example:
//
//	clouds.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	loggerPtr.Store(logging.OrNop(l))
}

// Logger returns the package logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes l to the device if it accepts one.
func propagateLogger(dev any, l *slog.Logger) {
	if ls, ok := dev.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
