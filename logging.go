package markup

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

var logger atomic.Pointer[zerolog.Logger]

func init() {
	nop := zerolog.Nop()
	logger.Store(&nop)
}

// SetLogger routes the package's debug events (compiles, cache activity,
// reloads) to l. The package is silent until it is called.
func SetLogger(l zerolog.Logger) {
	logger.Store(&l)
}

func log() *zerolog.Logger { return logger.Load() }
