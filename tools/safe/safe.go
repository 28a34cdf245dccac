package safe

import (
	"DPanel/logger"
)

// Run invokes f and recovers any panic, so one misbehaving callback
// cannot take down the caller's loop.
func Run(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[safe] %s panic recovered: %v", name, r)
		}
	}()
	f()
}

// Go starts a goroutine that recovers from panic, so that panics
// don't crash the entire program.
func Go(name string, f func()) {
	go Run(name, f)
}
