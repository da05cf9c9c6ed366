package logger

import "sync"

// resetSetupOnce lets a test run SetupLogger more than once.
func resetSetupOnce() {
	setupLogOnce = sync.Once{}
}
