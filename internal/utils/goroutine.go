package utils

import (
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/l54808821/swarmpool/internal/logger"
)

// SafeGo starts a goroutine that recovers and logs panics instead of
// crashing the process.
func SafeGo(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panic recovered",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
			}
		}()
		fn()
	}()
}

// SafeGoWithName starts a named goroutine with panic recovery, so the log
// shows which background loop died.
func SafeGoWithName(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panic recovered",
					zap.String("goroutine", name),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
			}
		}()
		fn()
	}()
}
