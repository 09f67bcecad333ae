package utils

import (
	"context"
	"runtime/debug"

	"golang-fundamental-scryper/pkg/logger"

	"go.uber.org/zap"
)

// GoSafe runs fn in a new goroutine, recovering and logging any panic.
func GoSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("Recovered from panic in goroutine",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
			}
		}()
		fn()
	}()
}

// ShouldContinue reports whether ctx is still alive, logging once when it is not.
func ShouldContinue(ctx context.Context, log *logger.Logger) bool {
	select {
	case <-ctx.Done():
		log.WarnContext(ctx, "Context done, stopping further work", logger.ErrorField(ctx.Err()))
		return false
	default:
		return true
	}
}

func ToPointer[T any](v T) *T {
	return &v
}
