package wazero

import (
	"context"
	"log/slog"

	"github.com/tetratelabs/wazero/api"
)

// Guest log levels, matching the i32 the guest passes to morphir_log.
const (
	LogTrace int32 = iota
	LogDebug
	LogInfo
	LogWarn
	LogError
)

// GuestLevel converts a guest log level to its slog equivalent. Unknown
// levels log at info so no guest message is silently dropped.
func GuestLevel(level int32) slog.Level {
	switch level {
	case LogTrace, LogDebug:
		return slog.LevelDebug
	case LogInfo:
		return slog.LevelInfo
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFromGuest reads a guest-provided message and emits it through logger
// with the extension id attached.
func LogFromGuest(ctx context.Context, logger *slog.Logger, mod api.Module, extensionID string, level int32, packed uint64) {
	msg, err := ReadPacked(mod, packed)
	if err != nil {
		logger.ErrorContext(ctx, "failed to read guest log message",
			slog.String("extension", extensionID), slog.Any("error", err))
		return
	}
	logger.LogAttrs(ctx, GuestLevel(level), string(msg),
		slog.String("extension", extensionID))
}
