package logger

import (
	"context"
	"strings"

	"github.com/asticode/go-astiav"
)

// LogLevelToAstiav maps a logger level onto the closest libav level.
func LogLevelToAstiav(level Level) astiav.LogLevel {
	switch level {
	case LevelUndefined:
		return astiav.LogLevelQuiet
	case LevelFatal:
		return astiav.LogLevelFatal
	case LevelPanic:
		return astiav.LogLevelPanic
	case LevelError:
		return astiav.LogLevelError
	case LevelWarning:
		return astiav.LogLevelWarning
	case LevelInfo:
		return astiav.LogLevelInfo
	case LevelDebug:
		return astiav.LogLevelVerbose
	case LevelTrace:
		return astiav.LogLevelTrace
	default:
		return astiav.LogLevelWarning
	}
}

// LogLevelFromAstiav is the reverse of LogLevelToAstiav. libav's "debug"
// is chatty enough to be treated as trace.
func LogLevelFromAstiav(level astiav.LogLevel) Level {
	switch level {
	case astiav.LogLevelQuiet:
		return LevelUndefined
	case astiav.LogLevelFatal:
		return LevelFatal
	case astiav.LogLevelPanic:
		return LevelPanic
	case astiav.LogLevelError:
		return LevelError
	case astiav.LogLevelWarning:
		return LevelWarning
	case astiav.LogLevelInfo:
		return LevelInfo
	case astiav.LogLevelVerbose:
		return LevelDebug
	case astiav.LogLevelDebug, astiav.LogLevelTrace:
		return LevelTrace
	default:
		return LevelWarning
	}
}

// RouteAstiav redirects libav's own log output into the logger found in ctx.
//
// libav's panic and fatal levels are demoted to error: a codec complaining
// must never take the process down.
func RouteAstiav(ctx context.Context) {
	l := FromCtx(ctx)
	astiav.SetLogLevel(LogLevelToAstiav(l.Level()))
	astiav.SetLogCallback(func(c astiav.Classer, level astiav.LogLevel, fmt, msg string) {
		var cs string
		if c != nil {
			if cl := c.Class(); cl != nil {
				cs = " - class: " + cl.String()
			}
		}
		lvl := LogLevelFromAstiav(level)
		if lvl == LevelUndefined {
			return
		}
		if lvl < LevelError {
			lvl = LevelError
		}
		Logf(ctx, lvl, "%s%s", strings.TrimSpace(msg), cs)
	})
}
