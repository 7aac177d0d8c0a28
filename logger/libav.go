package logger

import (
	"strings"

	"github.com/asticode/go-astiav"
)

// LevelToAstiav converts a go-belt level into the closest libav log level.
func LevelToAstiav(level Level) astiav.LogLevel {
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
		return astiav.LogLevelDebug
	default:
		return astiav.LogLevelWarning
	}
}

// LevelFromAstiav converts a libav log level into a go-belt level.
func LevelFromAstiav(level astiav.LogLevel) Level {
	switch {
	case level <= astiav.LogLevelQuiet:
		return LevelUndefined
	case level <= astiav.LogLevelPanic:
		return LevelPanic
	case level <= astiav.LogLevelFatal:
		return LevelFatal
	case level <= astiav.LogLevelError:
		return LevelError
	case level <= astiav.LogLevelWarning:
		return LevelWarning
	case level <= astiav.LogLevelInfo:
		return LevelInfo
	case level <= astiav.LogLevelDebug:
		return LevelDebug
	default:
		return LevelTrace
	}
}

// BridgeAstiav routes libav's own log output into l.
func BridgeAstiav(l Logger) {
	astiav.SetLogLevel(LevelToAstiav(l.Level()))
	astiav.SetLogCallback(func(c astiav.Classer, level astiav.LogLevel, _, msg string) {
		var cs string
		if c != nil {
			if cl := c.Class(); cl != nil {
				cs = " - class: " + cl.String()
			}
		}
		l.Logf(LevelFromAstiav(level), "%s%s", strings.TrimSpace(msg), cs)
	})
}
