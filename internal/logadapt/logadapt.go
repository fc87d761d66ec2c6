// Package logadapt adapts a *zap.Logger into the plain leveled-callback
// logger shape (func(level, format, args...)) that engine and container
// adapters expect, mirroring the teacher's own tfLogFunc adapter that
// bridges envbuilder's log.Func onto tflog.
package logadapt

import (
	"fmt"

	"go.uber.org/zap"
)

// Level mirrors the coarse leveled-logging contract consumed by engine and
// container adapters.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// Func is the callback signature adapters receive.
type Func func(level Level, format string, args ...any)

// FromZap builds a Func backed by the given zap.Logger.
func FromZap(l *zap.Logger) Func {
	return func(level Level, format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		switch level {
		case LevelTrace, LevelDebug:
			l.Debug(msg)
		case LevelWarn:
			l.Warn(msg)
		case LevelError:
			l.Error(msg)
		default:
			l.Info(msg)
		}
	}
}
