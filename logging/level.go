package logging

import (
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

// Level is a log level. INFO is the zero value.
type Level int

// A statement is logged when its level is at least the level of the logger.
const (
	DEBUG Level = iota - 1
	INFO
	WARN
	ERROR
)

// LevelFromString parses one of "debug", "info", "warn" (or "warning") and "error", ignoring case.
func LevelFromString(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, errors.Errorf("unknown log level %q", s)
	}
}

// AsZap converts the Level to a zapcore.Level.
func (level Level) AsZap() zapcore.Level {
	switch {
	case level <= DEBUG:
		return zapcore.DebugLevel
	case level == INFO:
		return zapcore.InfoLevel
	case level == WARN:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func (level Level) String() string {
	return level.AsZap().String()
}

// AtomicLevel is a level that can be concurrently accessed.
type AtomicLevel struct {
	val *atomic.Int32
}

// NewAtomicLevelAt returns an AtomicLevel set to level.
func NewAtomicLevelAt(level Level) AtomicLevel {
	al := AtomicLevel{val: &atomic.Int32{}}
	al.Set(level)
	return al
}

// Set changes the level.
func (al AtomicLevel) Set(level Level) {
	al.val.Store(int32(level))
}

// Get returns the level.
func (al AtomicLevel) Get() Level {
	return Level(al.val.Load())
}
