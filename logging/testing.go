package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender writes entries with `tb.Log` so that they are attached to the running test, even
// when tests run in parallel. Times are in the local timezone.
type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an appender logging to tb.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	line, err := formatEntry(entry, fields)
	tapp.tb.Log(line)
	return err
}

// Sync is a no-op.
func (tapp *testAppender) Sync() error {
	return nil
}
