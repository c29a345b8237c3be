// Package logger holds logger implementations that are only useful inside the module.
package logger

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dataloop-tools/dataloop-go/logger"
)

// failTestLogger forwards Debug/Info to t.Log and fails the test on Warn/Error.
type failTestLogger struct {
	t *testing.T
}

// NewFailTestLogger returns a logger that fails the test when a warning or
// error is logged. Use logger.Discard() in tests that expect failures.
func NewFailTestLogger(t *testing.T) logger.Logger {
	t.Helper()
	return &failTestLogger{t: t}
}

func (l *failTestLogger) Debug(msg string, args ...any) {
	l.t.Helper()
	l.t.Log("DEBUG " + format(msg, args))
}

func (l *failTestLogger) Info(msg string, args ...any) {
	l.t.Helper()
	l.t.Log("INFO " + format(msg, args))
}

func (l *failTestLogger) Warn(msg string, args ...any) {
	l.t.Helper()
	l.t.Error("unexpected WARN " + format(msg, args))
}

func (l *failTestLogger) Error(msg string, args ...any) {
	l.t.Helper()
	l.t.Error("unexpected ERROR " + format(msg, args))
}

func format(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}
