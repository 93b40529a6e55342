package logger

import (
	"fmt"
	"sort"
	"strings"
	"testing"
)

// fleetTestLogger routes engine log calls through t.Logf instead of stdout,
// and — unlike a logger that just drops WithField context — renders
// accumulated fields inline so a failing sweep or job-handler test shows
// the domain_id/pool/job_type an Error call was tagged with.
type fleetTestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

// NewTestLogger builds a Logger that writes to t via Logf. A nil t makes
// every call a no-op, which newHarness-style test scaffolding relies on
// when it doesn't care about log output.
func NewTestLogger(t *testing.T) Logger {
	return &fleetTestLogger{t: t}
}

func (l *fleetTestLogger) emit(level, msg string) {
	if l.t == nil {
		return
	}
	if len(l.fields) == 0 {
		l.t.Logf("[%s] %s", level, msg)
		return
	}
	l.t.Logf("[%s] %s %s", level, msg, renderFields(l.fields))
}

func renderFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

func (l *fleetTestLogger) Debug(msg string) { l.emit("DEBUG", msg) }
func (l *fleetTestLogger) Info(msg string)  { l.emit("INFO", msg) }
func (l *fleetTestLogger) Warn(msg string)  { l.emit("WARN", msg) }
func (l *fleetTestLogger) Error(msg string) { l.emit("ERROR", msg) }
func (l *fleetTestLogger) Fatal(msg string) { l.emit("FATAL", msg) }

func (l *fleetTestLogger) WithField(key string, value interface{}) Logger {
	return l.withFields(map[string]interface{}{key: value})
}

func (l *fleetTestLogger) WithFields(fields map[string]interface{}) Logger {
	return l.withFields(fields)
}

func (l *fleetTestLogger) withFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &fleetTestLogger{t: l.t, fields: merged}
}

// NewMockLogger builds a Logger for use across the job-queue, scheduler, and
// automation-engine test suites. Called without a *testing.T (as the
// automation package's harness does) it's a silent no-op logger; called
// with one, WithField/WithFields context shows up in `go test -v` output.
func NewMockLogger(t ...*testing.T) Logger {
	if len(t) > 0 {
		return NewTestLogger(t[0])
	}
	return NewTestLogger(nil)
}
