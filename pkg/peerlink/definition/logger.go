// Package definition holds the engine's ambient collaborators —
// logging and metrics — that spec.md treats as implicit rather than
// spelling out, the way the teacher repository's pkg/mcast/definition
// package holds its default logger.
package definition

import "github.com/sirupsen/logrus"

// Logger is the sink every package in this module logs through. The
// method set mirrors the teacher's types.Logger interface
// (pkg/mcast/definition/default_logger.go) but is satisfied here by a
// real structured logging library instead of a log.Logger wrapper.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// With returns a Logger that includes the given structured fields
	// on every subsequent call, for tagging log lines with a peer
	// address or transfer id without string-formatting it in every
	// call site.
	With(fields map[string]interface{}) Logger
}

// logrusLogger is the default Logger, backed by a *logrus.Entry.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogger builds the default Logger over the given logrus instance.
// Passing nil uses logrus's package-level default, configured with the
// text formatter the way a small daemon would be run interactively.
func NewLogger(log *logrus.Logger) Logger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &logrusLogger{entry: logrus.NewEntry(log)}
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusLogger) With(fields map[string]interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}
