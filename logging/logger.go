package logging

import "context"

// Logger is the structured logger handed to every part of the driver. Loggers form a tree by
// name ("ensenso.session", "ensenso.capture", "web") and each node has its own level so that the
// `log` config can quiet or trace one part without touching the rest.
type Logger interface {
	SetLevel(level Level)
	GetLevel() Level
	Sublogger(subname string) Logger
	AddAppender(appender Appender)
	Sync() error

	// CDebugw logs at debug level when either the logger or ctx has debug enabled.
	CDebugw(ctx context.Context, msg string, keysAndValues ...interface{})

	Debug(args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	// Fatal logs at error level and exits the process.
	Fatal(args ...interface{})
}
