// Package log provides the logging abstraction used by logship components.
//
// The Logger interface can be backed by any logging library. A zerolog
// adapter and a no-op logger are provided.
//
// # Usage
//
// Console output for interactive use:
//
//	logger := log.NewConsoleAdapter(zerolog.InfoLevel)
//
// JSON output to any writer:
//
//	logger := log.NewZerologAdapter(os.Stderr, zerolog.DebugLevel)
//
// Discard everything (the default when embedding a device):
//
//	logger := log.NewNoopLogger()
//
// # Custom Loggers
//
// Implement the four leveled methods to plug in other infrastructure:
//
//	func (l *MyLogger) Debug(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Info(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Warn(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Error(msg string, fields ...log.Field) { ... }
//
// A device must never log through itself: do not back a Logger with the
// device you pass it to.
package log
