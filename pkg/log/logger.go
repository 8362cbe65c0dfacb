package log

import "time"

// Logger is the structured logger every logship component writes to.
// Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is one key/value pair attached to a log entry. Adapters map the
// value types built by the constructors below to native field types and
// fall back to generic encoding for anything else.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

// Strings attaches a list, such as plugin names or followed paths.
func Strings(key string, values []string) Field { return Field{Key: key, Value: values} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Err attaches err under the key "error".
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Any attaches a value without a dedicated constructor.
func Any(key string, value any) Field { return Field{Key: key, Value: value} }
