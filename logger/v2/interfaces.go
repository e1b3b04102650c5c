package v2

// Logger is the primary logging interface used across the bridge.
// It hides the logrus backend so packages depend only on this API.
//
// The bridge writes protocol frames to stdout, so loggers must never
// default to stdout; see Config.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	Fatal(msg string, err error, fields ...Field)

	// With creates a child logger with preset fields, e.g. a per-connection
	// logger carrying the connection id.
	With(fields ...Field) Logger

	// Close releases any file handle opened for file logging.
	Close() error
}

// Field is a structured log field.
type Field struct {
	Key   string
	Value interface{}
}
