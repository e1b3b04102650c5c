package v2

// Config holds configuration for creating a logger instance
type Config struct {
	// Level specifies the minimum log level (debug, info, warn, error)
	Level string

	// Format specifies the output format (text, json)
	Format string

	// Output specifies where to write logs: "stderr", "stdout", or a file
	// path. Stdout carries the stdio protocol stream, so stderr is the
	// default and stdout should only be chosen for the WebSocket server.
	Output string

	// FilePath, when set, additionally appends logs to the given file.
	// The relay adapter uses this so forwarded traffic stays debuggable
	// without polluting either side of the pipe.
	FilePath string
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}
}
