package config

// ServeConfig holds configuration for the stepflow journal API server.
type ServeConfig struct {
	Addr          string // Listen address (default ":8080")
	LogLevel      string // Log level: debug, info, warn, error
	LogFormat     string // Log format: text, json
	JournalPath   string // SQLite journal path (":memory:" for testing)
	ExperimentDir string // Experiment directory whose records the API lists
}

// DefaultServeConfig returns sensible defaults.
func DefaultServeConfig() ServeConfig {
	return ServeConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}
