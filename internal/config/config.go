package config

import "time"

// Config holds all client configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	API     APIConfig     `mapstructure:"api" validate:"required"`
	Storage StorageConfig `mapstructure:"storage" validate:"required"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Log     LogConfig     `mapstructure:"log" validate:"required"`
}

// APIConfig describes where the portal API lives and how requests behave.
type APIConfig struct {
	// BaseURL pins the API root (e.g. https://portal.example.org/api).
	// When empty the root is derived from Origin.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	// Origin is the address the client pretends to be served from. Local
	// development ports are mapped onto the API port.
	Origin string `mapstructure:"origin" validate:"required_without=BaseURL,omitempty,url"`
	// RequestTimeout bounds a single request. Zero disables the timeout.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
}

// StorageConfig selects the client-local storage backing tokens and model caches.
type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=memory disk sqlite"`
	Path   string `mapstructure:"path" validate:"required_unless=Driver memory"`
}

// MonitorConfig controls the connectivity monitor.
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}
