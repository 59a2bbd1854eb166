package server

import "time"

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
	// RefreshTimeoutMinutes bounds a refresh started over HTTP. Zero disables the bound.
	RefreshTimeoutMinutes int `mapstructure:"refresh_timeout_minutes" default:"60"`
}

// RefreshTimeout returns the configured bound as a duration.
func (c Config) RefreshTimeout() time.Duration {
	if c.RefreshTimeoutMinutes <= 0 {
		return 0
	}
	return time.Duration(c.RefreshTimeoutMinutes) * time.Minute
}

// Address returns the listen address for the configured port.
func (c Config) Address() string {
	return ":" + c.Port
}
