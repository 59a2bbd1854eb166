package featureservice

import "time"

// Config holds settings for feature service and portal requests.
type Config struct {
	// TimeoutSeconds bounds a single HTTP request. applyEdits calls hitting this
	// bound are reported as possibly applied.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"120"`
	// RateLimit is the sustained number of requests per second.
	RateLimit float64 `mapstructure:"rate_limit" default:"10"`
	// RateBurst is the maximum burst of requests.
	RateBurst int `mapstructure:"rate_burst" default:"5"`
	// MaxRetries applies to read requests only; edits are never retried.
	MaxRetries int `mapstructure:"max_retries" default:"2"`
	// TokenExpirationMinutes is requested from generateToken.
	TokenExpirationMinutes int `mapstructure:"token_expiration_minutes" default:"60"`
	// Referer is sent with token requests.
	Referer string `mapstructure:"referer" default:"geo-refresh"`
}

func (c Config) timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c Config) tokenExpiration() time.Duration {
	if c.TokenExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.TokenExpirationMinutes) * time.Minute
}
