// Package config loads the application configuration.
//
// Values come from an optional .env file and the process environment. Every
// partial configuration struct declares its keys with `mapstructure` tags and its
// defaults with `default` tags; nested keys map to upper-case environment names
// joined by underscores (refresh.chunk_size -> REFRESH_CHUNK_SIZE).
package config
