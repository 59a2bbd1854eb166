// Package loader mounts features on the HTTP server.
//
// Each feature implements Feature:
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// # Manager
//
// Manager keeps features in registration order. LoadAll skips disabled
// features, stops at the first Load error and returns the names it loaded.
// The server registers 'refresh' and 'changesets'.
package loader
