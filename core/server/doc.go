// Package server holds the HTTP server configuration.
//
// The serve command owns the Fiber application; this package only defines the
// settings it needs: the listen port, the API key protecting every route and the
// time bound applied to refreshes started over HTTP.
package server
