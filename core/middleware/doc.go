// Package middleware contains HTTP middleware for the Fiber application.
//
// # Components
//
//   - auth: API key validation through the X-API-Key header or the api_key
//     query parameter. Selected paths such as /health can be skipped.
//   - rayid: assigns every request a ray id, stored in the fiber locals read by
//     logger.WithRayID and echoed in the X-Ray-ID response header.
package middleware
