// Package featureservice is a client for hosted feature-service layers and the
// portals that issue their tokens.
//
// A Layer implements dataset.Layer over the REST endpoints of one layer:
// the layer definition (?f=json), /query (paged reads, id and count queries)
// and /applyEdits. Dates travel as epoch milliseconds and are exposed as UTC
// time.Time values. Geometry is exchanged as Esri JSON text under the
// SHAPE@JSON token.
//
// Every request goes through a shared rate limiter. Reads are retried on
// throttling and gateway errors; applyEdits never is, because a timed-out
// batch may already have been applied. IsGatewayTimeout tells callers when
// that happened.
//
// TokenCache keeps one Session per portal login and collapses concurrent
// sign-ins with singleflight.
package featureservice
