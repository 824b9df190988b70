// Package proxy is a standalone reverse proxy that runs the transform
// engine on both halves of every exchange.
//
// A client request is converted to a message and transformed in the
// request direction before it is forwarded to the single upstream. The
// upstream response is transformed in the response direction before it
// is returned. A DENY failure on the request half answers the client
// directly with the problem document and the upstream is never called.
//
// The upstream round trip is guarded by a circuit breaker that counts
// transport errors and 5xx answers as failures. Every request carries an
// X-Request-ID, generated when the client did not send one.
package proxy
