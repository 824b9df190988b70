// Package session derives session attributes from a verified bearer token.
//
// The token is read from a configurable request header, verified against a
// JWKS file on disk and, when configured, checked for issuer and audience.
// Its claims become the session map that transform expressions see as
// `session`. A request without the header has no session; a request with
// an unverifiable token is reported as an error so the caller can decide
// whether to proceed.
package session
