// Package util holds error types and validation helpers shared by the
// msgxform packages.
//
// # Error Conventions
//
//   - Sentinel errors (errors.New) for stable conditions callers check
//     with errors.Is. Example: ErrConfigInvalid.
//   - Structured error types carrying extra fields (ConfigError,
//     UpstreamError). Each implements Error, Unwrap when it wraps, and Is.
//   - fmt.Errorf with %w for ad-hoc context.
//
// Transform failures have their own taxonomy in package xformerr.
package util
