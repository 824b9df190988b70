// Package message defines the direction-agnostic envelope that adapters hand
// to the transform engine.
//
// A Message carries a body (bytes plus media type), case-insensitive
// multi-value headers, an optional status code, and the request path,
// method and query string. Messages are immutable: constructors copy the
// caller's memory and every With* method returns a modified copy, so a
// message can be shared between goroutines without locking.
//
//	msg := message.New(
//	    message.WithBody(message.JSONBody([]byte(`{"user_id":"u-1"}`))),
//	    message.WithHeader("Content-Type", "application/json"),
//	    message.WithPath("/api/users"),
//	    message.WithMethod("POST"),
//	)
//
// TransformContext is the read-only variable bag exposed to expressions:
// headers, status, query parameters, cookies and session attributes.
package message
