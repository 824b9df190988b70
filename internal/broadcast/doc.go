// Package broadcast fans reload notices out to every instance sharing a
// Redis pub/sub channel.
//
// An instance that reloads its specs after a local change publishes a
// notice. Every other subscribed instance reloads its own copy of the
// files in response. Notices carry the publisher's instance id so an
// instance never reacts to its own notice.
package broadcast
