// Package logerr centralises the sentinel error kinds used across the
// shared-log substrate so callers can errors.Is/errors.As against a
// stable set instead of matching on string text.
package logerr

import "errors"

var (
	// ErrSignatureInvalid is returned when a signature fails verification
	// on a received entry or transport message. Callers drop silently.
	ErrSignatureInvalid = errors.New("logerr: signature invalid")

	// ErrAccessDenied is returned when canAppend (or canReplicate) denies
	// an operation.
	ErrAccessDenied = errors.New("logerr: access denied")

	// ErrUndecodable is returned on wire deserialization failure (wrong
	// topic, wrong version, truncated frame).
	ErrUndecodable = errors.New("logerr: undecodable")

	// ErrHashMismatch is returned when an entry's claimed hash does not
	// match the multihash of its canonical bytes.
	ErrHashMismatch = errors.New("logerr: hash mismatch")

	// ErrNotALeader is returned when a peer is asked to prune entries it
	// does not own, or to act as leader for a gid it does not sample into.
	ErrNotALeader = errors.New("logerr: not a leader")

	// ErrTimeout is returned when an ACK or prune confirmation never
	// arrives within its configured bound.
	ErrTimeout = errors.New("logerr: timeout")

	// ErrClosed is returned by an operation issued against a closed log.
	// Per the close-signal contract this is a "no longer our
	// responsibility" sentinel, not a failure to be cascaded.
	ErrClosed = errors.New("logerr: closed")

	// ErrNoRoute is returned when seek delivery exhausts without reaching
	// a target.
	ErrNoRoute = errors.New("logerr: no route")

	// ErrTransportFatal is returned when the underlying duplex stream
	// dies in a way that cannot be retried in place.
	ErrTransportFatal = errors.New("logerr: transport fatal")

	// ErrPendingParent marks an entry deferred because one of its next
	// references has not yet arrived locally or from the block store.
	ErrPendingParent = errors.New("logerr: pending parent")
)
