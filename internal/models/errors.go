package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscoveryFailed is returned when no registered service matches a prefix.
	ErrDiscoveryFailed = errors.New("no services match prefix")
	// ErrNoServerFound is the registry client's name for ErrDiscoveryFailed.
	ErrNoServerFound = ErrDiscoveryFailed
	// ErrNotFound is returned when an explicit service address is not registered.
	ErrNotFound = errors.New("service not found")
	// ErrConnectionFailed is returned when a client cannot reach the chosen service.
	ErrConnectionFailed = errors.New("connection failed")

	ErrUnsupportedObjectType = errors.New("unsupported object type")
	ErrUnsupportedSuffix     = errors.New("unsupported suffix")
	// ErrNoSource is returned when a payload has no external source and no
	// live object to materialize an inline representation from.
	ErrNoSource = errors.New("no source for payload")

	ErrMalformedScene = errors.New("malformed scene")
	ErrNoCurrentScene = errors.New("no current scene")
	ErrMissingData    = errors.New("missing data")

	// ErrBadRequest is returned for undecodable remote call arguments.
	ErrBadRequest = errors.New("bad request")

	// ErrSyncCeilingReached is terminal for a sync session.
	ErrSyncCeilingReached = errors.New("sync failure ceiling reached")
)

// SyncError is a transient failure of one sync pass. It counts toward the
// session's failure ceiling.
type SyncError struct {
	Attempt int
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// wire kinds let sentinel errors survive the RPC boundary.
var errorKinds = []struct {
	kind string
	err  error
}{
	{"discovery_failed", ErrDiscoveryFailed},
	{"not_found", ErrNotFound},
	{"connection_failed", ErrConnectionFailed},
	{"unsupported_object_type", ErrUnsupportedObjectType},
	{"unsupported_suffix", ErrUnsupportedSuffix},
	{"no_source", ErrNoSource},
	{"malformed_scene", ErrMalformedScene},
	{"no_current_scene", ErrNoCurrentScene},
	{"missing_data", ErrMissingData},
	{"sync_ceiling_reached", ErrSyncCeilingReached},
	{"bad_request", ErrBadRequest},
}

// ErrorKind returns the wire kind of err, or "internal" for unknown errors.
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// ErrorFromKind rebuilds an error received over the wire so that errors.Is
// matches the original sentinel.
func ErrorFromKind(kind, message string) error {
	for _, k := range errorKinds {
		if k.kind == kind {
			if message == "" || message == k.err.Error() {
				return k.err
			}
			return &remoteError{msg: message, err: k.err}
		}
	}
	return errors.New(message)
}

type remoteError struct {
	msg string
	err error
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.err }
