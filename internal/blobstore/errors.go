package blobstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no finalized blob with the id exists in the namespace.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidID means the id is not syntactically valid for the store.
	ErrInvalidID = errors.New("invalid blob id")
	// ErrInvalidNamespace means the database or collection name is unusable.
	ErrInvalidNamespace = errors.New("invalid namespace")
	// ErrSessionClosed is returned by a write session that was already
	// finalized or aborted.
	ErrSessionClosed = errors.New("write session is closed")
	// ErrChunkTooLarge means an appended payload exceeds the chunk size.
	ErrChunkTooLarge = errors.New("chunk exceeds chunk size")
	// ErrChunkOrder means a chunk was appended after a short final chunk,
	// or an empty chunk was appended.
	ErrChunkOrder = errors.New("invalid chunk sequence")
)

// ConnectivityError wraps a failure to reach the backing store.
type ConnectivityError struct {
	Backend string
	Err     error
}

func (e *ConnectivityError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s backend unreachable: %v", e.Backend, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsConnectivityError reports whether err wraps a *ConnectivityError.
func IsConnectivityError(err error) bool {
	var target *ConnectivityError
	return errors.As(err, &target)
}
