package client

import (
	"errors"
	"fmt"

	"github.com/gravitydb/hacomm/pool"
	"github.com/gravitydb/hacomm/protocol"
	"github.com/gravitydb/hacomm/wire/chunk"
	"github.com/gravitydb/hacomm/wire/frame"
)

// Kind buckets a CommunicationError by which of §7's error kinds
// produced it.
type Kind int

const (
	KindConnect Kind = iota
	KindProtocol
	KindTimeout
	KindStoreMismatch
	KindTransport
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindProtocol:
		return "protocol"
	case KindTimeout:
		return "timeout"
	case KindStoreMismatch:
		return "store mismatch"
	case KindTransport:
		return "transport"
	case KindInvariant:
		return "invariant"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StoreMismatchError is raised when a response's store identity does
// not match what the caller expected.
type StoreMismatchError struct {
	Expected, Got protocol.StoreID
}

func (e *StoreMismatchError) Error() string {
	return fmt.Sprintf("client: store mismatch: expected %s, got %s", e.Expected, e.Got)
}

// CommunicationError is the single unified error sendRequest surfaces
// for any failure during acquire/write/read: the underlying cause is
// always available via Unwrap, and Kind classifies it per §7 without
// callers needing to know the concrete wire-level type.
type CommunicationError struct {
	Kind       Kind
	Underlying error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("client: %s error: %s", e.Kind, e.Underlying)
}

func (e *CommunicationError) Unwrap() error { return e.Underlying }

// Cause supports github.com/pkg/errors.Cause callers.
func (e *CommunicationError) Cause() error { return e.Underlying }

// wrapCommunicationError classifies err and wraps it as a
// CommunicationError. A nil err returns nil.
func wrapCommunicationError(err error) error {
	if err == nil {
		return nil
	}
	return &CommunicationError{Kind: classify(err), Underlying: err}
}

func classify(err error) Kind {
	var connectErr *pool.ConnectError
	if errors.As(err, &connectErr) {
		return KindConnect
	}

	var versionErr *chunk.VersionMismatchError
	if errors.As(err, &versionErr) {
		return KindProtocol
	}
	var flagErr *chunk.BadFlagError
	if errors.As(err, &flagErr) {
		return KindProtocol
	}
	if errors.Is(err, frame.ErrFrameTooLarge) {
		return KindProtocol
	}
	if errors.Is(err, chunk.ErrInsufficientData) || errors.Is(err, chunk.ErrEndOfMessage) {
		return KindProtocol
	}

	var timeoutErr *chunk.TimeoutError
	if errors.As(err, &timeoutErr) {
		return KindTimeout
	}

	var storeErr *StoreMismatchError
	if errors.As(err, &storeErr) {
		return KindStoreMismatch
	}

	var invErr *pool.InvariantError
	if errors.As(err, &invErr) {
		return KindInvariant
	}

	return KindTransport
}
