package pool

import "github.com/pkg/errors"

// ConnectError wraps a failure to establish a new channel, raised after
// the reconnect-storm damping sleep and the configured connection-lost
// hook have both run.
type ConnectError struct {
	Underlying error
}

func (e *ConnectError) Error() string { return "pool: connect failed: " + e.Underlying.Error() }
func (e *ConnectError) Unwrap() error { return e.Underlying }

// ConnectionLostEvent is passed to a Config.ConnectionLostHandler: the
// failure that triggered it, plus a count of how many consecutive times
// this pool has failed to connect (reset by the next successful
// connect), so a caller can distinguish a first failure from a sustained
// outage without keeping its own counter.
type ConnectionLostEvent struct {
	Err          error
	FailureCount int64
}

func (e *ConnectionLostEvent) Error() string { return e.Err.Error() }
func (e *ConnectionLostEvent) Unwrap() error { return e.Err }

// ErrPoolClosed is returned by Acquire once Close has been called with
// forceIdle set.
var ErrPoolClosed = errors.New("pool: closed")

// InvariantError signals a bookkeeping bug in this package itself (an
// unbalanced Release/Dispose call on a context). It is never expected in
// correct operation and is surfaced by panicking, matching how the
// standard library treats similar misuse (e.g. sync.WaitGroup's negative
// counter panic).
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "pool: invariant violated: " + e.Msg }
