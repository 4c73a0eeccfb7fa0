// Package pool implements the bounded, blocking resource pool (C5): a
// fixed-size set of pooled connection contexts, each wrapping one
// transport.Wire plus the scratch buffers a request needs, borrowed by
// exactly one caller at a time.
package pool

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gravitydb/hacomm/logger"
	"github.com/gravitydb/hacomm/transport"
	"github.com/gravitydb/hacomm/util/semaphore"
)

// State tracks a borrowed Context through one request's lifecycle, per
// the state machine: IDLE -> ACQUIRED -> WRITING -> READING -> STREAMING
// -> RELEASED -> IDLE, with WRITING/READING/STREAMING able to transition
// to CLOSED on error instead.
type State int32

const (
	StateIdle State = iota
	StateAcquired
	StateWriting
	StateReading
	StateStreaming
	StateReleased
	StateClosed
)

// DefaultScratchSize matches the spec's "scratchDirectBuffer (>=1 MiB)".
const DefaultScratchSize = 1 << 20

// DefaultConnectTimeout bounds the creation hook's dial.
const DefaultConnectTimeout = 5 * time.Second

// DefaultDampingSleep is slept after a failed create, to damp reconnect
// storms before the connection-lost hook and error are raised.
const DefaultDampingSleep = 5 * time.Second

// Config parameterizes a Pool.
type Config struct {
	MaxActive int
	MaxIdle   int

	ConnectTimeout time.Duration
	DampingSleep   time.Duration
	ScratchSize    int

	// ConnectionLostHandler is invoked from inside create() on connection
	// failure, after the damping sleep and before the error is raised.
	ConnectionLostHandler func(*ConnectionLostEvent)
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.DampingSleep == 0 {
		c.DampingSleep = DefaultDampingSleep
	}
	if c.ScratchSize == 0 {
		c.ScratchSize = DefaultScratchSize
	}
	if c.ConnectionLostHandler == nil {
		c.ConnectionLostHandler = func(*ConnectionLostEvent) {}
	}
	return c
}

// Context is a pooled connection context: the channel plus the buffers
// a borrower needs for exactly one request. It is owned by the Pool; a
// caller must return it via the Pool's Release or Dispose, never both.
type Context struct {
	Conn      transport.Wire
	OutBuffer *bytes.Buffer
	Scratch   []byte

	mu      sync.Mutex
	state   State
	broken  bool
	settled bool

	guard *semaphore.AcquireGuard
}

// SetState records where in the request lifecycle this context is.
func (c *Context) SetState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the context's current lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MarkBroken flags the context as no longer usable: the next Release
// call disposes it instead of returning it to the idle set.
func (c *Context) MarkBroken() {
	c.mu.Lock()
	c.broken = true
	c.mu.Unlock()
}

// isAlive reports whether this context's broken flag is clear and, for a
// context that has been sitting idle, whether its channel still looks
// connected. An idle channel should never have its peer sending
// anything, so a non-blocking read that doesn't time out means the
// connection was reset or closed out from under us.
func (c *Context) isAlive() bool {
	c.mu.Lock()
	broken := c.broken
	c.mu.Unlock()
	if broken {
		return false
	}
	return isConnAlive(c.Conn)
}

func isConnAlive(conn transport.Wire) bool {
	if err := conn.SetReadDeadline(time.Now()); err != nil {
		return false
	}
	defer conn.SetReadDeadline(time.Time{})

	var b [1]byte
	_, err := conn.Read(b[:])
	if err == nil {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// reacquire resets bookkeeping when an idle context is handed back out
// by Acquire.
func (c *Context) reacquire() {
	c.mu.Lock()
	c.settled = false
	c.state = StateAcquired
	c.mu.Unlock()
}

// settle marks the context as returned to the pool exactly once,
// panicking with an InvariantError on a double Release/Dispose.
func (c *Context) settle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled {
		panic(&InvariantError{Msg: "context released or disposed more than once"})
	}
	c.settled = true
}

// Pool is a bounded, blocking pool of Contexts. The zero value is not
// usable; construct with New.
type Pool struct {
	connecter transport.Connecter
	cfg       Config
	log       logger.Logger

	sem *semaphore.S

	mu     sync.Mutex
	cond   sync.Cond
	idle   []*Context
	closed bool

	connectFailures int64
}

// New returns a Pool that dials through connecter, bounded by cfg.
func New(connecter transport.Connecter, cfg Config, log logger.Logger) *Pool {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.NewNullLogger()
	}
	p := &Pool{
		connecter: connecter,
		cfg:       cfg,
		log:       log,
		sem:       semaphore.New(int64(cfg.MaxActive)),
	}
	p.cond.L = &p.mu
	return p
}

// broadcastWake wakes every goroutine blocked in Acquire so it can
// re-examine the idle set and semaphore under the lock. Broadcast (not
// Signal) is required: a single releaser must wake every waiter, not
// just one, or a waiter can be left stranded next to an idle context
// nobody told it about.
func (p *Pool) broadcastWake() {
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Acquire returns an idle, live context if one is available; otherwise
// it creates a new one if the pool has room, or blocks until either
// condition becomes true or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Context, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if n := len(p.idle); n > 0 {
			c := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()

			metrics.idle.Dec()
			if !c.isAlive() {
				p.teardown(c)
				continue
			}
			c.reacquire()
			return c, nil
		}

		guard := p.sem.TryAcquire()
		if guard != nil {
			p.mu.Unlock()
			c, err := p.create(ctx, guard)
			if err != nil {
				return nil, err
			}
			return c, nil
		}

		// Wait with mu held continuously from the checks above through
		// Cond.Wait, so a concurrent Release/teardown/Close can never
		// land its Broadcast in the gap between "nothing available" and
		// "now waiting" and be missed.
		err := p.waitLocked(ctx)
		p.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
}

// waitLocked blocks on p.cond until broadcastWake runs or ctx is done.
// Callers must hold p.mu; it is released while waiting and re-acquired
// before this returns.
func (p *Pool) waitLocked(ctx context.Context) error {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-stop:
		}
	}()
	p.cond.Wait()
	close(stop)
	return ctx.Err()
}

func (p *Pool) create(ctx context.Context, guard *semaphore.AcquireGuard) (*Context, error) {
	dialCtx, cancel := context.WithTimeout(transport.WithLogger(ctx, p.log), p.cfg.ConnectTimeout)
	defer cancel()

	conn, err := p.connecter.Connect(dialCtx)
	if err != nil {
		time.Sleep(p.cfg.DampingSleep)
		count := atomic.AddInt64(&p.connectFailures, 1)
		metrics.connectFails.Inc()
		p.log.WithError(err).WithField("failureCount", count).Warn("pool: connect failed")
		p.cfg.ConnectionLostHandler(&ConnectionLostEvent{Err: err, FailureCount: count})
		guard.Release()
		p.broadcastWake()
		return nil, &ConnectError{Underlying: err}
	}
	atomic.StoreInt64(&p.connectFailures, 0)

	c := &Context{
		Conn:      conn,
		OutBuffer: new(bytes.Buffer),
		Scratch:   make([]byte, p.cfg.ScratchSize),
		state:     StateAcquired,
		guard:     guard,
	}
	metrics.created.Inc()
	metrics.active.Inc()
	p.log.Debug("pool: created connection")
	return c, nil
}

// Release returns a context to the idle set if it is still alive and
// the idle set has room; otherwise it disposes it. Release and Dispose
// are mutually exclusive: a context settled by one must never be passed
// to the other.
func (p *Pool) Release(c *Context) {
	c.settle()
	c.SetState(StateReleased)

	p.mu.Lock()
	if p.closed || !c.isAlive() || len(p.idle) >= p.cfg.MaxIdle {
		p.mu.Unlock()
		p.teardown(c)
		return
	}
	c.SetState(StateIdle)
	p.idle = append(p.idle, c)
	p.mu.Unlock()

	metrics.idle.Inc()
	p.log.Debug("pool: released connection to idle")
	p.broadcastWake()
}

// Dispose tears down a context instead of returning it to the pool, used
// after an error leaves its channel in an unknown state.
func (p *Pool) Dispose(c *Context) {
	c.settle()
	p.log.Debug("pool: disposing connection")
	p.teardown(c)
}

// teardown closes the underlying connection and frees the context's
// semaphore permit. It does not call c.settle: callers that pulled c out
// of the idle set themselves (a dead idle context discovered by Acquire)
// have not gone through Release/Dispose and must not be double-settled.
func (p *Pool) teardown(c *Context) {
	c.SetState(StateClosed)
	_ = c.Conn.Close()
	c.guard.Release()
	metrics.disposed.Inc()
	metrics.active.Dec()
	p.broadcastWake()
}

// Close disposes all currently idle contexts. If forceIdle is true,
// further Acquire calls fail with ErrPoolClosed; otherwise the pool
// remains open and may create fresh connections again on demand.
func (p *Pool) Close(forceIdle bool) error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	if forceIdle {
		p.closed = true
	}
	p.mu.Unlock()

	var firstErr error
	for _, c := range idle {
		c.SetState(StateClosed)
		if err := c.Conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.guard.Release()
		metrics.disposed.Inc()
		metrics.active.Dec()
		metrics.idle.Dec()
	}
	p.broadcastWake()
	return firstErr
}
