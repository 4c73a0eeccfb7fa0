package pool

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gravitydb/hacomm/transport"
)

// pipeConnecter hands out one side of a net.Pipe per Connect call,
// draining whatever arrives on the other side so tests don't need a real
// peer.
type pipeConnecter struct {
	created int32
}

func (c *pipeConnecter) Connect(ctx context.Context) (transport.Wire, error) {
	atomic.AddInt32(&c.created, 1)
	client, server := net.Pipe()
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()
	return client, nil
}

type failingConnecter struct{}

func (failingConnecter) Connect(ctx context.Context) (transport.Wire, error) {
	return nil, context.DeadlineExceeded
}

type connecterFunc func(ctx context.Context) (transport.Wire, error)

func (f connecterFunc) Connect(ctx context.Context) (transport.Wire, error) { return f(ctx) }

func TestPoolAcquireCreatesUpToMaxActive(t *testing.T) {
	cn := &pipeConnecter{}
	p := New(cn, Config{MaxActive: 2, MaxIdle: 2}, nil)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotSame(t, c1, c2)
	require.Equal(t, int32(2), atomic.LoadInt32(&cn.created))
}

func TestPoolReleaseThenReacquireReusesContext(t *testing.T) {
	cn := &pipeConnecter{}
	p := New(cn, Config{MaxActive: 1, MaxIdle: 1}, nil)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(c1)

	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, c1, c2)
	require.Equal(t, int32(1), atomic.LoadInt32(&cn.created))
}

func TestPoolDisposeFreesCapacityForFreshCreate(t *testing.T) {
	cn := &pipeConnecter{}
	p := New(cn, Config{MaxActive: 1, MaxIdle: 1}, nil)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Dispose(c1)

	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotSame(t, c1, c2)
	require.Equal(t, int32(2), atomic.LoadInt32(&cn.created))
}

func TestPoolConnectFailureSurfacesConnectError(t *testing.T) {
	p := New(failingConnecter{}, Config{MaxActive: 1, MaxIdle: 1, DampingSleep: time.Millisecond}, nil)
	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
}

func TestPoolExhaustionBlocksThenUnblocksOnRelease(t *testing.T) {
	cn := &pipeConnecter{}
	p := New(cn, Config{MaxActive: 2, MaxIdle: 2}, nil)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var thirdAcquired int32
	wg.Add(1)
	go func() {
		defer wg.Done()
		c3, err := p.Acquire(context.Background())
		require.NoError(t, err)
		atomic.StoreInt32(&thirdAcquired, 1)
		p.Release(c3)
	}()

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&thirdAcquired), "third acquire must block while pool is at capacity")

	p.Release(c1)
	wg.Wait()
	require.Equal(t, int32(1), atomic.LoadInt32(&thirdAcquired))

	p.Release(c2)
}

func TestPoolAcquireRespectsContextCancellation(t *testing.T) {
	cn := &pipeConnecter{}
	p := New(cn, Config{MaxActive: 1, MaxIdle: 1}, nil)

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	require.Error(t, err)
}

func TestPoolCloseDisposesIdle(t *testing.T) {
	cn := &pipeConnecter{}
	p := New(cn, Config{MaxActive: 1, MaxIdle: 1}, nil)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(c1)

	require.NoError(t, p.Close(true))

	_, err = p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrPoolClosed)
}

// Regression test for a lost-wakeup bug: with two waiters blocked on an
// exhausted pool, two near-simultaneous Releases must wake both of them,
// not just one.
func TestPoolAcquireWakesAllBlockedWaitersOnNearSimultaneousRelease(t *testing.T) {
	cn := &pipeConnecter{}
	p := New(cn, Config{MaxActive: 2, MaxIdle: 2}, nil)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)

	results := make(chan *Context, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.Acquire(context.Background())
			require.NoError(t, err)
			results <- c
		}()
	}

	time.Sleep(20 * time.Millisecond) // let both goroutines block in Acquire

	var releaseWg sync.WaitGroup
	releaseWg.Add(2)
	go func() { defer releaseWg.Done(); p.Release(c1) }()
	go func() { defer releaseWg.Done(); p.Release(c2) }()
	releaseWg.Wait()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a blocked Acquire was never woken: lost wakeup")
	}

	close(results)
	var got []*Context
	for c := range results {
		got = append(got, c)
	}
	require.Len(t, got, 2)
}

// Regression test: a context that dies while sitting idle (peer closed the
// socket) must not be handed back out by Acquire; the pool must detect it
// and dial a fresh connection instead.
func TestPoolAcquireDisposesConnectionThatDiedWhileIdle(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	drained := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := serverConn.Read(buf); err != nil {
				close(drained)
				return
			}
		}
	}()

	var calls int32
	cn := connecterFunc(func(ctx context.Context) (transport.Wire, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return clientConn, nil
		}
		c2, s2 := net.Pipe()
		go func() {
			buf := make([]byte, 4096)
			for {
				if _, err := s2.Read(buf); err != nil {
					return
				}
			}
		}()
		return c2, nil
	})

	p := New(cn, Config{MaxActive: 1, MaxIdle: 1}, nil)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(c1) // channel still alive here, so it goes to idle

	serverConn.Close() // peer gone while c1 sits idle
	<-drained

	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotSame(t, c1, c2)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPoolDoubleReleasePanicsWithInvariantError(t *testing.T) {
	cn := &pipeConnecter{}
	p := New(cn, Config{MaxActive: 1, MaxIdle: 1}, nil)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(c1)

	require.Panics(t, func() { p.Release(c1) })
}
