// Package client implements the client core (C6): sendRequest's
// acquire/write/read/release lifecycle over a pooled connection.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/gravitydb/hacomm/logger"
	"github.com/gravitydb/hacomm/pool"
	"github.com/gravitydb/hacomm/protocol"
	"github.com/gravitydb/hacomm/request"
	"github.com/gravitydb/hacomm/response"
	"github.com/gravitydb/hacomm/wire/chunk"
)

// DefaultReadTimeout is used for kinds that do not set
// ReadTimeoutOverride. It differs from the 5-second pool connect
// timeout: once a channel is established, waiting for a reply is
// expected to take longer than dialing one.
const DefaultReadTimeout = 20 * time.Second

// ErrStoreIDUnsupported is returned when a kind demands a store-id check
// but the client has neither an expected id nor a StoreIDGetter.
var ErrStoreIDUnsupported = errors.New("client: store id check requested but no expected id or StoreIDGetter configured")

// Config parameterizes a Client's wire behavior.
type Config struct {
	InternalVersion byte
	AppVersion      byte

	// FrameLength bounds every outbound and inbound frame; 0 selects the
	// framing layer's default.
	FrameLength uint32

	// DefaultReadTimeout is used for kinds that don't override it.
	DefaultReadTimeout time.Duration

	// StoreIDGetter answers "what store am I supposed to be talking to"
	// when a kind demands a check and the caller didn't pass an expected
	// id explicitly. A nil getter is only an error if such a check is
	// actually requested.
	StoreIDGetter func() (protocol.StoreID, error)
}

func (c Config) withDefaults() Config {
	if c.DefaultReadTimeout == 0 {
		c.DefaultReadTimeout = DefaultReadTimeout
	}
	return c
}

// Client is the entry point for issuing requests over a pool of
// connections to one peer.
type Client struct {
	pool *pool.Pool
	cfg  Config
	log  logger.Logger
}

// NewClient wraps p, dispatching requests per cfg.
func NewClient(p *pool.Pool, cfg Config, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Client{pool: p, cfg: cfg.withDefaults(), log: log}
}

// Shutdown closes the underlying pool: idle channels are closed and
// further Acquire calls fail. In-flight requests surface an error as
// soon as their channel is torn down.
func (c *Client) Shutdown() error {
	return c.pool.Close(true)
}

// SendRequest performs one request/response exchange of the given kind:
// acquire a connection, write the kind tag, slave-context prelude and
// serialized payload, then read the typed value, store identity and
// transaction-stream header. On any failure the connection is disposed
// (never released) so the next SendRequest gets a fresh one.
func SendRequest[R any](ctx context.Context, c *Client, kind request.Kind[R], sctx protocol.SlaveContext, expectedStoreID *protocol.StoreID) (*response.Response[R], error) {
	pc, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, wrapCommunicationError(err)
	}

	if err := c.writeRequest(pc, kind.ID, kind.Serialize, sctx); err != nil {
		c.pool.Dispose(pc)
		return nil, wrapCommunicationError(err)
	}

	pc.SetState(pool.StateReading)
	cr := chunk.NewReader(pc.Conn, c.cfg.FrameLength, kind.ReadTimeout(c.cfg.DefaultReadTimeout), c.cfg.InternalVersion, c.cfg.AppVersion)

	value, err := kind.Deserialize(cr)
	if err != nil {
		c.pool.Dispose(pc)
		return nil, wrapCommunicationError(err)
	}

	storeID, err := protocol.ReadStoreID(cr)
	if err != nil {
		c.pool.Dispose(pc)
		return nil, wrapCommunicationError(err)
	}

	if kind.ShouldCheckStoreID {
		expected := expectedStoreID
		if expected == nil {
			if c.cfg.StoreIDGetter == nil {
				c.pool.Dispose(pc)
				return nil, wrapCommunicationError(ErrStoreIDUnsupported)
			}
			got, err := c.cfg.StoreIDGetter()
			if err != nil {
				c.pool.Dispose(pc)
				return nil, wrapCommunicationError(err)
			}
			expected = &got
		}
		if !storeID.Equal(*expected) {
			c.pool.Dispose(pc)
			return nil, wrapCommunicationError(&StoreMismatchError{Expected: *expected, Got: storeID})
		}
	}

	names, err := protocol.ReadDatasourceNames(cr)
	if err != nil {
		c.pool.Dispose(pc)
		return nil, wrapCommunicationError(err)
	}

	pc.SetState(pool.StateStreaming)
	release := func() { c.pool.Release(pc) }
	dispose := func() {
		pc.MarkBroken()
		c.pool.Release(pc)
	}
	return response.New(value, storeID, cr, names, release, dispose, c.log), nil
}

// writeRequest assembles the full request message into pc.OutBuffer and
// flushes it to the connection in one write: the kind tag, the
// slave-context prelude, and the kind's own serialized payload.
func (c *Client) writeRequest(pc *pool.Context, kindID byte, serialize request.Serializer, sctx protocol.SlaveContext) error {
	pc.SetState(pool.StateWriting)

	pc.OutBuffer.Reset()
	cw := chunk.NewWriter(pc.OutBuffer, c.cfg.FrameLength)
	cw.Begin(c.cfg.InternalVersion, c.cfg.AppVersion)

	if err := cw.WriteU8(kindID); err != nil {
		return err
	}
	if err := sctx.WriteTo(cw); err != nil {
		return err
	}
	if serialize != nil {
		if err := serialize(cw); err != nil {
			return err
		}
	}
	if err := cw.Done(); err != nil {
		return err
	}

	_, err := pc.Conn.Write(pc.OutBuffer.Bytes())
	return err
}
