// Package response implements the response value plus its lazy
// transaction stream (C7): the primary value, the store-identity
// triple, and a restart-free iterator of (datasource, txId, payload)
// triples that must be consumed (or explicitly abandoned) in order.
package response

import (
	"sync"

	"github.com/gravitydb/hacomm/logger"
	"github.com/gravitydb/hacomm/protocol"
	"github.com/gravitydb/hacomm/wire/blocklog"
	"github.com/gravitydb/hacomm/wire/chunk"
)

// Transaction is one record of a transaction stream: the datasource it
// belongs to, the transaction id, and a reader over its block-log
// payload. Payload must be read to completion (or the stream must be
// advanced past it, which drains it automatically) before calling Next
// again.
type Transaction struct {
	DatasourceName string
	TxID           int64
	Payload        *blocklog.Reader
}

// TransactionStream lazily yields Transaction records off of a
// dechunking reader, reading only as many frames as the consumed
// records require.
type TransactionStream struct {
	cr      *chunk.Reader
	names   protocol.DatasourceNames
	current *blocklog.Reader
	done    bool
	err     error
}

func newTransactionStream(cr *chunk.Reader, names protocol.DatasourceNames) *TransactionStream {
	return &TransactionStream{cr: cr, names: names}
}

// Next advances to the next transaction record, first draining whatever
// remains of the previous one's payload. It returns (_, false, nil) once
// the end-of-stream sentinel has been read. Once Next (or close) returns
// an error the stream is desynced with the wire and every subsequent
// call just replays that same error rather than issuing further reads.
func (s *TransactionStream) Next() (Transaction, bool, error) {
	if s.err != nil {
		return Transaction{}, false, s.err
	}
	if s.done {
		return Transaction{}, false, nil
	}
	if s.current != nil {
		if err := s.current.Drain(); err != nil {
			s.err = err
			return Transaction{}, false, err
		}
		s.current = nil
	}

	idx, err := s.cr.ReadU8()
	if err != nil {
		s.err = err
		return Transaction{}, false, err
	}
	if idx == 0 {
		s.done = true
		return Transaction{}, false, nil
	}

	name, err := s.names.Name(idx)
	if err != nil {
		s.err = err
		return Transaction{}, false, err
	}
	txID, err := s.cr.ReadInt64()
	if err != nil {
		s.err = err
		return Transaction{}, false, err
	}

	s.current = blocklog.NewReader(s.cr)
	return Transaction{DatasourceName: name, TxID: txID, Payload: s.current}, true, nil
}

// close reads and discards whatever transaction records remain, so the
// underlying dechunked message is fully consumed before its connection
// is returned to the pool. Its error, if any, tells the caller the
// channel is desynced and must be disposed rather than released.
func (s *TransactionStream) close() error {
	if s.err != nil {
		return s.err
	}
	if s.done {
		return nil
	}
	if s.current != nil {
		if err := s.current.Drain(); err != nil {
			s.err = err
			return err
		}
		s.current = nil
	}
	for {
		idx, err := s.cr.ReadU8()
		if err != nil {
			s.err = err
			return err
		}
		if idx == 0 {
			break
		}
		if _, err := s.cr.ReadInt64(); err != nil {
			s.err = err
			return err
		}
		if err := blocklog.NewReader(s.cr).Drain(); err != nil {
			s.err = err
			return err
		}
	}
	s.done = true
	return nil
}

// Response carries a request's typed value alongside the store identity
// it was produced from and its transaction stream. Close is idempotent
// and never returns an error: any failure draining an abandoned stream
// is logged instead, matching the "close() never raises" contract. A
// draining error leaves the channel desynced from the wire, so Close
// disposes it through dispose instead of returning it to the pool
// through release.
type Response[R any] struct {
	value   R
	storeID protocol.StoreID
	stream  *TransactionStream
	release func()
	dispose func()
	log     logger.Logger

	once sync.Once
}

// New constructs a Response. Exactly one of release or dispose is
// invoked, from Close, once the transaction stream has been drained:
// release on a clean drain, dispose if draining failed.
func New[R any](value R, storeID protocol.StoreID, cr *chunk.Reader, names protocol.DatasourceNames, release func(), dispose func(), log logger.Logger) *Response[R] {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Response[R]{
		value:   value,
		storeID: storeID,
		stream:  newTransactionStream(cr, names),
		release: release,
		dispose: dispose,
		log:     log,
	}
}

func (r *Response[R]) Value() R                        { return r.value }
func (r *Response[R]) StoreID() protocol.StoreID       { return r.storeID }
func (r *Response[R]) Transactions() *TransactionStream { return r.stream }

// Close drains any unconsumed transaction records and returns the
// channel to the pool, or disposes it if draining (here or earlier, via
// Transactions().Next) left it desynced. Calling Close more than once
// is a no-op.
func (r *Response[R]) Close() error {
	r.once.Do(func() {
		err := r.stream.close()
		if err != nil {
			r.log.WithError(err).Warn("response: error draining transaction stream on close")
		}
		switch {
		case err != nil && r.dispose != nil:
			r.dispose()
		case err == nil && r.release != nil:
			r.release()
		}
	})
	return nil
}
