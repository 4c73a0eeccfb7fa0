package response_test

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gravitydb/hacomm/protocol"
	"github.com/gravitydb/hacomm/response"
	"github.com/gravitydb/hacomm/wire/chunk"
)

// fakeConn adapts a bytes.Buffer to the DeadlineReader interface chunk.Reader
// needs, without pulling in a real socket.
type fakeConn struct {
	*bytes.Buffer
}

func (fakeConn) SetReadDeadline(time.Time) error { return nil }

func TestResponseCloseReleasesOnCleanDrain(t *testing.T) {
	var buf bytes.Buffer
	cw := chunk.NewWriter(&buf, 0)
	cw.Begin(1, 1)
	require.NoError(t, cw.WriteString("value"))
	require.NoError(t, protocol.StoreID{}.WriteTo(cw))
	require.NoError(t, protocol.WriteDatasourceNames(cw, nil))
	require.NoError(t, cw.WriteU8(0)) // end-of-stream sentinel, nothing pending
	require.NoError(t, cw.Done())

	cr := chunk.NewReader(fakeConn{&buf}, 0, 0, 1, 1)
	value, err := cr.ReadString()
	require.NoError(t, err)
	storeID, err := protocol.ReadStoreID(cr)
	require.NoError(t, err)
	names, err := protocol.ReadDatasourceNames(cr)
	require.NoError(t, err)

	var released, disposed int32
	resp := response.New(value, storeID, cr, names,
		func() { atomic.AddInt32(&released, 1) },
		func() { atomic.AddInt32(&disposed, 1) },
		nil,
	)

	require.NoError(t, resp.Close())
	require.Equal(t, int32(1), atomic.LoadInt32(&released))
	require.Equal(t, int32(0), atomic.LoadInt32(&disposed))

	// Close is idempotent: a second call must not invoke either hook again.
	require.NoError(t, resp.Close())
	require.Equal(t, int32(1), atomic.LoadInt32(&released))
	require.Equal(t, int32(0), atomic.LoadInt32(&disposed))
}

// A message whose transaction section is cut short mid-record leaves the
// stream desynced from the wire; Close must dispose the connection rather
// than hand a connection in an unknown state back to the pool.
func TestResponseCloseDisposesOnStreamDrainError(t *testing.T) {
	var buf bytes.Buffer
	cw := chunk.NewWriter(&buf, 0)
	cw.Begin(1, 1)
	require.NoError(t, cw.WriteString("value"))
	require.NoError(t, protocol.StoreID{}.WriteTo(cw))
	require.NoError(t, protocol.WriteDatasourceNames(cw, []string{"ds1"}))
	require.NoError(t, cw.WriteU8(1)) // a record index, with nothing after it
	require.NoError(t, cw.Done())

	cr := chunk.NewReader(fakeConn{&buf}, 0, 0, 1, 1)
	value, err := cr.ReadString()
	require.NoError(t, err)
	storeID, err := protocol.ReadStoreID(cr)
	require.NoError(t, err)
	names, err := protocol.ReadDatasourceNames(cr)
	require.NoError(t, err)

	var released, disposed int32
	resp := response.New(value, storeID, cr, names,
		func() { atomic.AddInt32(&released, 1) },
		func() { atomic.AddInt32(&disposed, 1) },
		nil,
	)

	require.NoError(t, resp.Close())
	require.Equal(t, int32(0), atomic.LoadInt32(&released))
	require.Equal(t, int32(1), atomic.LoadInt32(&disposed))
}

// The same drain error surfacing through Transactions().Next() directly
// (rather than discovered for the first time inside Close) must also lead
// Close to dispose, and must not re-read the wire on the second attempt.
func TestResponseNextErrorIsStickyAndDisposesOnClose(t *testing.T) {
	var buf bytes.Buffer
	cw := chunk.NewWriter(&buf, 0)
	cw.Begin(1, 1)
	require.NoError(t, cw.WriteString("value"))
	require.NoError(t, protocol.StoreID{}.WriteTo(cw))
	require.NoError(t, protocol.WriteDatasourceNames(cw, []string{"ds1"}))
	require.NoError(t, cw.WriteU8(1))
	require.NoError(t, cw.Done())

	cr := chunk.NewReader(fakeConn{&buf}, 0, 0, 1, 1)
	value, err := cr.ReadString()
	require.NoError(t, err)
	storeID, err := protocol.ReadStoreID(cr)
	require.NoError(t, err)
	names, err := protocol.ReadDatasourceNames(cr)
	require.NoError(t, err)

	var disposed int32
	resp := response.New(value, storeID, cr, names,
		func() {},
		func() { atomic.AddInt32(&disposed, 1) },
		nil,
	)

	_, _, err = resp.Transactions().Next()
	require.Error(t, err)
	firstErr := err

	_, _, err = resp.Transactions().Next()
	require.Equal(t, firstErr, err, "a desynced stream must replay its error, not issue further reads")

	require.NoError(t, resp.Close())
	require.Equal(t, int32(1), atomic.LoadInt32(&disposed))
}
