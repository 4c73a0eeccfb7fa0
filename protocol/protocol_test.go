package protocol

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gravitydb/hacomm/wire/chunk"
)

type fakeConn struct{ *bytes.Buffer }

func (fakeConn) SetReadDeadline(time.Time) error { return nil }

func TestStoreIDRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cw := chunk.NewWriter(&buf, 0)
	cw.Begin(1, 1)
	want := StoreID{CreationTime: 111, RandomID: 222, StoreVersion: 333}
	require.NoError(t, want.WriteTo(cw))
	require.NoError(t, cw.Done())

	cr := chunk.NewReader(fakeConn{&buf}, 0, 0, 1, 1)
	got, err := ReadStoreID(cr)
	require.NoError(t, err)
	require.True(t, got.Equal(want))
}

func TestSlaveContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cw := chunk.NewWriter(&buf, 0)
	cw.Begin(1, 1)
	want := SlaveContext{
		SessionID:       1 << 40,
		MachineID:       7,
		EventIdentifier: 99,
		LastAppliedTxs: []AppliedTx{
			{DatasourceName: "nioneo", TxID: 42},
			{DatasourceName: "lucene", TxID: 7},
		},
	}
	require.NoError(t, want.WriteTo(cw))
	require.NoError(t, cw.Done())

	cr := chunk.NewReader(fakeConn{&buf}, 0, 0, 1, 1)
	got, err := ReadSlaveContext(cr)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSlaveContextTooManyAppliedTxs(t *testing.T) {
	c := SlaveContext{LastAppliedTxs: make([]AppliedTx, MaxAppliedTxs+1)}
	var buf bytes.Buffer
	cw := chunk.NewWriter(&buf, 0)
	cw.Begin(1, 1)
	require.Error(t, c.WriteTo(cw))
}

func TestDatasourceNamesRoundTripAndSentinel(t *testing.T) {
	var buf bytes.Buffer
	cw := chunk.NewWriter(&buf, 0)
	cw.Begin(1, 1)
	require.NoError(t, WriteDatasourceNames(cw, []string{"nioneo", "lucene"}))
	require.NoError(t, cw.Done())

	cr := chunk.NewReader(fakeConn{&buf}, 0, 0, 1, 1)
	names, err := ReadDatasourceNames(cr)
	require.NoError(t, err)
	require.Equal(t, 2, names.Len())

	n1, err := names.Name(1)
	require.NoError(t, err)
	require.Equal(t, "nioneo", n1)

	n2, err := names.Name(2)
	require.NoError(t, err)
	require.Equal(t, "lucene", n2)

	_, err = names.Name(0)
	require.Error(t, err)

	_, err = names.Name(3)
	require.Error(t, err)
}

func TestDatasourceNamesEmpty(t *testing.T) {
	var buf bytes.Buffer
	cw := chunk.NewWriter(&buf, 0)
	cw.Begin(1, 1)
	require.NoError(t, WriteDatasourceNames(cw, nil))
	require.NoError(t, cw.Done())

	cr := chunk.NewReader(fakeConn{&buf}, 0, 0, 1, 1)
	names, err := ReadDatasourceNames(cr)
	require.NoError(t, err)
	require.Equal(t, 0, names.Len())
}
