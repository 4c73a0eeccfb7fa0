package protocol

import "github.com/pkg/errors"

// MaxAppliedTxs is the largest number of (datasource, txId) pairs a
// SlaveContext can carry: the list length is encoded as a single
// unsigned byte on the wire.
const MaxAppliedTxs = 255

// AppliedTx names the last transaction a slave applied for one
// datasource, used so the master can decide how much history the
// response needs to include.
type AppliedTx struct {
	DatasourceName string
	TxID           int64
}

// SlaveContext is the request prelude written ahead of every request's
// kind-specific payload: who is asking (sessionId, machineId), what
// triggered the request (eventIdentifier), and what the caller has
// already applied.
type SlaveContext struct {
	SessionID       uint64
	MachineID       int32
	EventIdentifier int32
	LastAppliedTxs  []AppliedTx
}

type prefixWriter interface {
	WriteU8(b byte) error
	WriteInt32(v int32) error
	WriteInt64(v int64) error
	WriteString(s string) error
}

type prefixReader interface {
	ReadU8() (byte, error)
	ReadInt32() (int32, error)
	ReadInt64() (int64, error)
	ReadString() (string, error)
}

// WriteTo appends the slave-context prelude's wire representation via w.
func (c SlaveContext) WriteTo(w prefixWriter) error {
	if len(c.LastAppliedTxs) > MaxAppliedTxs {
		return errors.Errorf("protocol: %d applied txs exceeds the %d-datasource limit", len(c.LastAppliedTxs), MaxAppliedTxs)
	}
	if err := w.WriteInt64(int64(c.SessionID)); err != nil {
		return err
	}
	if err := w.WriteInt32(c.MachineID); err != nil {
		return err
	}
	if err := w.WriteInt32(c.EventIdentifier); err != nil {
		return err
	}
	if err := w.WriteU8(byte(len(c.LastAppliedTxs))); err != nil {
		return err
	}
	for _, tx := range c.LastAppliedTxs {
		if err := w.WriteString(tx.DatasourceName); err != nil {
			return err
		}
		if err := w.WriteInt64(tx.TxID); err != nil {
			return err
		}
	}
	return nil
}

// ReadSlaveContext reads a SlaveContext off of r.
func ReadSlaveContext(r prefixReader) (SlaveContext, error) {
	var c SlaveContext

	sessionID, err := r.ReadInt64()
	if err != nil {
		return SlaveContext{}, err
	}
	c.SessionID = uint64(sessionID)

	if c.MachineID, err = r.ReadInt32(); err != nil {
		return SlaveContext{}, err
	}
	if c.EventIdentifier, err = r.ReadInt32(); err != nil {
		return SlaveContext{}, err
	}

	count, err := r.ReadU8()
	if err != nil {
		return SlaveContext{}, err
	}
	c.LastAppliedTxs = make([]AppliedTx, count)
	for i := range c.LastAppliedTxs {
		name, err := r.ReadString()
		if err != nil {
			return SlaveContext{}, err
		}
		txID, err := r.ReadInt64()
		if err != nil {
			return SlaveContext{}, err
		}
		c.LastAppliedTxs[i] = AppliedTx{DatasourceName: name, TxID: txID}
	}
	return c, nil
}
