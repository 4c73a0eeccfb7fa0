// Package protocol implements the fixed-shape structures shared by every
// request and response: the slave-context request prelude and the
// store-identity triple appended to every response.
package protocol

import "fmt"

// StoreID is the fixed 24-byte triple identifying the data store a
// response was produced from.
type StoreID struct {
	CreationTime int64
	RandomID     int64
	StoreVersion int64
}

func (s StoreID) String() string {
	return fmt.Sprintf("StoreID{creationTime:%d randomId:%d storeVersion:%d}", s.CreationTime, s.RandomID, s.StoreVersion)
}

// Equal reports whether two store identities refer to the same store.
func (s StoreID) Equal(other StoreID) bool {
	return s == other
}

// chunkWriter is the subset of chunk.Writer that StoreID needs.
type chunkWriter interface {
	WriteInt64(v int64) error
}

// chunkReader is the subset of chunk.Reader that StoreID needs.
type chunkReader interface {
	ReadInt64() (int64, error)
}

// WriteTo appends the triple's wire representation via w.
func (s StoreID) WriteTo(w chunkWriter) error {
	if err := w.WriteInt64(s.CreationTime); err != nil {
		return err
	}
	if err := w.WriteInt64(s.RandomID); err != nil {
		return err
	}
	return w.WriteInt64(s.StoreVersion)
}

// ReadStoreID reads a StoreID off of r.
func ReadStoreID(r chunkReader) (StoreID, error) {
	var s StoreID
	var err error
	if s.CreationTime, err = r.ReadInt64(); err != nil {
		return StoreID{}, err
	}
	if s.RandomID, err = r.ReadInt64(); err != nil {
		return StoreID{}, err
	}
	if s.StoreVersion, err = r.ReadInt64(); err != nil {
		return StoreID{}, err
	}
	return s, nil
}
