package protocol

import "github.com/pkg/errors"

// MaxDatasources is the largest number of datasource names a
// transaction-stream header can carry (one unsigned byte on the wire).
const MaxDatasources = 255

// DatasourceNames is a transaction-stream header: the list of datasource
// names a response's transaction records may reference. A sentinel empty
// slot is kept at index 0 internally so that a transaction record's
// index 0 unambiguously means "end of stream" rather than colliding with
// a real datasource.
type DatasourceNames struct {
	names []string // names[0] is the "" end-of-stream sentinel
}

// WriteDatasourceNames appends the header's wire representation via w:
// one unsigned byte count, then that many length-prefixed strings.
func WriteDatasourceNames(w prefixWriter, names []string) error {
	if len(names) > MaxDatasources {
		return errors.Errorf("protocol: %d datasource names exceeds the %d limit", len(names), MaxDatasources)
	}
	if err := w.WriteU8(byte(len(names))); err != nil {
		return err
	}
	for _, n := range names {
		if err := w.WriteString(n); err != nil {
			return err
		}
	}
	return nil
}

// ReadDatasourceNames reads a transaction-stream header off of r.
func ReadDatasourceNames(r prefixReader) (DatasourceNames, error) {
	count, err := r.ReadU8()
	if err != nil {
		return DatasourceNames{}, err
	}
	names := make([]string, count+1)
	for i := 1; i <= int(count); i++ {
		n, err := r.ReadString()
		if err != nil {
			return DatasourceNames{}, err
		}
		names[i] = n
	}
	return DatasourceNames{names: names}, nil
}

// Len returns the number of real (non-sentinel) datasource names.
func (d DatasourceNames) Len() int {
	if len(d.names) == 0 {
		return 0
	}
	return len(d.names) - 1
}

// Name resolves a one-byte datasource index (as read from a transaction
// record) to its name. Index 0 is the end-of-stream sentinel and is
// never a valid argument here; callers must check for it first.
func (d DatasourceNames) Name(index byte) (string, error) {
	if index == 0 || int(index) >= len(d.names) {
		return "", errors.Errorf("protocol: datasource index %d out of range for %d-entry header", index, d.Len())
	}
	return d.names[index], nil
}
