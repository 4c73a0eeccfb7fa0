// Package blocklog implements the block-log sub-stream (C4): a
// length-delimited byte stream embedded inside a dechunked message,
// used to carry one transaction's payload without the reader having to
// know its total length up front.
//
// A block is one unsigned byte blockSize followed either by exactly
// DataSize bytes (blockSize == 0, "full intermediate block", all bytes
// valid) or by blockSize bytes (blockSize > 0, terminal block, that many
// bytes valid). Exactly one terminal block ends the stream.
package blocklog

import (
	"io"

	"github.com/pkg/errors"

	"github.com/gravitydb/hacomm/wire/chunk"
)

// DataSize is the fixed payload size of a full intermediate block. It is
// the largest value representable by the one-byte blockSize field, so
// that a payload whose length is an exact multiple of DataSize can still
// mark its last block as terminal (blockSize == DataSize).
const DataSize = 255

// ErrEmptyPayload is returned by Writer.Close when no bytes were ever
// written: the wire format has no representation for a zero-length
// transaction payload (a terminal block's blockSize is always > 0).
var ErrEmptyPayload = errors.New("blocklog: cannot encode a zero-length payload")

// chunkWriter is the subset of chunk.Writer that blocklog needs.
type chunkWriter interface {
	WriteU8(b byte) error
	WriteBytes(b []byte) error
}

var _ chunkWriter = (*chunk.Writer)(nil)

// Writer buffers up to DataSize bytes at a time and emits them as blocks
// on an underlying chunk.Writer. Callers must call Close exactly once
// after their final Write.
type Writer struct {
	cw     chunkWriter
	buf    [DataSize]byte
	n      int
	closed bool
}

func NewWriter(cw chunkWriter) *Writer {
	return &Writer{cw: cw}
}

// Write buffers p, flushing full intermediate blocks as the buffer fills.
// It implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		room := DataSize - w.n
		n := room
		if n > len(p) {
			n = len(p)
		}
		copy(w.buf[w.n:], p[:n])
		w.n += n
		p = p[n:]
		written += n

		if w.n == DataSize && len(p) > 0 {
			// More data is coming, so this buffer is definitely a full
			// intermediate block, not the terminal one.
			if err := w.flush(0); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (w *Writer) flush(blockSize byte) error {
	if err := w.cw.WriteU8(blockSize); err != nil {
		return errors.Wrap(err, "blocklog: write block size")
	}
	if err := w.cw.WriteBytes(w.buf[:w.n]); err != nil {
		return errors.Wrap(err, "blocklog: write block payload")
	}
	w.n = 0
	return nil
}

// Close emits the terminal block. Per the boundary invariant, when the
// buffered remainder exactly fills a block (including when the entire
// payload was an exact multiple of DataSize) the terminal blockSize is
// DataSize rather than 0.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.n == 0 {
		return ErrEmptyPayload
	}
	blockSize := byte(w.n)
	if w.n == DataSize {
		blockSize = DataSize
	}
	return w.flush(blockSize)
}

// chunkReader is the subset of chunk.Reader that blocklog needs.
type chunkReader interface {
	ReadU8() (byte, error)
	ReadBytes(dst []byte) error
}

var _ chunkReader = (*chunk.Reader)(nil)

// Reader reads one block-log stream's worth of bytes from an underlying
// chunk.Reader, transparently spanning block boundaries.
type Reader struct {
	cr chunkReader

	buf      []byte
	pos      int
	terminal bool
	done     bool
}

func NewReader(cr chunkReader) *Reader {
	return &Reader{cr: cr}
}

func (r *Reader) fillBlock() error {
	blockSize, err := r.cr.ReadU8()
	if err != nil {
		return errors.Wrap(err, "blocklog: read block size")
	}
	n := int(blockSize)
	if blockSize == 0 {
		n = DataSize
	} else {
		r.terminal = true
	}
	buf := make([]byte, n)
	if err := r.cr.ReadBytes(buf); err != nil {
		return errors.Wrap(err, "blocklog: read block payload")
	}
	r.buf = buf
	r.pos = 0
	return nil
}

// Read implements io.Reader over the concatenation of valid bytes across
// blocks, in order. It returns io.EOF once the terminal block has been
// fully consumed.
func (r *Reader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	if r.pos >= len(r.buf) {
		if r.terminal {
			r.done = true
			return 0, io.EOF
		}
		if err := r.fillBlock(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	if r.pos >= len(r.buf) && r.terminal {
		r.done = true
	}
	return n, nil
}

// Drain reads and discards the remainder of the stream, used when a
// caller moves on to the next transaction without consuming this one's
// payload in full.
func (r *Reader) Drain() error {
	buf := make([]byte, DataSize)
	for {
		_, err := r.Read(buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
