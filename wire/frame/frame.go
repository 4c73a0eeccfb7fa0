// Package frame implements the length-prefixed framing codec (C1): the
// smallest on-wire unit shared by every higher layer in this module. A
// frame is a 4-byte big-endian length field followed by that many payload
// bytes; this package delivers or writes one full payload at a time and
// never splits or merges payloads across frame boundaries.
package frame

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// DefaultMaxLength is used when a Reader is constructed without an
// explicit limit. It matches the module's default frame length (see
// client.Config.FrameLength).
const DefaultMaxLength = 1 << 20 // 1 MiB

// ErrFrameTooLarge is returned by Reader.ReadFrame when an inbound frame's
// declared length exceeds the configured maximum. Per spec this is a fatal
// protocol error: the connection must be aborted, not merely the read.
var ErrFrameTooLarge = errors.New("frame: length exceeds configured maximum")

const headerLen = 4

// Reader reads length-prefixed frames off of an io.Reader.
type Reader struct {
	r         io.Reader
	maxLength uint32
}

// NewReader returns a Reader that rejects any frame whose declared length
// exceeds maxLength. A maxLength of 0 selects DefaultMaxLength.
func NewReader(r io.Reader, maxLength uint32) *Reader {
	if maxLength == 0 {
		maxLength = DefaultMaxLength
	}
	return &Reader{r: r, maxLength: maxLength}
}

// ReadFrame reads one frame's payload in full. The returned slice is freshly
// allocated and owned by the caller.
func (fr *Reader) ReadFrame() ([]byte, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > fr.maxLength {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, errors.Wrap(err, "frame: short read of payload")
	}
	return payload, nil
}

// Writer writes length-prefixed frames to an io.Writer. Each call to
// WriteFrame performs a single Write of header+payload so that frames are
// atomic with respect to concurrent writers sharing the same underlying
// connection only if they also serialize their calls to WriteFrame; Writer
// itself does no locking (callers in this module serialize at the chunk
// layer, which owns the connection for the duration of one logical
// message).
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes payload as a single frame. len(payload) must fit in a
// uint32; this module never produces frames anywhere near that size.
func (fw *Writer) WriteFrame(payload []byte) error {
	buf := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint32(buf[:headerLen], uint32(len(payload)))
	copy(buf[headerLen:], payload)
	_, err := fw.w.Write(buf)
	return err
}
