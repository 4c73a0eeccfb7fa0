package chunk

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/gravitydb/hacomm/wire/frame"
)

// DeadlineReader is the minimal surface a Reader needs from the underlying
// transport: something to read frames from, and (optionally) something to
// arm a per-frame-wait deadline on. net.Conn satisfies this.
type DeadlineReader interface {
	Read(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
}

// Reader reassembles a logical message from successive frames (C3). It
// exposes a blocking, bounded byte source: reads block until enough bytes
// have arrived or the message is fully received, and a read timeout fires
// if no frame arrives in time.
type Reader struct {
	conn    DeadlineReader
	fr      *frame.Reader
	timeout time.Duration

	expectedInternalVersion, expectedAppVersion byte
	versionChecked                              bool

	buf      []byte
	pos      int
	lastSeen bool
	markPos  int

	sticky error
}

// NewReader returns a Reader over conn expecting the given protocol
// versions on the first frame of the message, waiting at most timeout for
// each frame (a zero timeout disables the deadline).
func NewReader(conn DeadlineReader, maxFrameLength uint32, timeout time.Duration, expectedInternalVersion, expectedAppVersion byte) *Reader {
	return &Reader{
		conn:                    conn,
		fr:                      frame.NewReader(conn, maxFrameLength),
		timeout:                 timeout,
		expectedInternalVersion: expectedInternalVersion,
		expectedAppVersion:      expectedAppVersion,
		markPos:                 -1,
	}
}

func (cr *Reader) ensureFrame() error {
	if cr.sticky != nil {
		return cr.sticky
	}
	if cr.lastSeen {
		return nil
	}

	if cr.timeout > 0 {
		if err := cr.conn.SetReadDeadline(time.Now().Add(cr.timeout)); err != nil {
			cr.sticky = &FrameError{Underlying: err}
			return cr.sticky
		}
	}

	payload, err := cr.fr.ReadFrame()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			cr.sticky = &TimeoutError{Underlying: err}
		} else {
			cr.sticky = &FrameError{Underlying: err}
		}
		return cr.sticky
	}

	var flag byte
	var data []byte
	if !cr.versionChecked {
		if len(payload) < 3 {
			cr.sticky = &FrameError{Underlying: io.ErrUnexpectedEOF}
			return cr.sticky
		}
		gotInternal, gotApp := payload[0], payload[1]
		if gotInternal != cr.expectedInternalVersion {
			cr.sticky = &VersionMismatchError{Field: "internal", Expected: cr.expectedInternalVersion, Got: gotInternal}
			return cr.sticky
		}
		if gotApp != cr.expectedAppVersion {
			cr.sticky = &VersionMismatchError{Field: "application", Expected: cr.expectedAppVersion, Got: gotApp}
			return cr.sticky
		}
		cr.versionChecked = true
		flag = payload[2]
		data = payload[3:]
	} else {
		if len(payload) < 1 {
			cr.sticky = &FrameError{Underlying: io.ErrUnexpectedEOF}
			return cr.sticky
		}
		flag = payload[0]
		data = payload[1:]
	}

	switch flag {
	case flagMore:
	case flagLast:
		cr.lastSeen = true
	default:
		cr.sticky = &BadFlagError{Got: flag}
		return cr.sticky
	}

	cr.buf = append(cr.buf, data...)
	return nil
}

// ensure guarantees at least n unread bytes are buffered, blocking on
// further frame reads as needed.
func (cr *Reader) ensure(n int) error {
	for len(cr.buf)-cr.pos < n && !cr.lastSeen {
		if err := cr.ensureFrame(); err != nil {
			return err
		}
	}
	avail := len(cr.buf) - cr.pos
	if avail < n {
		if avail == 0 {
			return ErrEndOfMessage
		}
		return ErrInsufficientData
	}
	return nil
}

func (cr *Reader) ReadU8() (byte, error) {
	if err := cr.ensure(1); err != nil {
		return 0, err
	}
	b := cr.buf[cr.pos]
	cr.pos++
	return b, nil
}

func (cr *Reader) ReadInt32() (int32, error) {
	if err := cr.ensure(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(cr.buf[cr.pos : cr.pos+4])
	cr.pos += 4
	return int32(v), nil
}

func (cr *Reader) ReadInt64() (int64, error) {
	if err := cr.ensure(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(cr.buf[cr.pos : cr.pos+8])
	cr.pos += 8
	return int64(v), nil
}

// ReadBytes reads exactly len(dst) bytes into dst.
func (cr *Reader) ReadBytes(dst []byte) error {
	if err := cr.ensure(len(dst)); err != nil {
		return err
	}
	copy(dst, cr.buf[cr.pos:cr.pos+len(dst)])
	cr.pos += len(dst)
	return nil
}

// ReadString reads a 4-byte length prefix followed by that many UTF-8
// bytes.
func (cr *Reader) ReadString() (string, error) {
	n, err := cr.ReadInt32()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if err := cr.ReadBytes(b); err != nil {
		return "", err
	}
	return string(b), nil
}

// Mark records the current read position so a later Reset can rewind to
// it. Only one mark is remembered at a time; a new Mark call replaces the
// previous one.
func (cr *Reader) Mark() {
	cr.markPos = cr.pos
}

// Reset rewinds the read cursor to the last Mark. It returns ErrNoMark if
// Mark was never called.
func (cr *Reader) Reset() error {
	if cr.markPos < 0 {
		return ErrNoMark
	}
	cr.pos = cr.markPos
	return nil
}

// AtEnd reports whether the message has been fully consumed: no more
// bytes are buffered and the last-chunk frame has already been seen. It
// never blocks on the network beyond what has already been read.
func (cr *Reader) AtEnd() bool {
	return cr.lastSeen && cr.pos >= len(cr.buf)
}

// Drain reads and discards any remaining frames of the message, used when
// a caller abandons a response before consuming its transaction stream.
func (cr *Reader) Drain() error {
	for !cr.lastSeen {
		if err := cr.ensureFrame(); err != nil {
			return err
		}
	}
	cr.pos = len(cr.buf)
	return nil
}
