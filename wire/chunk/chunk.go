// Package chunk implements the chunking writer (C2), the dechunking reader
// (C3), and the version handshake embedded in the first chunk of every
// logical message. A logical message is the concatenation of user-data
// bytes across a run of frames whose payload begins with a one-byte
// continuation flag (and, for the very first frame, two version bytes
// ahead of the flag).
package chunk

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/gravitydb/hacomm/wire/frame"
)

// Writer assembles a logical message out of a sequence of writeX calls and
// splits it into frames of at most frameLength bytes each, exactly as
// specified in §4.2. Callers must call Begin exactly once, then any number
// of WriteX calls, then Done exactly once.
type Writer struct {
	fw          *frame.Writer
	frameLength uint32

	buf            []byte
	firstFrameSent bool
	began          bool
	done           bool

	internalVersion, appVersion byte
}

// NewWriter returns a Writer that emits frames of at most frameLength bytes
// (header + payload) to w.
func NewWriter(w io.Writer, frameLength uint32) *Writer {
	if frameLength == 0 {
		frameLength = frame.DefaultMaxLength
	}
	return &Writer{fw: frame.NewWriter(w), frameLength: frameLength}
}

// Begin starts a new logical message, reserving space for the handshake
// and flag byte in the first frame.
func (cw *Writer) Begin(internalVersion, appVersion byte) {
	cw.internalVersion = internalVersion
	cw.appVersion = appVersion
	cw.buf = cw.buf[:0]
	cw.firstFrameSent = false
	cw.began = true
	cw.done = false
}

// headerOverhead is the number of non-user-data bytes ("flag" plus,
// for the first frame only, the two version bytes) that must fit
// alongside cw.buf in the next frame to be emitted.
func (cw *Writer) headerOverhead() uint32 {
	if cw.firstFrameSent {
		return 1
	}
	return 3
}

func (cw *Writer) capacity() int {
	c := int(cw.frameLength) - int(cw.headerOverhead())
	if c < 1 {
		c = 1
	}
	return c
}

func (cw *Writer) flush(flag uint8) error {
	overhead := cw.headerOverhead()
	payload := make([]byte, 0, int(overhead)+len(cw.buf))
	if !cw.firstFrameSent {
		payload = append(payload, cw.internalVersion, cw.appVersion)
	}
	payload = append(payload, flag)
	payload = append(payload, cw.buf...)

	if err := cw.fw.WriteFrame(payload); err != nil {
		return errors.Wrap(err, "chunk: write frame")
	}
	cw.buf = cw.buf[:0]
	cw.firstFrameSent = true
	return nil
}

// append buffers data, emitting intermediate (flag=more) frames whenever
// the buffer fills up.
func (cw *Writer) append(data []byte) error {
	for len(data) > 0 {
		room := cw.capacity() - len(cw.buf)
		if room <= 0 {
			if err := cw.flush(flagMore); err != nil {
				return err
			}
			room = cw.capacity()
		}
		n := room
		if n > len(data) {
			n = len(data)
		}
		cw.buf = append(cw.buf, data[:n]...)
		data = data[n:]
		if len(cw.buf) >= cw.capacity() {
			if err := cw.flush(flagMore); err != nil {
				return err
			}
		}
	}
	return nil
}

func (cw *Writer) WriteU8(b byte) error {
	return cw.append([]byte{b})
}

func (cw *Writer) WriteInt32(v int32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return cw.append(b[:])
}

func (cw *Writer) WriteInt64(v int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return cw.append(b[:])
}

func (cw *Writer) WriteBytes(b []byte) error {
	return cw.append(b)
}

// WriteString writes a 4-byte big-endian length followed by the UTF-8
// bytes of s.
func (cw *Writer) WriteString(s string) error {
	if err := cw.WriteInt32(int32(len(s))); err != nil {
		return err
	}
	return cw.append([]byte(s))
}

// Done emits the final (flag=last) frame. It must be called exactly once
// per message, after at least one byte has been written (spec: empty
// messages are not permitted).
func (cw *Writer) Done() error {
	if cw.done {
		return ErrDoneAlreadyCalled
	}
	if !cw.firstFrameSent && len(cw.buf) == 0 {
		return ErrEmptyMessage
	}
	if err := cw.flush(flagLast); err != nil {
		return err
	}
	cw.done = true
	return nil
}
