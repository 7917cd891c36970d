package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame body. Larger length prefixes mean the
// stream is out of sync and cannot be recovered.
const MaxFrameSize = 64 << 10

const headerSize = 4

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Frames are a 4-byte big-endian body length followed by the body.

func AppendFrame(dst []byte, m Message) ([]byte, error) {
	body, err := EncodeMessage(m)
	if err != nil {
		return dst, err
	}
	if len(body) > MaxFrameSize {
		return dst, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(body)))
	return append(dst, body...), nil
}

// WriteMessage writes m as one frame with a single Write call.
func WriteMessage(w io.Writer, m Message) error {
	frame, err := AppendFrame(make([]byte, 0, 64), m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// Reader buffers partial reads until a whole frame is available.
type Reader struct {
	br  *bufio.Reader
	hdr [headerSize]byte
	buf []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadMessage returns the next message.
//
// io.EOF means the peer closed cleanly between frames. An error wrapping
// ErrMalformed means one frame was consumed but could not be decoded; the
// stream is still in sync and the caller may keep reading. Any other error
// is fatal for the stream.
func (r *Reader) ReadMessage() (Message, error) {
	if _, err := io.ReadFull(r.br, r.hdr[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(r.hdr[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	if cap(r.buf) < int(n) {
		r.buf = make([]byte, n)
	}
	body := r.buf[:n]
	if _, err := io.ReadFull(r.br, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformed)
	}

	return DecodeMessage(body)
}
