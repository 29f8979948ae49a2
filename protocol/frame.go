// Package protocol implements the wire framing of the relay.
// A frame is a 4-byte big-endian length prefix followed by exactly that
// many bytes of a JSON-encoded domain.Message. The length prefix is the
// single source of message boundaries: the reader always knows how many
// bytes constitute the next record before parsing it.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"chat-relay/domain"
	"chat-relay/errors"
)

// DefaultMaxFrameSize bounds a declared frame length when the caller does
// not configure one. Oversized frames are rejected before allocation.
const DefaultMaxFrameSize = 1 << 20

// Codec encodes and decodes frames over a byte stream. It carries no
// per-connection state; the stream cursor is the only cursor.
type Codec struct {
	maxFrameSize uint32
}

func NewCodec(maxFrameSize int) Codec {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return Codec{maxFrameSize: uint32(maxFrameSize)}
}

// Encode writes one complete frame to w. The frame is assembled in a
// single buffer and written with one call so that a concurrent writer on
// the same stream can never interleave inside it.
func (c Codec) Encode(w io.Writer, m domain.Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrBadFrame, err)
	}
	if uint32(len(payload)) > c.maxFrameSize {
		return fmt.Errorf("%w: %d bytes", errors.ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	_, err = w.Write(buf)
	return err
}

// Decode reads exactly one frame from r, blocking until the full frame is
// available. It never returns a partial record: after a successful decode
// the stream cursor sits exactly at the start of the next frame.
//
// A clean connection close at a frame boundary surfaces as io.EOF; a close
// in the middle of a frame surfaces as io.ErrUnexpectedEOF.
func (c Codec) Decode(r io.Reader) (domain.Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return domain.Message{}, fmt.Errorf("%w: truncated length prefix", errors.ErrBadFrame)
		}
		return domain.Message{}, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return domain.Message{}, fmt.Errorf("%w: empty frame", errors.ErrBadFrame)
	}
	if length > c.maxFrameSize {
		return domain.Message{}, fmt.Errorf("%w: declared %d bytes, maximum %d", errors.ErrFrameTooLarge, length, c.maxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return domain.Message{}, fmt.Errorf("%w: truncated payload", errors.ErrBadFrame)
		}
		return domain.Message{}, err
	}

	var m domain.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrBadFrame, err)
	}
	return m, nil
}
