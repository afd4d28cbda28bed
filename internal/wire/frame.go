package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned by ReadFrame when a peer announces a payload
// longer than MaxPayload. The caller must treat this as a fatal protocol
// violation and close the connection (spec.md §4.1).
var ErrFrameTooLarge = fmt.Errorf("wire: frame exceeds max payload %d bytes", MaxPayload)

// ReadFrame reads one length-prefixed frame from r and returns its payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxPayload {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes a pre-built frame (as returned by Encode) to w.
// Callers are responsible for serializing writes per connection — this
// function issues a single Write call so interleaving is not possible
// so long as no caller splits the frame itself.
func WriteFrame(w io.Writer, frame []byte) error {
	_, err := w.Write(frame)
	return err
}
