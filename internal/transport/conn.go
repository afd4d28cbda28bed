package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/ehrlich-b/turret/internal/wire"
)

// Conn wraps a raw net.Conn with turret's framed envelope codec and
// serializes writes so concurrent senders (the dispatcher forwarding a
// result while a deadline sweep forwards an error, say) never interleave
// partial frames on the wire.
type Conn struct {
	raw net.Conn

	writeMu sync.Mutex
}

// NewConn wraps an already-accepted or dialed connection.
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw}
}

// ReadEnvelope blocks for the next full envelope on the connection.
func (c *Conn) ReadEnvelope() (wire.Envelope, error) {
	frame, err := wire.ReadFrame(c.raw)
	if err != nil {
		return wire.Envelope{}, err
	}
	return wire.Decode(frame)
}

// WriteEnvelope encodes and writes env atomically with respect to other
// WriteEnvelope calls on the same Conn.
func (c *Conn) WriteEnvelope(env wire.Envelope) error {
	frame, err := wire.Encode(env)
	if err != nil {
		return fmt.Errorf("transport: encoding envelope: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteFrame(c.raw, frame)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr exposes the underlying connection's remote address, for
// logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
