// Package wire implements turret's framed envelope codec: a 4-byte
// length-prefixed frame carrying a fixed-shape envelope, and the four
// message body layouts (register, invoke, result, error) that travel
// inside it.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxPayload is the largest payload a single frame may carry. Larger
// frames are a fatal protocol violation on the connection that sent them.
const MaxPayload = 262144

const (
	magic        = "TRT1"
	protoVersion = uint16(1)
)

// Type identifies the kind of message an Envelope carries.
type Type uint16

const (
	TypeRegister Type = 1
	TypeInvoke   Type = 2
	TypeResult   Type = 3
	TypeError    Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeRegister:
		return "register"
	case TypeInvoke:
		return "invoke"
	case TypeResult:
		return "result"
	case TypeError:
		return "error"
	default:
		return fmt.Sprintf("type(%d)", uint16(t))
	}
}

// Code is a protocol-level error code, carried in error bodies and used
// internally to classify why a request failed.
type Code uint16

const (
	CodeUnauthenticated Code = 1
	CodeReplay          Code = 2
	CodeDenied          Code = 3
	CodeUnknownAction   Code = 4
	CodeNoRepeater      Code = 5
	CodeBadRequest      Code = 6
	CodeInternal        Code = 7
)

func (c Code) String() string {
	switch c {
	case CodeUnauthenticated:
		return "UNAUTHENTICATED"
	case CodeReplay:
		return "REPLAY"
	case CodeDenied:
		return "DENIED"
	case CodeUnknownAction:
		return "UNKNOWN_ACTION"
	case CodeNoRepeater:
		return "NO_REPEATER"
	case CodeBadRequest:
		return "BAD_REQUEST"
	case CodeInternal:
		return "INTERNAL"
	default:
		return fmt.Sprintf("code(%d)", uint16(c))
	}
}

// ErrBadRequest wraps every decode-time failure. Callers that can recover a
// request_id reply BAD_REQUEST to the peer; callers that can't drop the
// connection without a reply (spec.md §4.8 step 1).
var ErrBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrBadRequest}, args...)...)
}

// Envelope is the decoded form of one frame. principal/nonce/body/sig are
// the exact decoded bytes — nothing here re-encodes them.
type Envelope struct {
	Type      Type
	Principal []byte
	TsMs      uint64
	Nonce     []byte
	Body      []byte
	Sig       []byte
}

// Encode serializes e into a ready-to-write frame (length prefix included).
func Encode(e Envelope) ([]byte, error) {
	var body []byte
	body = append(body, magic...)
	body = appendU16(body, protoVersion)
	body = appendU16(body, uint16(e.Type))
	var err error
	body, err = appendBstr(body, e.Principal)
	if err != nil {
		return nil, err
	}
	body = appendU64(body, e.TsMs)
	body, err = appendBstr(body, e.Nonce)
	if err != nil {
		return nil, err
	}
	body, err = appendBstr(body, e.Body)
	if err != nil {
		return nil, err
	}
	body, err = appendBstr(body, e.Sig)
	if err != nil {
		return nil, err
	}

	if len(body) > MaxPayload {
		return nil, fmt.Errorf("wire: encoded envelope is %d bytes, exceeds max payload %d", len(body), MaxPayload)
	}

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	return frame, nil
}

// Decode parses a single frame's payload (length prefix already stripped
// and validated by the caller — see ReadFrame) into an Envelope. It fails
// closed: any malformed input returns ErrBadRequest.
func Decode(payload []byte) (Envelope, error) {
	r := &reader{buf: payload}

	m, err := r.take(4)
	if err != nil {
		return Envelope{}, badRequest("short frame reading magic: %w", err)
	}
	if string(m) != magic {
		return Envelope{}, badRequest("bad magic %q", m)
	}

	version, err := r.u16()
	if err != nil {
		return Envelope{}, badRequest("short frame reading version: %w", err)
	}
	if version != protoVersion {
		return Envelope{}, badRequest("unsupported version %d", version)
	}

	typ, err := r.u16()
	if err != nil {
		return Envelope{}, badRequest("short frame reading type: %w", err)
	}
	switch Type(typ) {
	case TypeRegister, TypeInvoke, TypeResult, TypeError:
	default:
		return Envelope{}, badRequest("unknown type %d", typ)
	}

	principal, err := r.bstr()
	if err != nil {
		return Envelope{}, badRequest("principal: %w", err)
	}

	tsMs, err := r.u64()
	if err != nil {
		return Envelope{}, badRequest("short frame reading ts_ms: %w", err)
	}

	nonce, err := r.bstr()
	if err != nil {
		return Envelope{}, badRequest("nonce: %w", err)
	}

	bodyBytes, err := r.bstr()
	if err != nil {
		return Envelope{}, badRequest("body: %w", err)
	}

	sig, err := r.bstr()
	if err != nil {
		return Envelope{}, badRequest("sig: %w", err)
	}

	if !r.empty() {
		return Envelope{}, badRequest("%d trailing bytes after sig", r.remaining())
	}

	return Envelope{
		Type:      Type(typ),
		Principal: principal,
		TsMs:      tsMs,
		Nonce:     nonce,
		Body:      bodyBytes,
		Sig:       sig,
	}, nil
}

// --- low-level byte helpers ---

type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }
func (r *reader) empty() bool    { return r.remaining() == 0 }

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("need %d bytes, have %d", n, r.remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// bstr reads a u32-big-endian-prefixed byte string. Its length must not
// exceed MaxPayload, nor the bytes remaining in the frame.
func (r *reader) bstr() ([]byte, error) {
	if r.remaining() < 4 {
		return nil, fmt.Errorf("need 4 bytes for bstr length, have %d", r.remaining())
	}
	n := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	if n > MaxPayload {
		return nil, fmt.Errorf("bstr length %d exceeds max payload %d", n, MaxPayload)
	}
	return r.take(int(n))
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendBstr(b []byte, s []byte) ([]byte, error) {
	if len(s) > MaxPayload {
		return nil, fmt.Errorf("bstr of %d bytes exceeds max payload %d", len(s), MaxPayload)
	}
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(s)))
	b = append(b, tmp[:]...)
	b = append(b, s...)
	return b, nil
}
