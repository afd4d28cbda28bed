package wire

import (
	"bytes"
	"testing"
)

func sampleEnvelope() Envelope {
	return Envelope{
		Type:      TypeInvoke,
		Principal: []byte("corvus"),
		TsMs:      1700000000123,
		Nonce:     []byte("nonce-1"),
		Body:      []byte("some-body-bytes"),
		Sig:       bytes.Repeat([]byte{0x42}, 64),
	}
}

func TestRoundTrip(t *testing.T) {
	e := sampleEnvelope()
	frame, err := Encode(e)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	payload, err := ReadFrame(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}

	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.Type != e.Type || string(decoded.Principal) != string(e.Principal) ||
		decoded.TsMs != e.TsMs || string(decoded.Nonce) != string(e.Nonce) ||
		string(decoded.Body) != string(e.Body) || !bytes.Equal(decoded.Sig, e.Sig) {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, e)
	}

	reframe, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(frame, reframe) {
		t.Fatalf("re-encoding decoded envelope produced different bytes")
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	e := sampleEnvelope()
	frame, _ := Encode(e)
	frame[4] = 'X' // corrupt magic (after the 4-byte length prefix)
	if _, err := Decode(frame[4:]); err == nil {
		t.Fatal("expected bad magic to fail decode")
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	e := sampleEnvelope()
	frame, _ := Encode(e)
	// type field follows magic(4) + version(2): little-endian u16 at offset 4+4+2
	frame[4+4+2] = 0xEE
	if _, err := Decode(frame[4:]); err == nil {
		t.Fatal("expected unknown type to fail decode")
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	e := sampleEnvelope()
	frame, _ := Encode(e)
	payload := frame[4:]
	payload = append(payload, 0x01)
	if _, err := Decode(payload); err == nil {
		t.Fatal("expected trailing bytes to fail decode")
	}
}

func TestDecodeRejectsBstrOverrun(t *testing.T) {
	// A bstr claiming a length longer than the remaining frame must fail.
	var body []byte
	body = append(body, magic...)
	body = appendU16(body, protoVersion)
	body = appendU16(body, uint16(TypeInvoke))
	body, _ = appendBstr(body, []byte("p"))
	body = appendU64(body, 1)
	// nonce bstr: claim length 1000 but supply nothing
	var lenBuf [4]byte
	lenBuf[0], lenBuf[1], lenBuf[2], lenBuf[3] = 0, 0, 0x03, 0xE8 // 1000 big-endian
	body = append(body, lenBuf[:]...)

	if _, err := Decode(body); err == nil {
		t.Fatal("expected bstr overrun to fail decode")
	}
}

func TestEncodeRejectsOversizedBody(t *testing.T) {
	e := sampleEnvelope()
	e.Body = bytes.Repeat([]byte{0x01}, MaxPayload+1)
	if _, err := Encode(e); err == nil {
		t.Fatal("expected oversized body to fail encode")
	}
}

func TestBodyRoundTrip(t *testing.T) {
	reg := RegisterBody{RepeaterID: []byte("rep-1"), Actions: [][]byte{[]byte("echo"), []byte("ping")}}
	encReg, err := EncodeRegister(reg)
	if err != nil {
		t.Fatal(err)
	}
	decReg, err := DecodeRegister(encReg)
	if err != nil {
		t.Fatal(err)
	}
	if len(decReg.Actions) != 2 || string(decReg.Actions[0]) != "echo" {
		t.Fatalf("register round trip mismatch: %+v", decReg)
	}

	inv := InvokeBody{RequestID: []byte("r1"), Action: []byte("echo"), Params: []byte("hi")}
	encInv, _ := EncodeInvoke(inv)
	decInv, err := DecodeInvoke(encInv)
	if err != nil {
		t.Fatal(err)
	}
	if string(decInv.Params) != "hi" {
		t.Fatalf("invoke round trip mismatch: %+v", decInv)
	}

	res := ResultBody{RequestID: []byte("r1"), Result: []byte("hi")}
	encRes, _ := EncodeResult(res)
	decRes, err := DecodeResult(encRes)
	if err != nil {
		t.Fatal(err)
	}
	if string(decRes.Result) != "hi" {
		t.Fatalf("result round trip mismatch: %+v", decRes)
	}

	errb := ErrorBody{RequestID: []byte("r2"), Code: CodeDenied, Message: "nope"}
	encErr, _ := EncodeError(errb)
	decErr, err := DecodeError(encErr)
	if err != nil {
		t.Fatal(err)
	}
	if decErr.Code != CodeDenied || decErr.Message != "nope" {
		t.Fatalf("error round trip mismatch: %+v", decErr)
	}
}
