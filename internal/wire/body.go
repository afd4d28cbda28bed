package wire

import "fmt"

// RegisterBody is the body of a register envelope: the actions a repeater
// connection claims to implement.
type RegisterBody struct {
	RepeaterID []byte
	Actions    [][]byte
}

func EncodeRegister(b RegisterBody) ([]byte, error) {
	var out []byte
	var err error
	out, err = appendBstr(out, b.RepeaterID)
	if err != nil {
		return nil, err
	}
	if len(b.Actions) > MaxPayload/4 {
		return nil, fmt.Errorf("register: %d actions is unreasonable", len(b.Actions))
	}
	var cnt [4]byte
	putU32LE(cnt[:], uint32(len(b.Actions)))
	out = append(out, cnt[:]...)
	for _, a := range b.Actions {
		out, err = appendBstr(out, a)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func DecodeRegister(body []byte) (RegisterBody, error) {
	r := &reader{buf: body}
	repeaterID, err := r.bstr()
	if err != nil {
		return RegisterBody{}, badRequest("register.repeater_id: %w", err)
	}
	count, err := r.u32()
	if err != nil {
		return RegisterBody{}, badRequest("register.action_count: %w", err)
	}
	actions := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		a, err := r.bstr()
		if err != nil {
			return RegisterBody{}, badRequest("register.actions[%d]: %w", i, err)
		}
		actions = append(actions, a)
	}
	if !r.empty() {
		return RegisterBody{}, badRequest("register: %d trailing bytes", r.remaining())
	}
	return RegisterBody{RepeaterID: repeaterID, Actions: actions}, nil
}

// InvokeBody is the body of an invoke envelope.
type InvokeBody struct {
	RequestID []byte
	Action    []byte
	Params    []byte
}

func EncodeInvoke(b InvokeBody) ([]byte, error) {
	var out []byte
	var err error
	out, err = appendBstr(out, b.RequestID)
	if err != nil {
		return nil, err
	}
	out, err = appendBstr(out, b.Action)
	if err != nil {
		return nil, err
	}
	out, err = appendBstr(out, b.Params)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeInvoke(body []byte) (InvokeBody, error) {
	r := &reader{buf: body}
	requestID, err := r.bstr()
	if err != nil {
		return InvokeBody{}, badRequest("invoke.request_id: %w", err)
	}
	action, err := r.bstr()
	if err != nil {
		return InvokeBody{}, badRequest("invoke.action: %w", err)
	}
	params, err := r.bstr()
	if err != nil {
		return InvokeBody{}, badRequest("invoke.params: %w", err)
	}
	if !r.empty() {
		return InvokeBody{}, badRequest("invoke: %d trailing bytes", r.remaining())
	}
	return InvokeBody{RequestID: requestID, Action: action, Params: params}, nil
}

// ResultBody is the body of a result envelope.
type ResultBody struct {
	RequestID []byte
	Result    []byte
}

func EncodeResult(b ResultBody) ([]byte, error) {
	var out []byte
	var err error
	out, err = appendBstr(out, b.RequestID)
	if err != nil {
		return nil, err
	}
	out, err = appendBstr(out, b.Result)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeResult(body []byte) (ResultBody, error) {
	r := &reader{buf: body}
	requestID, err := r.bstr()
	if err != nil {
		return ResultBody{}, badRequest("result.request_id: %w", err)
	}
	result, err := r.bstr()
	if err != nil {
		return ResultBody{}, badRequest("result.result: %w", err)
	}
	if !r.empty() {
		return ResultBody{}, badRequest("result: %d trailing bytes", r.remaining())
	}
	return ResultBody{RequestID: requestID, Result: result}, nil
}

// ErrorBody is the body of an error envelope.
type ErrorBody struct {
	RequestID []byte
	Code      Code
	Message   string
}

func EncodeError(b ErrorBody) ([]byte, error) {
	var out []byte
	var err error
	out, err = appendBstr(out, b.RequestID)
	if err != nil {
		return nil, err
	}
	out = appendU16(out, uint16(b.Code))
	out, err = appendBstr(out, []byte(b.Message))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeError(body []byte) (ErrorBody, error) {
	r := &reader{buf: body}
	requestID, err := r.bstr()
	if err != nil {
		return ErrorBody{}, badRequest("error.request_id: %w", err)
	}
	code, err := r.u16()
	if err != nil {
		return ErrorBody{}, badRequest("error.code: %w", err)
	}
	msg, err := r.bstr()
	if err != nil {
		return ErrorBody{}, badRequest("error.message: %w", err)
	}
	if !r.empty() {
		return ErrorBody{}, badRequest("error: %d trailing bytes", r.remaining())
	}
	return ErrorBody{RequestID: requestID, Code: Code(code), Message: string(msg)}, nil
}

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
