package protocol

import "fmt"

// Encoder is implemented by payload structs. Encode appends the payload at
// the tail of m; it never writes the header.
type Encoder interface {
	Encode(m *MessageBuf) error
}

// Decoder is implemented by payload structs. Decode consumes the payload
// from the front of m, which is positioned just after the header.
type Decoder interface {
	Decode(m *MessageBuf) error
}

// Payload is a message body that can travel in both directions.
type Payload interface {
	Encoder
	Decoder
}

// Empty is the payload of requests that carry no data.
type Empty struct{}

func (Empty) Encode(*MessageBuf) error  { return nil }
func (*Empty) Decode(*MessageBuf) error { return nil }

// CodeResponse is a response carrying only a completion code.
type CodeResponse struct {
	CompletionCode CompletionCode
}

func (r CodeResponse) Encode(m *MessageBuf) error {
	return m.PutUint8(uint8(r.CompletionCode))
}

func (r *CodeResponse) Decode(m *MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	r.CompletionCode = CompletionCode(cc)
	return nil
}

// EncodeMessage builds a complete message: the payload is written first,
// then the header is pushed in front of it.
func EncodeMessage(h Header, p Encoder) ([]byte, error) {
	buf := make([]byte, MaxMessageSize)
	return EncodeMessageInto(buf, h, p)
}

// EncodeMessageInto is EncodeMessage over a caller-owned buffer. The result
// aliases buf.
func EncodeMessageInto(buf []byte, h Header, p Encoder) ([]byte, error) {
	m := NewMessageBuf(buf)
	if err := m.Reserve(HeaderSize); err != nil {
		return nil, err
	}
	if p != nil {
		if err := p.Encode(m); err != nil {
			return nil, fmt.Errorf("%w: encode %s: %w", ErrWrite, h, err)
		}
	}
	if err := h.Encode(m); err != nil {
		return nil, err
	}
	return m.Bytes(), nil
}

// DecodeMessage decodes the header of b and then its payload into p.
// p may be nil to decode only the header.
func DecodeMessage(b []byte, p Decoder) (Header, error) {
	m := LoadMessageBuf(b)
	var h Header
	if err := h.Decode(m); err != nil {
		return h, err
	}
	if p != nil {
		if err := p.Decode(m); err != nil {
			return h, fmt.Errorf("%w: decode %s: %w", ErrRead, h, err)
		}
	}
	return h, nil
}

// DecodePayload decodes the payload that follows the header in b.
// The header itself is not validated.
func DecodePayload(b []byte, p Decoder) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("%w: message shorter than header", ErrRead)
	}
	if err := p.Decode(LoadMessageBuf(b[HeaderSize:])); err != nil {
		return fmt.Errorf("%w: %w", ErrRead, err)
	}
	return nil
}

// EncodeFailure builds a response to req carrying only cc.
func EncodeFailure(req Header, cc CompletionCode) ([]byte, error) {
	return EncodeMessage(req.Response(), CodeResponse{CompletionCode: cc})
}

// ResponseCode returns the completion code of an encoded response.
func ResponseCode(b []byte) (CompletionCode, error) {
	if len(b) < HeaderSize+1 {
		return 0, fmt.Errorf("%w: response has no completion code", ErrRead)
	}
	return CompletionCode(b[HeaderSize]), nil
}
