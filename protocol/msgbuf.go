package protocol

import (
	"encoding/binary"
	"fmt"
)

// MessageBuf is a bounded view over a caller-owned byte slice.
//
// The valid bytes are buf[data:tail]. Payload encoders append at tail,
// header encoders push in front of data into space set aside with Reserve,
// and decoders consume from data. A response can therefore be built
// payload-first and prefixed with its header without copying.
//
//	[ headroom | data ... tail | tailroom ]
type MessageBuf struct {
	buf  []byte
	data int
	tail int
}

// NewMessageBuf returns an empty MessageBuf backed by b.
func NewMessageBuf(b []byte) *MessageBuf {
	return &MessageBuf{buf: b}
}

// LoadMessageBuf returns a MessageBuf whose valid data is all of b, ready for decoding.
func LoadMessageBuf(b []byte) *MessageBuf {
	return &MessageBuf{buf: b, tail: len(b)}
}

// Capacity returns the size of the backing slice.
func (m *MessageBuf) Capacity() int {
	return len(m.buf)
}

// Len returns the number of valid bytes.
func (m *MessageBuf) Len() int {
	return m.tail - m.data
}

// Headroom returns the number of bytes that can still be pushed in front of data.
func (m *MessageBuf) Headroom() int {
	return m.data
}

// Tailroom returns the number of bytes that can still be appended at tail.
func (m *MessageBuf) Tailroom() int {
	return len(m.buf) - m.tail
}

// Reserve advances both cursors by n, setting aside n bytes of headroom.
func (m *MessageBuf) Reserve(n int) error {
	if n < 0 || m.tail+n > len(m.buf) {
		return fmt.Errorf("reserve %d bytes: %w", n, ErrBufferTooSmall)
	}
	m.data += n
	m.tail += n
	return nil
}

// PutData extends the valid region by n bytes at the tail.
func (m *MessageBuf) PutData(n int) error {
	if n < 0 || m.tail+n > len(m.buf) {
		return fmt.Errorf("put %d bytes: %w", n, ErrBufferOverflow)
	}
	m.tail += n
	return nil
}

// Trim shrinks the valid region by n bytes at the tail.
func (m *MessageBuf) Trim(n int) error {
	if n < 0 || m.tail-n < m.data {
		return fmt.Errorf("trim %d bytes: %w", n, ErrBufferUnderflow)
	}
	m.tail -= n
	return nil
}

// PushData moves data back by n bytes, exposing headroom.
func (m *MessageBuf) PushData(n int) error {
	if n < 0 || n > m.data {
		return fmt.Errorf("push %d bytes: %w", n, ErrBufferTooSmall)
	}
	m.data -= n
	return nil
}

// PullData moves data forward by n bytes, consuming them.
func (m *MessageBuf) PullData(n int) error {
	if n < 0 || m.data+n > m.tail {
		return fmt.Errorf("pull %d bytes: %w", n, ErrBufferUnderflow)
	}
	m.data += n
	return nil
}

// Data returns the first n valid bytes without consuming them.
// The returned slice aliases the backing buffer.
func (m *MessageBuf) Data(n int) ([]byte, error) {
	if n < 0 || m.data+n > m.tail {
		return nil, fmt.Errorf("view %d bytes: %w", n, ErrBufferUnderflow)
	}
	return m.buf[m.data : m.data+n], nil
}

// Bytes returns the valid region. The slice aliases the backing buffer.
func (m *MessageBuf) Bytes() []byte {
	return m.buf[m.data:m.tail]
}

// Reset zeroes the backing slice and rewinds both cursors.
func (m *MessageBuf) Reset() {
	for i := range m.buf {
		m.buf[i] = 0
	}
	m.data = 0
	m.tail = 0
}

// extend appends n bytes at the tail and returns them for writing.
func (m *MessageBuf) extend(n int) ([]byte, error) {
	start := m.tail
	if err := m.PutData(n); err != nil {
		return nil, err
	}
	return m.buf[start:m.tail], nil
}

// next consumes n bytes from data and returns them.
func (m *MessageBuf) next(n int) ([]byte, error) {
	b, err := m.Data(n)
	if err != nil {
		return nil, err
	}
	m.data += n
	return b, nil
}

// PutUint8 appends v at the tail.
func (m *MessageBuf) PutUint8(v uint8) error {
	b, err := m.extend(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// PutUint16 appends v in little-endian order.
func (m *MessageBuf) PutUint16(v uint16) error {
	b, err := m.extend(2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

// PutUint32 appends v in little-endian order.
func (m *MessageBuf) PutUint32(v uint32) error {
	b, err := m.extend(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// PutUint64 appends v in little-endian order.
func (m *MessageBuf) PutUint64(v uint64) error {
	b, err := m.extend(8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

// PutBytes appends p.
func (m *MessageBuf) PutBytes(p []byte) error {
	b, err := m.extend(len(p))
	if err != nil {
		return err
	}
	copy(b, p)
	return nil
}

// Uint8 consumes one byte.
func (m *MessageBuf) Uint8() (uint8, error) {
	b, err := m.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 consumes a little-endian uint16.
func (m *MessageBuf) Uint16() (uint16, error) {
	b, err := m.next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32 consumes a little-endian uint32.
func (m *MessageBuf) Uint32() (uint32, error) {
	b, err := m.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint64 consumes a little-endian uint64.
func (m *MessageBuf) Uint64() (uint64, error) {
	b, err := m.next(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadBytes consumes n bytes and returns a copy of them.
func (m *MessageBuf) ReadBytes(n int) ([]byte, error) {
	b, err := m.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadInto consumes len(dst) bytes into dst.
func (m *MessageBuf) ReadInto(dst []byte) error {
	b, err := m.next(len(dst))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}
