package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestMessageBufCursors(t *testing.T) {
	m := NewMessageBuf(make([]byte, 16))

	if err := m.Reserve(HeaderSize); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if m.Len() != 0 || m.Headroom() != HeaderSize || m.Tailroom() != 13 {
		t.Fatalf("after Reserve: len=%d headroom=%d tailroom=%d", m.Len(), m.Headroom(), m.Tailroom())
	}

	if err := m.PutUint16(0x0201); err != nil {
		t.Fatalf("PutUint16() error = %v", err)
	}
	if err := m.PutUint32(0x06050403); err != nil {
		t.Fatalf("PutUint32() error = %v", err)
	}
	if !bytes.Equal(m.Bytes(), []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("Bytes() = % X", m.Bytes())
	}

	if err := m.PushData(HeaderSize); err != nil {
		t.Fatalf("PushData() error = %v", err)
	}
	if m.Len() != 9 {
		t.Errorf("Len() = %d, want 9", m.Len())
	}
	if err := m.PushData(1); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("PushData past headroom error = %v", err)
	}

	if err := m.PullData(HeaderSize); err != nil {
		t.Fatalf("PullData() error = %v", err)
	}
	if err := m.Trim(2); err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	if !bytes.Equal(m.Bytes(), []byte{1, 2, 3, 4}) {
		t.Errorf("after Trim Bytes() = % X", m.Bytes())
	}
	if err := m.Trim(5); !errors.Is(err, ErrBufferUnderflow) {
		t.Errorf("Trim past data error = %v", err)
	}

	m.Reset()
	if m.Len() != 0 || m.Headroom() != 0 || m.Tailroom() != 16 {
		t.Errorf("after Reset: len=%d headroom=%d tailroom=%d", m.Len(), m.Headroom(), m.Tailroom())
	}
}

func TestMessageBufBounds(t *testing.T) {
	tests := []struct {
		name    string
		op      func(m *MessageBuf) error
		wantErr error
	}{
		{
			name:    "reserve beyond capacity",
			op:      func(m *MessageBuf) error { return m.Reserve(5) },
			wantErr: ErrBufferTooSmall,
		},
		{
			name:    "put past end",
			op:      func(m *MessageBuf) error { return m.PutUint64(1) },
			wantErr: ErrBufferOverflow,
		},
		{
			name:    "pull from empty",
			op:      func(m *MessageBuf) error { return m.PullData(1) },
			wantErr: ErrBufferUnderflow,
		},
		{
			name: "read past tail",
			op: func(m *MessageBuf) error {
				_, err := m.Uint16()
				return err
			},
			wantErr: ErrBufferUnderflow,
		},
		{
			name:    "negative put",
			op:      func(m *MessageBuf) error { return m.PutData(-1) },
			wantErr: ErrBufferOverflow,
		},
		{
			name: "negative view",
			op: func(m *MessageBuf) error {
				_, err := m.Data(-1)
				return err
			},
			wantErr: ErrBufferUnderflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMessageBuf(make([]byte, 4))
			err := tt.op(m)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageBufReaders(t *testing.T) {
	m := LoadMessageBuf([]byte{
		0xAA,
		0x01, 0x02,
		0x01, 0x02, 0x03, 0x04,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		'h', 'i',
	})

	u8, _ := m.Uint8()
	u16, _ := m.Uint16()
	u32, _ := m.Uint32()
	u64, _ := m.Uint64()
	s, err := m.ReadBytes(2)
	if err != nil {
		t.Fatalf("ReadBytes() error = %v", err)
	}

	if u8 != 0xAA || u16 != 0x0201 || u32 != 0x04030201 || u64 != 0x0807060504030201 || string(s) != "hi" {
		t.Errorf("got %X %X %X %X %q", u8, u16, u32, u64, s)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after consuming everything", m.Len())
	}
}
