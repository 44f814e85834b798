package fwupdate

import (
	"bytes"
	"fmt"

	"github.com/moffa90/go-pldm/protocol"
)

// StringType is the encoding of a version string.
type StringType uint8

const (
	StringUnspecified StringType = 0
	StringASCII       StringType = 1
	StringUTF8        StringType = 2
	StringUTF16       StringType = 3
	StringUTF16LE     StringType = 4
	StringUTF16BE     StringType = 5
)

func (t StringType) String() string {
	switch t {
	case StringASCII:
		return "ASCII"
	case StringUTF8:
		return "UTF-8"
	case StringUTF16:
		return "UTF-16"
	case StringUTF16LE:
		return "UTF-16LE"
	case StringUTF16BE:
		return "UTF-16BE"
	default:
		return "UNKNOWN"
	}
}

// ParseStringType converts a manifest name like "ASCII" or "utf-8" into a StringType.
func ParseStringType(s string) (StringType, error) {
	switch s {
	case "ASCII", "ascii":
		return StringASCII, nil
	case "UTF-8", "utf-8", "UTF8", "utf8":
		return StringUTF8, nil
	case "UTF-16", "utf-16":
		return StringUTF16, nil
	case "UTF-16LE", "utf-16le":
		return StringUTF16LE, nil
	case "UTF-16BE", "utf-16be":
		return StringUTF16BE, nil
	default:
		return StringUnspecified, fmt.Errorf("unknown version string type %q", s)
	}
}

// FirmwareString is a typed, length-prefixed version string. On the wire the
// type and length bytes usually sit in a fixed prefix and the data at the
// tail of the message; the length of Data is the source of truth for both.
type FirmwareString struct {
	Type StringType
	Data []byte
}

// NewFirmwareString returns a FirmwareString of type t holding s.
func NewFirmwareString(t StringType, s string) (FirmwareString, error) {
	if len(s) > MaxStringLength {
		return FirmwareString{}, fmt.Errorf("version string is %d bytes, max %d", len(s), MaxStringLength)
	}
	return FirmwareString{Type: t, Data: []byte(s)}, nil
}

// ASCIIString returns an ASCII FirmwareString, truncating s to MaxStringLength.
func ASCIIString(s string) FirmwareString {
	if len(s) > MaxStringLength {
		s = s[:MaxStringLength]
	}
	return FirmwareString{Type: StringASCII, Data: []byte(s)}
}

// Len returns the length byte of s.
func (s FirmwareString) Len() uint8 {
	return uint8(len(s.Data))
}

// Equal reports whether s and o have the same type and bytes.
func (s FirmwareString) Equal(o FirmwareString) bool {
	return s.Type == o.Type && bytes.Equal(s.Data, o.Data)
}

func (s FirmwareString) String() string {
	return string(s.Data)
}

func (s FirmwareString) validate() error {
	if len(s.Data) > MaxStringLength {
		return fmt.Errorf("version string is %d bytes, max %d", len(s.Data), MaxStringLength)
	}
	return nil
}

// encodePrefix appends the type and length bytes.
func (s FirmwareString) encodePrefix(m *protocol.MessageBuf) error {
	if err := s.validate(); err != nil {
		return err
	}
	if err := m.PutUint8(uint8(s.Type)); err != nil {
		return err
	}
	return m.PutUint8(s.Len())
}

// encodeData appends the string bytes.
func (s FirmwareString) encodeData(m *protocol.MessageBuf) error {
	return m.PutBytes(s.Data)
}

// decodePrefix reads the type and length bytes and returns the length.
func (s *FirmwareString) decodePrefix(m *protocol.MessageBuf) (int, error) {
	t, err := m.Uint8()
	if err != nil {
		return 0, err
	}
	n, err := m.Uint8()
	if err != nil {
		return 0, err
	}
	s.Type = StringType(t)
	return int(n), nil
}

// decodeData reads n string bytes.
func (s *FirmwareString) decodeData(m *protocol.MessageBuf, n int) error {
	data, err := m.ReadBytes(n)
	if err != nil {
		return err
	}
	if n == 0 {
		data = nil
	}
	s.Data = data
	return nil
}
