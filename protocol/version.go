package protocol

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Ver32 is a BCD-encoded PLDM version as defined by DSP0240.
//
// The major, minor and update bytes each hold two BCD digits; a high nibble
// of 0xF marks a single-digit value. An update byte of 0xFF means the field
// is absent. The alpha byte holds an optional ISO 8859-1 character, 0 when
// absent. On the wire the bytes are sent as [major, minor, update, alpha].
//
//	"1.3.0"  -> 0xF1F3F000
//	"1.1.0a" -> 0xF1F1F061
//	"3.1"    -> 0xF3F1FF00
type Ver32 uint32

// VersionAbsent is the update byte value meaning "no update field".
const VersionAbsent = 0xFF

// NewVer32 encodes a version from its fields. Major and minor must be in
// [0,99]; update must be in [0,99] or VersionAbsent.
func NewVer32(major, minor, update, alpha uint8) (Ver32, error) {
	if major > 99 || minor > 99 {
		return 0, fmt.Errorf("%w: major/minor %d.%d out of BCD range", ErrInvalidVersion, major, minor)
	}
	if update > 99 && update != VersionAbsent {
		return 0, fmt.Errorf("%w: update %d out of BCD range", ErrInvalidVersion, update)
	}
	u := uint8(VersionAbsent)
	if update != VersionAbsent {
		u = bcdByte(update)
	}
	return Ver32(uint32(bcdByte(major))<<24 | uint32(bcdByte(minor))<<16 | uint32(u)<<8 | uint32(alpha)), nil
}

// ParseVer32 converts a dotted version string into a Ver32.
//
// Accepted forms are "M.m", "M.m.u" and "M.m.u.a" with decimal fields, where
// the last of "M.m" or "M.m.u" may carry a single trailing letter as alpha.
func ParseVer32(s string) (Ver32, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	var alpha uint8
	if len(parts) == 4 {
		a, err := parseDecimal(parts[3], 255)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		alpha = a
		parts = parts[:3]
	} else {
		last := parts[len(parts)-1]
		if n := len(last); n > 1 && isLetter(last[n-1]) {
			alpha = last[n-1]
			parts[len(parts)-1] = last[:n-1]
		}
	}

	major, err := parseDecimal(parts[0], 99)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	minor, err := parseDecimal(parts[1], 99)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	update := uint8(VersionAbsent)
	if len(parts) == 3 {
		if update, err = parseDecimal(parts[2], 99); err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
	}
	return NewVer32(major, minor, update, alpha)
}

// MustParseVer32 is ParseVer32 for constant strings; it panics on error.
func MustParseVer32(s string) Ver32 {
	v, err := ParseVer32(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Fields decodes the BCD bytes of v.
func (v Ver32) Fields() (major, minor, update, alpha uint8, err error) {
	if major, err = bcdValue(uint8(v >> 24)); err != nil {
		return
	}
	if minor, err = bcdValue(uint8(v >> 16)); err != nil {
		return
	}
	update = uint8(v >> 8)
	if update != VersionAbsent {
		if update, err = bcdValue(update); err != nil {
			return
		}
	}
	alpha = uint8(v)
	return
}

// String returns the dotted form of v, or its hex value if v is not valid BCD.
func (v Ver32) String() string {
	major, minor, update, alpha, err := v.Fields()
	if err != nil {
		return fmt.Sprintf("0x%08X", uint32(v))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d.%d", major, minor)
	if update != VersionAbsent {
		fmt.Fprintf(&sb, ".%d", update)
	}
	switch {
	case alpha == 0:
	case isLetter(alpha):
		sb.WriteByte(alpha)
	default:
		fmt.Fprintf(&sb, ".%d", alpha)
	}
	return sb.String()
}

// Encode appends v as [major, minor, update, alpha].
func (v Ver32) Encode(m *MessageBuf) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return m.PutBytes(b[:])
}

// Decode consumes a Ver32 in wire order.
func (v *Ver32) Decode(m *MessageBuf) error {
	var b [4]byte
	if err := m.ReadInto(b[:]); err != nil {
		return err
	}
	*v = Ver32(binary.BigEndian.Uint32(b[:]))
	return nil
}

func bcdByte(n uint8) uint8 {
	if n < 10 {
		return 0xF0 | n
	}
	return (n/10)<<4 | n%10
}

func bcdValue(b uint8) (uint8, error) {
	hi, lo := b>>4, b&0x0F
	if lo > 9 {
		return 0, fmt.Errorf("%w: bad BCD byte 0x%02X", ErrInvalidVersion, b)
	}
	if hi == 0x0F {
		return lo, nil
	}
	if hi > 9 {
		return 0, fmt.Errorf("%w: bad BCD byte 0x%02X", ErrInvalidVersion, b)
	}
	return hi*10 + lo, nil
}

func parseDecimal(s string, max uint64) (uint8, error) {
	if s == "" || len(s) > 3 {
		return 0, ErrInvalidVersion
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrInvalidVersion
		}
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || n > max {
		return 0, ErrInvalidVersion
	}
	return uint8(n), nil
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
