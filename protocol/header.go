package protocol

import "fmt"

// Header bit layout per DSP0240.
const (
	headerRqBit       = 0x80
	headerDatagramBit = 0x40
	headerInstance    = 0x1F
	headerVerShift    = 6
	headerTypeMask    = 0x3F
)

// Header is the 3-byte PLDM message header.
//
//	byte 0: Rq(7) D(6) rsvd(5) InstanceID(4..0)
//	byte 1: HdrVer(7..6) PLDMType(5..0)
//	byte 2: Command
type Header struct {
	Request    bool
	Datagram   bool
	InstanceID uint8
	Version    uint8
	Type       uint8
	Command    uint8
}

// NewRequestHeader returns a request header for the given instance, type and command.
func NewRequestHeader(instanceID, pldmType, command uint8) Header {
	return Header{
		Request:    true,
		InstanceID: instanceID,
		Version:    HeaderVersion,
		Type:       pldmType,
		Command:    command,
	}
}

// Response returns the header of the response to h: same instance ID, type
// and command with Rq and D cleared.
func (h Header) Response() Header {
	return Header{
		InstanceID: h.InstanceID,
		Version:    h.Version,
		Type:       h.Type,
		Command:    h.Command,
	}
}

// Matches reports whether resp answers the request h.
func (h Header) Matches(resp Header) bool {
	return !resp.Request &&
		resp.InstanceID == h.InstanceID &&
		resp.Type == h.Type &&
		resp.Command == h.Command
}

// Validate checks the field ranges of h.
func (h Header) Validate() error {
	if h.InstanceID >= InstanceIDCount {
		return fmt.Errorf("%w: instance ID %d out of range", ErrInvalidHeader, h.InstanceID)
	}
	if h.Version != HeaderVersion {
		return fmt.Errorf("%w: unsupported header version %d", ErrInvalidHeader, h.Version)
	}
	if h.Type > headerTypeMask {
		return fmt.Errorf("%w: PLDM type 0x%02X out of range", ErrInvalidHeader, h.Type)
	}
	return nil
}

// Pack returns the wire form of h.
func (h Header) Pack() [HeaderSize]byte {
	var b [HeaderSize]byte
	b[0] = h.InstanceID & headerInstance
	if h.Request {
		b[0] |= headerRqBit
	}
	if h.Datagram {
		b[0] |= headerDatagramBit
	}
	b[1] = (h.Version&0x03)<<headerVerShift | (h.Type & headerTypeMask)
	b[2] = h.Command
	return b
}

// UnpackHeader decodes the first HeaderSize bytes of b.
func UnpackHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidHeader, HeaderSize, len(b))
	}
	h := Header{
		Request:    b[0]&headerRqBit != 0,
		Datagram:   b[0]&headerDatagramBit != 0,
		InstanceID: b[0] & headerInstance,
		Version:    b[1] >> headerVerShift,
		Type:       b[1] & headerTypeMask,
		Command:    b[2],
	}
	if h.Version != HeaderVersion {
		return h, fmt.Errorf("%w: unsupported header version %d", ErrInvalidHeader, h.Version)
	}
	return h, nil
}

// Encode pushes the header in front of the current data, using headroom
// set aside with Reserve.
func (h Header) Encode(m *MessageBuf) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if err := m.PushData(HeaderSize); err != nil {
		return err
	}
	b, err := m.Data(HeaderSize)
	if err != nil {
		return err
	}
	packed := h.Pack()
	copy(b, packed[:])
	return nil
}

// Decode consumes the header from the front of m.
func (h *Header) Decode(m *MessageBuf) error {
	b, err := m.Data(HeaderSize)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	hdr, err := UnpackHeader(b)
	if err != nil {
		return err
	}
	*h = hdr
	return m.PullData(HeaderSize)
}

func (h Header) String() string {
	kind := "response"
	if h.Request {
		kind = "request"
	}
	return fmt.Sprintf("%s type=0x%02X cmd=0x%02X iid=%d", kind, h.Type, h.Command, h.InstanceID)
}
