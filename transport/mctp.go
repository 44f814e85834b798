package transport

import (
	"context"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/moffa90/go-pldm/protocol"
)

// MCTP message types carried in the first byte of an MCTP message body.
const (
	MCTPMessageTypeControl uint8 = 0x00
	MCTPMessageTypePLDM    uint8 = 0x01

	mctpICBit    = 0x80
	mctpTypeMask = 0x7F
)

// LayerTypeMCTP is the gopacket layer type of an MCTP message-type header.
var LayerTypeMCTP = gopacket.RegisterLayerType(1801, gopacket.LayerTypeMetadata{
	Name:    "MCTP",
	Decoder: gopacket.DecodeFunc(decodeMCTP),
})

// MCTP is the one-byte message-type header in front of an MCTP message body.
// Packetization below it is handled by the MCTP stack, not here.
type MCTP struct {
	layers.BaseLayer
	IntegrityCheck bool
	MessageType    uint8
}

// LayerType returns LayerTypeMCTP.
func (*MCTP) LayerType() gopacket.LayerType {
	return LayerTypeMCTP
}

// CanDecode returns LayerTypeMCTP.
func (m *MCTP) CanDecode() gopacket.LayerClass {
	return m.LayerType()
}

// NextLayerType returns LayerTypePLDM for PLDM messages.
func (m *MCTP) NextLayerType() gopacket.LayerType {
	if m.MessageType == MCTPMessageTypePLDM && !m.IntegrityCheck {
		return protocol.LayerTypePLDM
	}
	return gopacket.LayerTypePayload
}

// DecodeFromBytes decodes the message type byte of data.
func (m *MCTP) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < 1 {
		df.SetTruncated()
		return fmt.Errorf("invalid MCTP message, no message type")
	}
	m.IntegrityCheck = data[0]&mctpICBit != 0
	m.MessageType = data[0] & mctpTypeMask
	m.BaseLayer.Contents = data[:1]
	m.BaseLayer.Payload = data[1:]
	return nil
}

// SerializeTo prepends the message type byte to b.
func (m *MCTP) SerializeTo(b gopacket.SerializeBuffer, _ gopacket.SerializeOptions) error {
	bytes, err := b.PrependBytes(1)
	if err != nil {
		return err
	}
	bytes[0] = m.MessageType & mctpTypeMask
	if m.IntegrityCheck {
		bytes[0] |= mctpICBit
	}
	return nil
}

func decodeMCTP(data []byte, pb gopacket.PacketBuilder) error {
	m := &MCTP{}
	if err := m.DecodeFromBytes(data, pb); err != nil {
		return err
	}
	pb.AddLayer(m)
	return pb.NextDecoder(m.NextLayerType())
}

// WrapMCTP prefixes a PLDM message with the MCTP PLDM message type.
func WrapMCTP(msg []byte) []byte {
	out := make([]byte, 0, len(msg)+1)
	out = append(out, MCTPMessageTypePLDM)
	return append(out, msg...)
}

// UnwrapMCTP strips the MCTP message type of a PLDM message.
func UnwrapMCTP(msg []byte) ([]byte, error) {
	if len(msg) < 1 {
		return nil, fmt.Errorf("empty MCTP message")
	}
	if msg[0]&mctpICBit != 0 {
		return nil, fmt.Errorf("MCTP integrity check not supported")
	}
	if t := msg[0] & mctpTypeMask; t != MCTPMessageTypePLDM {
		return nil, fmt.Errorf("MCTP message type 0x%02X is not PLDM", t)
	}
	return msg[1:], nil
}

// MCTPSocket adds the MCTP message type to every message sent on the
// wrapped socket and strips it from every message received. Messages of
// other types are skipped.
type MCTPSocket struct {
	Socket
}

// NewMCTPSocket wraps sock.
func NewMCTPSocket(sock Socket) *MCTPSocket {
	return &MCTPSocket{Socket: sock}
}

// Send wraps msg and sends it.
func (s *MCTPSocket) Send(ctx context.Context, msg []byte) error {
	return s.Socket.Send(ctx, WrapMCTP(msg))
}

// Receive returns the next PLDM message.
func (s *MCTPSocket) Receive(ctx context.Context) ([]byte, error) {
	for {
		msg, err := s.Socket.Receive(ctx)
		if err != nil {
			return nil, err
		}
		if pldm, err := UnwrapMCTP(msg); err == nil {
			return pldm, nil
		}
	}
}
