package protocol

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// LayerTypePLDM is the gopacket layer type of a PLDM message.
var LayerTypePLDM = gopacket.RegisterLayerType(1800, gopacket.LayerTypeMetadata{
	Name:    "PLDM",
	Decoder: gopacket.DecodeFunc(decodePLDM),
})

// PLDM is a gopacket layer for one PLDM message. The payload after the
// header is left in Payload for the type-specific codecs.
type PLDM struct {
	layers.BaseLayer
	Header

	// CompletionCode is the first payload byte of a response; zero for requests
	// and for empty payloads.
	CompletionCode CompletionCode
}

// LayerType returns LayerTypePLDM.
func (*PLDM) LayerType() gopacket.LayerType {
	return LayerTypePLDM
}

// CanDecode returns LayerTypePLDM.
func (p *PLDM) CanDecode() gopacket.LayerClass {
	return p.LayerType()
}

// NextLayerType returns LayerTypePayload; PLDM payloads are decoded with
// the message codecs rather than further layers.
func (p *PLDM) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypePayload
}

// DecodeFromBytes decodes the PLDM header of data.
func (p *PLDM) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < HeaderSize {
		df.SetTruncated()
		return fmt.Errorf("invalid PLDM message, length %d less than %d", len(data), HeaderSize)
	}
	h, err := UnpackHeader(data)
	if err != nil {
		return err
	}
	p.Header = h
	p.BaseLayer.Contents = data[:HeaderSize]
	p.BaseLayer.Payload = data[HeaderSize:]
	p.CompletionCode = Success
	if !h.Request && len(p.Payload) > 0 {
		p.CompletionCode = CompletionCode(p.Payload[0])
	}
	return nil
}

// SerializeTo prepends the PLDM header to b.
func (p *PLDM) SerializeTo(b gopacket.SerializeBuffer, _ gopacket.SerializeOptions) error {
	if err := p.Header.Validate(); err != nil {
		return err
	}
	bytes, err := b.PrependBytes(HeaderSize)
	if err != nil {
		return err
	}
	packed := p.Header.Pack()
	copy(bytes, packed[:])
	return nil
}

func decodePLDM(data []byte, pb gopacket.PacketBuilder) error {
	p := &PLDM{}
	if err := p.DecodeFromBytes(data, pb); err != nil {
		return err
	}
	pb.AddLayer(p)
	return pb.NextDecoder(p.NextLayerType())
}
