package protocol

import (
	"bytes"
	"testing"

	"github.com/google/gopacket"
)

func TestPLDMLayerDecode(t *testing.T) {
	msg := []byte{0x05, 0x05, 0x15, 0x82, 0xAA}

	packet := gopacket.NewPacket(msg, LayerTypePLDM, gopacket.Default)
	if el := packet.ErrorLayer(); el != nil {
		t.Fatalf("decode error: %v", el.Error())
	}

	l, ok := packet.Layer(LayerTypePLDM).(*PLDM)
	if !ok {
		t.Fatal("packet has no PLDM layer")
	}
	if l.Request || l.InstanceID != 5 || l.Type != TypeFirmwareUpdate || l.Command != 0x15 {
		t.Errorf("header = %+v", l.Header)
	}
	if l.CompletionCode != 0x82 {
		t.Errorf("CompletionCode = 0x%02X, want 0x82", uint8(l.CompletionCode))
	}
	if !bytes.Equal(l.LayerPayload(), []byte{0x82, 0xAA}) {
		t.Errorf("payload = % X", l.LayerPayload())
	}
}

func TestPLDMLayerTruncated(t *testing.T) {
	packet := gopacket.NewPacket([]byte{0x80, 0x00}, LayerTypePLDM, gopacket.Default)
	if packet.ErrorLayer() == nil {
		t.Fatal("expected decode error for 2-byte message")
	}
	if !packet.Metadata().Truncated {
		t.Error("packet not marked truncated")
	}
}

func TestPLDMLayerSerialize(t *testing.T) {
	l := &PLDM{Header: NewRequestHeader(3, TypeFirmwareUpdate, 0x01)}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, l, gopacket.Payload([]byte{0x01})); err != nil {
		t.Fatalf("SerializeLayers() error = %v", err)
	}
	if want := []byte{0x83, 0x05, 0x01, 0x01}; !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("serialized = % X, want % X", buf.Bytes(), want)
	}
}
