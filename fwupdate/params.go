package fwupdate

import (
	"fmt"

	"github.com/moffa90/go-pldm/protocol"
)

// QueryDeviceIdentifiersResponse carries the FD's descriptor list. The first
// descriptor is the initial descriptor; the rest are additional descriptors.
type QueryDeviceIdentifiersResponse struct {
	CompletionCode protocol.CompletionCode
	Descriptors    []Descriptor
}

// Initial returns the first descriptor, if any.
func (r *QueryDeviceIdentifiersResponse) Initial() (Descriptor, bool) {
	if len(r.Descriptors) == 0 {
		return Descriptor{}, false
	}
	return r.Descriptors[0], true
}

func (r QueryDeviceIdentifiersResponse) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint8(uint8(r.CompletionCode)); err != nil {
		return err
	}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	if len(r.Descriptors) == 0 || len(r.Descriptors) > 255 {
		return fmt.Errorf("descriptor count %d out of range", len(r.Descriptors))
	}
	var total int
	for _, d := range r.Descriptors {
		total += d.Size()
	}
	if err := m.PutUint32(uint32(total)); err != nil {
		return err
	}
	if err := m.PutUint8(uint8(len(r.Descriptors))); err != nil {
		return err
	}
	for _, d := range r.Descriptors {
		if err := d.Encode(m); err != nil {
			return err
		}
	}
	return nil
}

func (r *QueryDeviceIdentifiersResponse) Decode(m *protocol.MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	r.CompletionCode = protocol.CompletionCode(cc)
	r.Descriptors = nil
	if r.CompletionCode != protocol.Success {
		return nil
	}
	total, err := m.Uint32()
	if err != nil {
		return err
	}
	count, err := m.Uint8()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("descriptor count is zero")
	}
	if int(total) > m.Len() {
		return fmt.Errorf("device identifiers length %d exceeds %d remaining bytes", total, m.Len())
	}
	start := m.Len()
	r.Descriptors = make([]Descriptor, count)
	for i := range r.Descriptors {
		if err := r.Descriptors[i].Decode(m); err != nil {
			return fmt.Errorf("descriptor %d: %w", i, err)
		}
	}
	if used := start - m.Len(); used != int(total) {
		return fmt.Errorf("device identifiers length %d, descriptors used %d", total, used)
	}
	return nil
}

// ComponentParameterEntry describes one component installed on the FD.
type ComponentParameterEntry struct {
	Classification           Classification
	Identifier               uint16
	ClassificationIndex      uint8
	ActiveComparisonStamp    uint32
	ActiveVersion            FirmwareString
	ActiveReleaseDate        [ReleaseDateLength]byte
	PendingComparisonStamp   uint32
	PendingVersion           FirmwareString
	PendingReleaseDate       [ReleaseDateLength]byte
	ActivationMethods        ActivationMethods
	CapabilitiesDuringUpdate DeviceCapability
}

// Matches reports whether e describes the component c.
func (e *ComponentParameterEntry) Matches(c *FirmwareComponent) bool {
	return e.Classification == c.Classification &&
		e.Identifier == c.Identifier &&
		e.ClassificationIndex == c.ClassificationIndex
}

func (e ComponentParameterEntry) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint16(uint16(e.Classification)); err != nil {
		return err
	}
	if err := m.PutUint16(e.Identifier); err != nil {
		return err
	}
	if err := m.PutUint8(e.ClassificationIndex); err != nil {
		return err
	}
	if err := m.PutUint32(e.ActiveComparisonStamp); err != nil {
		return err
	}
	if err := e.ActiveVersion.encodePrefix(m); err != nil {
		return err
	}
	if err := m.PutBytes(e.ActiveReleaseDate[:]); err != nil {
		return err
	}
	if err := m.PutUint32(e.PendingComparisonStamp); err != nil {
		return err
	}
	if err := e.PendingVersion.encodePrefix(m); err != nil {
		return err
	}
	if err := m.PutBytes(e.PendingReleaseDate[:]); err != nil {
		return err
	}
	if err := m.PutUint16(uint16(e.ActivationMethods)); err != nil {
		return err
	}
	if err := m.PutUint32(uint32(e.CapabilitiesDuringUpdate)); err != nil {
		return err
	}
	if err := e.ActiveVersion.encodeData(m); err != nil {
		return err
	}
	return e.PendingVersion.encodeData(m)
}

func (e *ComponentParameterEntry) Decode(m *protocol.MessageBuf) error {
	class, err := m.Uint16()
	if err != nil {
		return err
	}
	e.Classification = Classification(class)
	if e.Identifier, err = m.Uint16(); err != nil {
		return err
	}
	if e.ClassificationIndex, err = m.Uint8(); err != nil {
		return err
	}
	if e.ActiveComparisonStamp, err = m.Uint32(); err != nil {
		return err
	}
	activeLen, err := e.ActiveVersion.decodePrefix(m)
	if err != nil {
		return err
	}
	if err := m.ReadInto(e.ActiveReleaseDate[:]); err != nil {
		return err
	}
	if e.PendingComparisonStamp, err = m.Uint32(); err != nil {
		return err
	}
	pendingLen, err := e.PendingVersion.decodePrefix(m)
	if err != nil {
		return err
	}
	if err := m.ReadInto(e.PendingReleaseDate[:]); err != nil {
		return err
	}
	methods, err := m.Uint16()
	if err != nil {
		return err
	}
	e.ActivationMethods = ActivationMethods(methods)
	caps, err := m.Uint32()
	if err != nil {
		return err
	}
	e.CapabilitiesDuringUpdate = DeviceCapability(caps)
	if err := e.ActiveVersion.decodeData(m, activeLen); err != nil {
		return err
	}
	return e.PendingVersion.decodeData(m, pendingLen)
}

// FirmwareParameters is the body of a GetFirmwareParameters response.
type FirmwareParameters struct {
	Capabilities   DeviceCapability
	ActiveVersion  FirmwareString
	PendingVersion FirmwareString
	Components     []ComponentParameterEntry
}

// Find returns the entry describing c, or nil.
func (p *FirmwareParameters) Find(c *FirmwareComponent) *ComponentParameterEntry {
	for i := range p.Components {
		if p.Components[i].Matches(c) {
			return &p.Components[i]
		}
	}
	return nil
}

// FindByID returns the first entry with the given classification and identifier.
func (p *FirmwareParameters) FindByID(class Classification, id uint16) *ComponentParameterEntry {
	for i := range p.Components {
		if p.Components[i].Classification == class && p.Components[i].Identifier == id {
			return &p.Components[i]
		}
	}
	return nil
}

func (p FirmwareParameters) Encode(m *protocol.MessageBuf) error {
	if len(p.Components) > 0xFFFF {
		return fmt.Errorf("component count %d out of range", len(p.Components))
	}
	if err := m.PutUint32(uint32(p.Capabilities)); err != nil {
		return err
	}
	if err := m.PutUint16(uint16(len(p.Components))); err != nil {
		return err
	}
	if err := p.ActiveVersion.encodePrefix(m); err != nil {
		return err
	}
	if err := p.PendingVersion.encodePrefix(m); err != nil {
		return err
	}
	if err := p.ActiveVersion.encodeData(m); err != nil {
		return err
	}
	if err := p.PendingVersion.encodeData(m); err != nil {
		return err
	}
	for i := range p.Components {
		if err := p.Components[i].Encode(m); err != nil {
			return fmt.Errorf("component entry %d: %w", i, err)
		}
	}
	return nil
}

func (p *FirmwareParameters) Decode(m *protocol.MessageBuf) error {
	caps, err := m.Uint32()
	if err != nil {
		return err
	}
	p.Capabilities = DeviceCapability(caps)
	count, err := m.Uint16()
	if err != nil {
		return err
	}
	activeLen, err := p.ActiveVersion.decodePrefix(m)
	if err != nil {
		return err
	}
	pendingLen, err := p.PendingVersion.decodePrefix(m)
	if err != nil {
		return err
	}
	if err := p.ActiveVersion.decodeData(m, activeLen); err != nil {
		return err
	}
	if err := p.PendingVersion.decodeData(m, pendingLen); err != nil {
		return err
	}
	p.Components = nil
	if count > 0 {
		p.Components = make([]ComponentParameterEntry, count)
	}
	for i := range p.Components {
		if err := p.Components[i].Decode(m); err != nil {
			return fmt.Errorf("component entry %d: %w", i, err)
		}
	}
	return nil
}

// GetFirmwareParametersResponse wraps FirmwareParameters with a completion code.
type GetFirmwareParametersResponse struct {
	CompletionCode protocol.CompletionCode
	Params         FirmwareParameters
}

func (r GetFirmwareParametersResponse) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint8(uint8(r.CompletionCode)); err != nil {
		return err
	}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	return r.Params.Encode(m)
}

func (r *GetFirmwareParametersResponse) Decode(m *protocol.MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	r.CompletionCode = protocol.CompletionCode(cc)
	if r.CompletionCode != protocol.Success {
		r.Params = FirmwareParameters{}
		return nil
	}
	return r.Params.Decode(m)
}
