package fwupdate

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/moffa90/go-pldm/protocol"
)

// DescriptorType identifies the kind of a device descriptor (DSP0267 table 8).
type DescriptorType uint16

const (
	DescPCIVendorID                 DescriptorType = 0x0000
	DescIANAEnterpriseID            DescriptorType = 0x0001
	DescUUID                        DescriptorType = 0x0002
	DescPnPVendorID                 DescriptorType = 0x0003
	DescACPIVendorID                DescriptorType = 0x0004
	DescIEEEAssignedCompanyID       DescriptorType = 0x0005
	DescSCSIVendorID                DescriptorType = 0x0006
	DescPCIDeviceID                 DescriptorType = 0x0100
	DescPCISubsystemVendorID        DescriptorType = 0x0101
	DescPCISubsystemID              DescriptorType = 0x0102
	DescPCIRevisionID               DescriptorType = 0x0103
	DescPnPProductIdentifier        DescriptorType = 0x0104
	DescACPIProductIdentifier       DescriptorType = 0x0105
	DescASCIIModelNumberLongString  DescriptorType = 0x0106
	DescASCIIModelNumberShortString DescriptorType = 0x0107
	DescSCSIProductID               DescriptorType = 0x0108
	DescUBMControllerDeviceCode     DescriptorType = 0x0109
	DescVendorDefined               DescriptorType = 0xFFFF
)

// descriptorLengths holds the fixed data length of each descriptor type.
var descriptorLengths = map[DescriptorType]int{
	DescPCIVendorID:                 2,
	DescIANAEnterpriseID:            4,
	DescUUID:                        16,
	DescPnPVendorID:                 3,
	DescACPIVendorID:                5,
	DescIEEEAssignedCompanyID:       3,
	DescSCSIVendorID:                8,
	DescPCIDeviceID:                 2,
	DescPCISubsystemVendorID:        2,
	DescPCISubsystemID:              2,
	DescPCIRevisionID:               1,
	DescPnPProductIdentifier:        4,
	DescACPIProductIdentifier:       4,
	DescASCIIModelNumberLongString:  40,
	DescASCIIModelNumberShortString: 10,
	DescSCSIProductID:               16,
	DescUBMControllerDeviceCode:     4,
}

// DescriptorLength returns the fixed data length of t. Vendor-defined
// descriptors are variable and report ok == false.
func DescriptorLength(t DescriptorType) (n int, ok bool) {
	n, ok = descriptorLengths[t]
	return n, ok
}

// Descriptor is a typed blob identifying a device class.
type Descriptor struct {
	Type DescriptorType
	Data []byte
}

// NewDescriptor checks data against the length defined for t.
func NewDescriptor(t DescriptorType, data []byte) (Descriptor, error) {
	d := Descriptor{Type: t, Data: append([]byte(nil), data...)}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// NewUUIDDescriptor returns a UUID descriptor for u.
func NewUUIDDescriptor(u uuid.UUID) Descriptor {
	return Descriptor{Type: DescUUID, Data: append([]byte(nil), u[:]...)}
}

// Validate checks the data length of d.
func (d Descriptor) Validate() error {
	if len(d.Data) > MaxDescriptorDataLength {
		return fmt.Errorf("descriptor 0x%04X: %d data bytes, max %d",
			uint16(d.Type), len(d.Data), MaxDescriptorDataLength)
	}
	if want, ok := DescriptorLength(d.Type); ok && len(d.Data) != want {
		return fmt.Errorf("descriptor 0x%04X: %d data bytes, want %d",
			uint16(d.Type), len(d.Data), want)
	}
	if d.Type == DescVendorDefined && len(d.Data) == 0 {
		return fmt.Errorf("vendor-defined descriptor has no data")
	}
	return nil
}

// Equal reports byte equality of type and data.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.Type == o.Type && bytes.Equal(d.Data, o.Data)
}

// Size returns the encoded size of d.
func (d Descriptor) Size() int {
	return 4 + len(d.Data)
}

func (d Descriptor) String() string {
	if d.Type == DescUUID && len(d.Data) == 16 {
		if u, err := uuid.FromBytes(d.Data); err == nil {
			return "UUID:" + u.String()
		}
	}
	return fmt.Sprintf("0x%04X:% X", uint16(d.Type), d.Data)
}

func (d Descriptor) Encode(m *protocol.MessageBuf) error {
	if len(d.Data) > MaxDescriptorDataLength {
		return fmt.Errorf("descriptor data too long: %d", len(d.Data))
	}
	if err := m.PutUint16(uint16(d.Type)); err != nil {
		return err
	}
	if err := m.PutUint16(uint16(len(d.Data))); err != nil {
		return err
	}
	return m.PutBytes(d.Data)
}

func (d *Descriptor) Decode(m *protocol.MessageBuf) error {
	t, err := m.Uint16()
	if err != nil {
		return err
	}
	n, err := m.Uint16()
	if err != nil {
		return err
	}
	if n > MaxDescriptorDataLength {
		return fmt.Errorf("descriptor 0x%04X: length %d exceeds %d", t, n, MaxDescriptorDataLength)
	}
	data, err := m.ReadBytes(int(n))
	if err != nil {
		return err
	}
	d.Type = DescriptorType(t)
	d.Data = data
	return nil
}

// ContainsDescriptor reports whether set holds a descriptor equal to d.
func ContainsDescriptor(set []Descriptor, d Descriptor) bool {
	for _, s := range set {
		if s.Equal(d) {
			return true
		}
	}
	return false
}
