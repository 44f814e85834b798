package agent

import (
	"fmt"

	"github.com/moffa90/go-pldm/fwpkg"
	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/protocol"
)

// DiscoveryActions validates the FD during discovery. Any error ends the
// update.
type DiscoveryActions interface {
	// Start reports whether discovery runs at all. When it returns false the
	// update starts right away.
	Start() bool

	// CheckTID is given the TID assigned with SetTID and the one read back.
	CheckTID(assigned, reported uint8) error

	// CheckTypes is given the GetPLDMTypes bitmap.
	CheckTypes(types protocol.TypeBitmap) error

	// CheckVersion is given the GetPLDMVersion answer for pldmType.
	CheckVersion(pldmType uint8, version protocol.Ver32) error

	// CheckCommands is given the GetPLDMCommands bitmap for pldmType.
	CheckCommands(pldmType uint8, commands protocol.CommandBitmap) error
}

// DefaultDiscoveryActions requires the FD to support the base and firmware
// update types at the versions this library speaks, with every command the
// agent sends.
type DefaultDiscoveryActions struct{}

func (DefaultDiscoveryActions) Start() bool { return true }

func (DefaultDiscoveryActions) CheckTID(assigned, reported uint8) error {
	if assigned != reported {
		return fmt.Errorf("TID is 0x%02X after assigning 0x%02X", reported, assigned)
	}
	return nil
}

func (DefaultDiscoveryActions) CheckTypes(types protocol.TypeBitmap) error {
	for _, t := range []uint8{protocol.TypeBase, protocol.TypeFirmwareUpdate} {
		if !types.Has(t) {
			return fmt.Errorf("PLDM type %d not supported", t)
		}
	}
	return nil
}

func (DefaultDiscoveryActions) CheckVersion(pldmType uint8, version protocol.Ver32) error {
	want := protocol.MustParseVer32(supportedVersion(pldmType))
	if version != want {
		return fmt.Errorf("type %d version %s, want %s", pldmType, version, want)
	}
	return nil
}

func (DefaultDiscoveryActions) CheckCommands(pldmType uint8, commands protocol.CommandBitmap) error {
	var required []uint8
	switch pldmType {
	case protocol.TypeBase:
		required = []uint8{protocol.CmdGetTID, protocol.CmdGetTypes, protocol.CmdGetVersion, protocol.CmdGetCommands}
	case protocol.TypeFirmwareUpdate:
		required = fwupdate.DeviceCommands
	}
	for _, cmd := range required {
		if !commands.Has(cmd) {
			return fmt.Errorf("type %d command 0x%02X not supported", pldmType, cmd)
		}
	}
	return nil
}

// SkipDiscovery starts the update without discovery.
type SkipDiscovery struct {
	DefaultDiscoveryActions
}

func (SkipDiscovery) Start() bool { return false }

func supportedVersion(pldmType uint8) string {
	if pldmType == protocol.TypeFirmwareUpdate {
		return protocol.FirmwareUpdateVersion
	}
	return protocol.BaseVersion
}

// Selection is a package component chosen for the update, as the FD will
// see it.
type Selection struct {
	// Image indexes Package.Components
	Image int

	Component fwupdate.FirmwareComponent
}

// UpdateActions makes the package-specific decisions of an update.
type UpdateActions interface {
	// MatchDevice returns the index of the device record targeting an FD
	// that reports descriptors.
	MatchDevice(pkg *fwpkg.Package, descriptors []fwupdate.Descriptor) (int, error)

	// SelectComponents returns the components to send, in order.
	SelectComponents(pkg *fwpkg.Package, record int, params *fwupdate.FirmwareParameters) ([]Selection, error)

	// FirmwareData returns length bytes of img at offset. A completion code
	// other than Success is sent to the FD instead of data.
	FirmwareData(img *fwpkg.ComponentImage, offset, length uint32) ([]byte, protocol.CompletionCode)
}

// DefaultUpdateActions matches devices by descriptor, selects every
// applicable component newer than the FD's active one and serves images
// from memory.
type DefaultUpdateActions struct{}

func (DefaultUpdateActions) MatchDevice(pkg *fwpkg.Package, descriptors []fwupdate.Descriptor) (int, error) {
	i := pkg.FindRecord(descriptors)
	if i < 0 {
		return -1, ErrNoMatchingDevice
	}
	return i, nil
}

// SelectComponents walks the FD's component entries in order. An entry gets
// the package image with the same classification and identifier when the
// record lists it and the image is newer or forced.
func (DefaultUpdateActions) SelectComponents(pkg *fwpkg.Package, record int, params *fwupdate.FirmwareParameters) ([]Selection, error) {
	if record < 0 || record >= len(pkg.DeviceIDRecords) {
		return nil, fmt.Errorf("device record %d out of range", record)
	}
	rec := &pkg.DeviceIDRecords[record]

	var sel []Selection
	for i := range params.Components {
		entry := &params.Components[i]
		for j := range pkg.Components {
			img := &pkg.Components[j]
			if !img.Describes(entry) || !rec.Applies(j) {
				continue
			}
			if img.Options&fwpkg.OptionForceUpdate != 0 || img.NewerThan(entry) {
				sel = append(sel, Selection{Image: j, Component: img.Component(entry.ClassificationIndex)})
			}
			break
		}
	}
	return sel, nil
}

// FirmwareData serves the image with zero padding past its end. Requests
// starting past the image, or reaching more than MaxPaddingSize beyond it,
// get DataOutOfRange.
func (DefaultUpdateActions) FirmwareData(img *fwpkg.ComponentImage, offset, length uint32) ([]byte, protocol.CompletionCode) {
	size := uint64(len(img.Data))
	end := uint64(offset) + uint64(length)
	if uint64(offset) >= size || end > size+fwupdate.MaxPaddingSize {
		return nil, fwupdate.DataOutOfRange
	}

	data := make([]byte, length)
	if end > size {
		end = size
	}
	copy(data, img.Data[offset:end])
	return data, protocol.Success
}
