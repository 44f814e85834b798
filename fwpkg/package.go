package fwpkg

import (
	"time"

	"github.com/coreos/go-semver/semver"
	"github.com/google/uuid"

	"github.com/moffa90/go-pldm/fwupdate"
)

// Component option bits of a ComponentImage (DSP0267 table 25).
const (
	// OptionForceUpdate asks the FD to take the image even if it is not newer.
	OptionForceUpdate uint16 = 1 << 0

	// OptionUseComparisonStamp marks ComparisonStamp as meaningful.
	OptionUseComparisonStamp uint16 = 1 << 1
)

// NoComparisonStamp is sent to the FD for images that carry no stamp.
const NoComparisonStamp uint32 = 0xFFFFFFFF

// Package is a firmware update package: the devices it targets and the
// component images it carries.
type Package struct {
	Header          Header
	DeviceIDRecords []DeviceIDRecord
	Components      []ComponentImage
}

// Header identifies the package.
type Header struct {
	// UUID is the package header identifier
	UUID uuid.UUID

	// ReleaseDate is the package release date and time
	ReleaseDate time.Time

	// VersionString is the package version
	VersionString fwupdate.FirmwareString
}

// DeviceIDRecord describes one kind of FD the package applies to and which
// components it should receive.
type DeviceIDRecord struct {
	UpdateOptionFlags fwupdate.UpdateOptionFlags

	// ImageSetVersion is sent to the FD in RequestUpdate
	ImageSetVersion fwupdate.FirmwareString

	// ApplicableComponents are indexes into Package.Components
	ApplicableComponents []int

	InitialDescriptor     fwupdate.Descriptor
	AdditionalDescriptors []fwupdate.Descriptor

	// PackageData is optional FD-specific data
	PackageData []byte
}

// Matches reports whether an FD reporting descriptors is targeted by r. The
// first descriptor reported must equal the initial descriptor of r and every
// additional descriptor of r must be among the reported ones, in any order.
func (r *DeviceIDRecord) Matches(descriptors []fwupdate.Descriptor) bool {
	if len(descriptors) == 0 || !descriptors[0].Equal(r.InitialDescriptor) {
		return false
	}
	for _, d := range r.AdditionalDescriptors {
		if !fwupdate.ContainsDescriptor(descriptors, d) {
			return false
		}
	}
	return true
}

// Applies reports whether component index i is listed by r.
func (r *DeviceIDRecord) Applies(i int) bool {
	for _, c := range r.ApplicableComponents {
		if c == i {
			return true
		}
	}
	return false
}

// ComponentImage is one component image of the package.
type ComponentImage struct {
	Classification fwupdate.Classification
	Identifier     uint16

	// ComparisonStamp is nil when the image carries no stamp
	ComparisonStamp *uint32

	// Options holds the OptionForceUpdate and OptionUseComparisonStamp bits
	Options                   uint16
	RequestedActivationMethod fwupdate.ActivationMethods
	Version                   fwupdate.FirmwareString

	// OpaqueData is not sent to the FD
	OpaqueData []byte

	// Size is the image size in bytes and always equals len(Data)
	Size uint32
	Data []byte
}

// Stamp returns the comparison stamp sent to the FD.
func (c *ComponentImage) Stamp() uint32 {
	if c.ComparisonStamp == nil {
		return NoComparisonStamp
	}
	return *c.ComparisonStamp
}

// Component returns the image as the FD sees it, for the FD component at
// classification index index.
func (c *ComponentImage) Component(index uint8) fwupdate.FirmwareComponent {
	comp := fwupdate.FirmwareComponent{
		Classification:      c.Classification,
		Identifier:          c.Identifier,
		ClassificationIndex: index,
		ComparisonStamp:     c.Stamp(),
		Version:             c.Version,
		ImageSize:           c.Size,
	}
	if c.Options&OptionForceUpdate != 0 {
		comp.OptionFlags |= fwupdate.OptionRequestForceUpdate
	}
	return comp
}

// Describes reports whether the FD parameter entry e is for this image.
func (c *ComponentImage) Describes(e *fwupdate.ComponentParameterEntry) bool {
	return e.Classification == c.Classification && e.Identifier == c.Identifier
}

// NewerThan reports whether the image should replace the active image
// described by e. Stamps are compared when the image has one. Otherwise the
// version strings are compared as semantic versions, and an image whose
// version does not parse is always considered newer.
func (c *ComponentImage) NewerThan(e *fwupdate.ComponentParameterEntry) bool {
	if c.ComparisonStamp != nil {
		return *c.ComparisonStamp > e.ActiveComparisonStamp
	}

	mine, err := semver.NewVersion(c.Version.String())
	if err != nil {
		return true
	}
	active, err := semver.NewVersion(e.ActiveVersion.String())
	if err != nil {
		return true
	}
	return active.LessThan(*mine)
}

// FindRecord returns the index of the first device record matching
// descriptors, or -1.
func (p *Package) FindRecord(descriptors []fwupdate.Descriptor) int {
	for i := range p.DeviceIDRecords {
		if p.DeviceIDRecords[i].Matches(descriptors) {
			return i
		}
	}
	return -1
}
