package fwpkg

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/moffa90/go-pldm/fwupdate"
)

// manifest is the YAML layout read by Load.
type manifest struct {
	Header struct {
		UUID        string `json:"uuid"`
		ReleaseDate string `json:"releaseDate"`
		Version     string `json:"version"`
		VersionType string `json:"versionType"`
	} `json:"header"`
	DeviceRecords []manifestRecord    `json:"deviceRecords"`
	Components    []manifestComponent `json:"components"`
}

type manifestRecord struct {
	UpdateOptionFlags     uint32               `json:"updateOptionFlags"`
	ImageSetVersion       string               `json:"imageSetVersion"`
	ImageSetVersionType   string               `json:"imageSetVersionType"`
	ApplicableComponents  []int                `json:"applicableComponents"`
	InitialDescriptor     manifestDescriptor   `json:"initialDescriptor"`
	AdditionalDescriptors []manifestDescriptor `json:"additionalDescriptors"`
	PackageData           string               `json:"packageData"`
}

type manifestDescriptor struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type manifestComponent struct {
	Classification   uint16  `json:"classification"`
	Identifier       uint16  `json:"identifier"`
	ComparisonStamp  *uint32 `json:"comparisonStamp"`
	ForceUpdate      bool    `json:"forceUpdate"`
	ActivationMethod uint16  `json:"activationMethod"`
	Version          string  `json:"version"`
	VersionType      string  `json:"versionType"`
	OpaqueData       string  `json:"opaqueData"`
	Image            string  `json:"image"`
}

var descriptorNames = map[string]fwupdate.DescriptorType{
	"pci-vendor":           fwupdate.DescPCIVendorID,
	"iana":                 fwupdate.DescIANAEnterpriseID,
	"uuid":                 fwupdate.DescUUID,
	"pnp-vendor":           fwupdate.DescPnPVendorID,
	"acpi-vendor":          fwupdate.DescACPIVendorID,
	"ieee-company":         fwupdate.DescIEEEAssignedCompanyID,
	"scsi-vendor":          fwupdate.DescSCSIVendorID,
	"pci-device":           fwupdate.DescPCIDeviceID,
	"pci-subsystem-vendor": fwupdate.DescPCISubsystemVendorID,
	"pci-subsystem":        fwupdate.DescPCISubsystemID,
	"pci-revision":         fwupdate.DescPCIRevisionID,
	"pnp-product":          fwupdate.DescPnPProductIdentifier,
	"acpi-product":         fwupdate.DescACPIProductIdentifier,
	"model-long":           fwupdate.DescASCIIModelNumberLongString,
	"model-short":          fwupdate.DescASCIIModelNumberShortString,
	"scsi-product":         fwupdate.DescSCSIProductID,
	"ubm-controller":       fwupdate.DescUBMControllerDeviceCode,
	"vendor":               fwupdate.DescVendorDefined,
}

// Load reads a YAML package manifest from path. Component images are read
// from the files the manifest names, relative to the manifest's directory.
// The returned package has been validated.
//
// Example:
//
//	pkg, err := fwpkg.Load("firmware/manifest.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d components\n", len(pkg.Components))
//
// A manifest looks like:
//
//	header:
//	  uuid: 7d8e4a1c-5b3f-4c2d-9e6a-1f2b3c4d5e6f
//	  releaseDate: "2024-05-01T00:00:00Z"
//	  version: "1.2.0"
//	deviceRecords:
//	  - imageSetVersion: "1.2.0"
//	    applicableComponents: [0]
//	    initialDescriptor: {type: uuid, value: 0102...}
//	components:
//	  - classification: 10
//	    identifier: 1
//	    comparisonStamp: 2
//	    version: "2.0.0"
//	    image: app.bin
func Load(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading manifest")
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes a YAML manifest. Relative image paths are resolved against
// dir.
func Parse(data []byte, dir string) (*Package, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "decoding manifest")
	}

	pkg, err := m.build(dir)
	if err != nil {
		return nil, err
	}
	if err := pkg.Validate(); err != nil {
		return nil, err
	}
	return pkg, nil
}

func (m *manifest) build(dir string) (*Package, error) {
	pkg := &Package{}

	if m.Header.UUID != "" {
		u, err := uuid.Parse(m.Header.UUID)
		if err != nil {
			return nil, fmt.Errorf("header.uuid: %w", err)
		}
		pkg.Header.UUID = u
	}
	if m.Header.ReleaseDate != "" {
		ts, err := time.Parse(time.RFC3339, m.Header.ReleaseDate)
		if err != nil {
			return nil, fmt.Errorf("header.releaseDate: %w", err)
		}
		pkg.Header.ReleaseDate = ts
	}
	v, err := firmwareString(m.Header.VersionType, m.Header.Version)
	if err != nil {
		return nil, fmt.Errorf("header.version: %w", err)
	}
	pkg.Header.VersionString = v

	for i, mr := range m.DeviceRecords {
		r, err := mr.build()
		if err != nil {
			return nil, fmt.Errorf("deviceRecords[%d]: %w", i, err)
		}
		pkg.DeviceIDRecords = append(pkg.DeviceIDRecords, r)
	}

	for i, mc := range m.Components {
		c, err := mc.build(dir)
		if err != nil {
			return nil, fmt.Errorf("components[%d]: %w", i, err)
		}
		pkg.Components = append(pkg.Components, c)
	}
	return pkg, nil
}

func (mr *manifestRecord) build() (DeviceIDRecord, error) {
	r := DeviceIDRecord{
		UpdateOptionFlags:    fwupdate.UpdateOptionFlags(mr.UpdateOptionFlags),
		ApplicableComponents: mr.ApplicableComponents,
	}

	v, err := firmwareString(mr.ImageSetVersionType, mr.ImageSetVersion)
	if err != nil {
		return r, fmt.Errorf("imageSetVersion: %w", err)
	}
	r.ImageSetVersion = v

	if r.InitialDescriptor, err = mr.InitialDescriptor.build(); err != nil {
		return r, fmt.Errorf("initialDescriptor: %w", err)
	}
	for j, md := range mr.AdditionalDescriptors {
		d, err := md.build()
		if err != nil {
			return r, fmt.Errorf("additionalDescriptors[%d]: %w", j, err)
		}
		r.AdditionalDescriptors = append(r.AdditionalDescriptors, d)
	}

	if r.PackageData, err = decodeHex(mr.PackageData); err != nil {
		return r, fmt.Errorf("packageData: %w", err)
	}
	return r, nil
}

// build converts a descriptor. UUID descriptors take a textual UUID, the
// other types hex bytes. Validation of the length is left to Validate.
func (md *manifestDescriptor) build() (fwupdate.Descriptor, error) {
	t, err := descriptorType(md.Type)
	if err != nil {
		return fwupdate.Descriptor{}, err
	}

	if t == fwupdate.DescUUID && strings.Contains(md.Value, "-") {
		u, err := uuid.Parse(md.Value)
		if err != nil {
			return fwupdate.Descriptor{}, err
		}
		return fwupdate.NewUUIDDescriptor(u), nil
	}

	data, err := decodeHex(md.Value)
	if err != nil {
		return fwupdate.Descriptor{}, err
	}
	return fwupdate.Descriptor{Type: t, Data: data}, nil
}

func descriptorType(s string) (fwupdate.DescriptorType, error) {
	if t, ok := descriptorNames[strings.ToLower(s)]; ok {
		return t, nil
	}
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown descriptor type %q", s)
	}
	return fwupdate.DescriptorType(n), nil
}

func (mc *manifestComponent) build(dir string) (ComponentImage, error) {
	c := ComponentImage{
		Classification:            fwupdate.Classification(mc.Classification),
		Identifier:                mc.Identifier,
		ComparisonStamp:           mc.ComparisonStamp,
		RequestedActivationMethod: fwupdate.ActivationMethods(mc.ActivationMethod),
	}
	if mc.ComparisonStamp != nil {
		c.Options |= OptionUseComparisonStamp
	}
	if mc.ForceUpdate {
		c.Options |= OptionForceUpdate
	}

	v, err := firmwareString(mc.VersionType, mc.Version)
	if err != nil {
		return c, fmt.Errorf("version: %w", err)
	}
	c.Version = v

	if c.OpaqueData, err = decodeHex(mc.OpaqueData); err != nil {
		return c, fmt.Errorf("opaqueData: %w", err)
	}

	if mc.Image == "" {
		return c, fmt.Errorf("no image file")
	}
	path := mc.Image
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	if c.Data, err = os.ReadFile(path); err != nil {
		return c, errors.Wrapf(err, "reading image %s", mc.Image)
	}
	c.Size = uint32(len(c.Data))
	return c, nil
}

// firmwareString builds a version string. The type defaults to ASCII and the
// length is checked by Validate.
func firmwareString(typ, s string) (fwupdate.FirmwareString, error) {
	t := fwupdate.StringASCII
	if typ != "" {
		var err error
		if t, err = fwupdate.ParseStringType(typ); err != nil {
			return fwupdate.FirmwareString{}, err
		}
	}
	return fwupdate.FirmwareString{Type: t, Data: []byte(s)}, nil
}

// decodeHex accepts hex with optional spaces, colons or a 0x prefix.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
