package fwpkg

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/moffa90/go-pldm/fwupdate"
)

// ValidationError describes one problem found in a package.
type ValidationError struct {
	// Field is the path of the offending field, like "deviceRecords[0].applicableComponents[1]"
	Field string

	// Reason says what is wrong with it
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks the package for problems the agent cannot work around.
// All problems are reported together in a *multierror.Error whose entries
// are *ValidationError.
func (p *Package) Validate() error {
	var result *multierror.Error
	add := func(field, format string, args ...interface{}) {
		result = multierror.Append(result, &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if len(p.Header.VersionString.Data) > fwupdate.MaxStringLength {
		add("header.version", "%d bytes, max %d", len(p.Header.VersionString.Data), fwupdate.MaxStringLength)
	}
	if len(p.DeviceIDRecords) == 0 {
		add("deviceRecords", "no device records")
	}
	if len(p.Components) == 0 {
		add("components", "no component images")
	}

	for i := range p.DeviceIDRecords {
		r := &p.DeviceIDRecords[i]
		field := fmt.Sprintf("deviceRecords[%d]", i)

		if err := r.InitialDescriptor.Validate(); err != nil {
			add(field+".initialDescriptor", "%v", err)
		}
		for j, d := range r.AdditionalDescriptors {
			if err := d.Validate(); err != nil {
				add(fmt.Sprintf("%s.additionalDescriptors[%d]", field, j), "%v", err)
			}
		}
		if len(r.ImageSetVersion.Data) > fwupdate.MaxStringLength {
			add(field+".imageSetVersion", "%d bytes, max %d", len(r.ImageSetVersion.Data), fwupdate.MaxStringLength)
		}
		if len(r.PackageData) > 0xFFFF {
			add(field+".packageData", "%d bytes, max %d", len(r.PackageData), 0xFFFF)
		}
		if len(r.ApplicableComponents) == 0 {
			add(field+".applicableComponents", "empty")
		}

		seen := make(map[int]bool, len(r.ApplicableComponents))
		for j, c := range r.ApplicableComponents {
			cf := fmt.Sprintf("%s.applicableComponents[%d]", field, j)
			switch {
			case c < 0 || c >= len(p.Components):
				add(cf, "component %d out of range, package has %d", c, len(p.Components))
			case seen[c]:
				add(cf, "component %d listed twice", c)
			}
			seen[c] = true
		}
	}

	type compID struct {
		class fwupdate.Classification
		id    uint16
	}
	ids := make(map[compID]int, len(p.Components))
	for i := range p.Components {
		c := &p.Components[i]
		field := fmt.Sprintf("components[%d]", i)

		if len(c.Version.Data) > fwupdate.MaxStringLength {
			add(field+".version", "%d bytes, max %d", len(c.Version.Data), fwupdate.MaxStringLength)
		}
		if c.Size != uint32(len(c.Data)) {
			add(field+".size", "size %d does not match %d image bytes", c.Size, len(c.Data))
		}
		if c.Size == 0 {
			add(field+".image", "empty image")
		}
		if c.ComparisonStamp != nil && c.Options&OptionUseComparisonStamp == 0 {
			add(field+".options", "comparison stamp set without the use-comparison-stamp option")
		}
		if prev, ok := ids[compID{c.Classification, c.Identifier}]; ok {
			add(field, "same classification and identifier as components[%d]", prev)
		} else {
			ids[compID{c.Classification, c.Identifier}] = i
		}
	}

	return result.ErrorOrNil()
}
