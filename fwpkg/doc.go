// Package fwpkg models a PLDM firmware update package as the update agent
// consumes it: the device records saying which FDs the package targets and
// the component images to send them.
//
// Packages are described by a YAML manifest that names image files next to
// it:
//
//	pkg, err := fwpkg.Load("manifest.yaml")
//
// Load validates the package. Validate reports every problem at once as a
// *multierror.Error of *ValidationError values, so a manifest can be fixed
// in one pass.
package fwpkg
