package fwpkg

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/moffa90/go-pldm/fwupdate"
)

const testManifest = `
header:
  uuid: 7d8e4a1c-5b3f-4c2d-9e6a-1f2b3c4d5e6f
  releaseDate: "2024-05-01T12:00:00Z"
  version: "1.2.0"
deviceRecords:
  - updateOptionFlags: 1
    imageSetVersion: "1.2.0"
    applicableComponents: [0, 1]
    initialDescriptor:
      type: uuid
      value: 0102030405060708090a0b0c0d0e0f10
    additionalDescriptors:
      - {type: pci-vendor, value: "86 80"}
      - {type: "0xFFFF", value: "de:ad"}
    packageData: "0xCAFE"
components:
  - classification: 10
    identifier: 1
    comparisonStamp: 2
    version: "2.0.0"
    image: app.bin
  - classification: 10
    identifier: 2
    forceUpdate: true
    activationMethod: 2
    version: "1.1.0"
    versionType: utf-8
    image: boot.bin
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"manifest.yaml": testManifest,
		"app.bin":       "application",
		"boot.bin":      "boot",
	})

	pkg, err := Load(filepath.Join(dir, "manifest.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	stamp := uint32(2)
	want := &Package{
		Header: Header{
			UUID:          uuid.MustParse("7d8e4a1c-5b3f-4c2d-9e6a-1f2b3c4d5e6f"),
			ReleaseDate:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			VersionString: fwupdate.ASCIIString("1.2.0"),
		},
		DeviceIDRecords: []DeviceIDRecord{{
			UpdateOptionFlags:    fwupdate.OptionRequestForceUpdate,
			ImageSetVersion:      fwupdate.ASCIIString("1.2.0"),
			ApplicableComponents: []int{0, 1},
			InitialDescriptor: fwupdate.Descriptor{Type: fwupdate.DescUUID,
				Data: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}},
			AdditionalDescriptors: []fwupdate.Descriptor{
				{Type: fwupdate.DescPCIVendorID, Data: []byte{0x86, 0x80}},
				{Type: fwupdate.DescVendorDefined, Data: []byte{0xDE, 0xAD}},
			},
			PackageData: []byte{0xCA, 0xFE},
		}},
		Components: []ComponentImage{
			{
				Classification:  fwupdate.ClassFirmware,
				Identifier:      1,
				ComparisonStamp: &stamp,
				Options:         OptionUseComparisonStamp,
				Version:         fwupdate.ASCIIString("2.0.0"),
				Size:            11,
				Data:            []byte("application"),
			},
			{
				Classification:            fwupdate.ClassFirmware,
				Identifier:                2,
				Options:                   OptionForceUpdate,
				RequestedActivationMethod: fwupdate.ActivationSelfContained,
				Version:                   fwupdate.FirmwareString{Type: fwupdate.StringUTF8, Data: []byte("1.1.0")},
				Size:                      4,
				Data:                      []byte("boot"),
			},
		},
	}

	if diff := cmp.Diff(want, pkg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		errMsg   string
	}{
		{
			name:     "not yaml",
			manifest: "header: [",
			errMsg:   "decoding manifest",
		},
		{
			name:     "bad uuid",
			manifest: "header: {uuid: nope}",
			errMsg:   "header.uuid",
		},
		{
			name:     "bad date",
			manifest: "header: {releaseDate: yesterday}",
			errMsg:   "header.releaseDate",
		},
		{
			name: "unknown descriptor type",
			manifest: `
deviceRecords:
  - initialDescriptor: {type: serial, value: "01"}
`,
			errMsg: "unknown descriptor type",
		},
		{
			name: "bad hex",
			manifest: `
deviceRecords:
  - initialDescriptor: {type: pci-vendor, value: "zz"}
`,
			errMsg: "deviceRecords[0]: initialDescriptor",
		},
		{
			name: "missing image",
			manifest: `
components:
  - classification: 10
    identifier: 1
    image: missing.bin
`,
			errMsg: "reading image missing.bin",
		},
		{
			name: "no image",
			manifest: `
components:
  - classification: 10
`,
			errMsg: "components[0]: no image file",
		},
		{
			name: "unknown string type",
			manifest: `
components:
  - versionType: ebcdic
    image: app.bin
`,
			errMsg: "unknown version string type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeFiles(t, map[string]string{"app.bin": "x"})
			_, err := Parse([]byte(tt.manifest), dir)
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestLoadMissingManifest(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading manifest") {
		t.Errorf("Load() error = %v, want reading manifest error", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error does not wrap os.ErrNotExist")
	}
}

func TestParseReportsAllProblems(t *testing.T) {
	manifest := `
deviceRecords:
  - applicableComponents: [0, 0, 3]
    initialDescriptor: {type: uuid, value: "0102"}
components:
  - classification: 10
    identifier: 1
    version: "` + strings.Repeat("v", 300) + `"
    image: app.bin
`
	dir := writeFiles(t, map[string]string{"app.bin": "x"})

	_, err := Parse([]byte(manifest), dir)
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("Parse() error = %v, want *multierror.Error", err)
	}

	wantFields := []string{
		"deviceRecords[0].initialDescriptor",
		"deviceRecords[0].applicableComponents[1]",
		"deviceRecords[0].applicableComponents[2]",
		"components[0].version",
	}
	var got []string
	for _, e := range merr.Errors {
		var verr *ValidationError
		if !errors.As(e, &verr) {
			t.Fatalf("entry %v is not a *ValidationError", e)
		}
		got = append(got, verr.Field)
	}
	if diff := cmp.Diff(wantFields, got); diff != "" {
		t.Errorf("reported fields mismatch (-want +got):\n%s", diff)
	}
}
