package agent

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/moffa90/go-pldm/fwpkg"
	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/protocol"
)

func TestFirmwareData(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		offset uint32
		length uint32
		want   protocol.CompletionCode
		// pad is the number of zero bytes expected at the end
		pad int
	}{
		{name: "first chunk", size: 256, offset: 0, length: 64, want: protocol.Success},
		{name: "last chunk", size: 256, offset: 192, length: 64, want: protocol.Success},
		{name: "past the end", size: 256, offset: 256, length: 64, want: fwupdate.DataOutOfRange},
		{name: "padded tail", size: 200, offset: 192, length: 64, want: protocol.Success, pad: 56},
		{name: "padding limit", size: 200, offset: 100, length: 1124, want: protocol.Success, pad: 1024},
		{name: "beyond padding limit", size: 200, offset: 100, length: 1125, want: fwupdate.DataOutOfRange},
		{name: "offset overflow", size: 200, offset: 0xFFFFFFF0, length: 64, want: fwupdate.DataOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := &fwpkg.ComponentImage{Size: uint32(tt.size), Data: testImage(tt.size)}
			data, cc := DefaultUpdateActions{}.FirmwareData(img, tt.offset, tt.length)
			if cc != tt.want {
				t.Fatalf("FirmwareData() code = %v, want %v", cc, tt.want)
			}
			if cc != protocol.Success {
				if data != nil {
					t.Errorf("FirmwareData() returned %d bytes with %v", len(data), cc)
				}
				return
			}
			if len(data) != int(tt.length) {
				t.Fatalf("len(data) = %d, want %d", len(data), tt.length)
			}
			n := int(tt.length) - tt.pad
			if !bytes.Equal(data[:n], img.Data[tt.offset:int(tt.offset)+n]) {
				t.Error("data does not match the image")
			}
			if !bytes.Equal(data[n:], make([]byte, tt.pad)) {
				t.Error("padding is not zero")
			}
		})
	}
}

func TestMatchDevice(t *testing.T) {
	pkg := testPackage(100)

	other := testUUID
	other[15] = 0xFF

	rec, err := DefaultUpdateActions{}.MatchDevice(pkg, []fwupdate.Descriptor{fwupdate.NewUUIDDescriptor(testUUID)})
	if err != nil || rec != 0 {
		t.Errorf("MatchDevice(matching) = %d, %v, want 0, nil", rec, err)
	}

	rec, err = DefaultUpdateActions{}.MatchDevice(pkg, []fwupdate.Descriptor{fwupdate.NewUUIDDescriptor(other)})
	if err != ErrNoMatchingDevice || rec != -1 {
		t.Errorf("MatchDevice(other) = %d, %v, want -1, ErrNoMatchingDevice", rec, err)
	}
}

func TestSelectComponents(t *testing.T) {
	tests := []struct {
		name   string
		pkg    func() *fwpkg.Package
		params func() fwupdate.FirmwareParameters
		record int
		want   []int
		errMsg string
	}{
		{
			name:   "newer images",
			pkg:    func() *fwpkg.Package { return testPackage(10, 20) },
			params: func() fwupdate.FirmwareParameters { return testParams(2) },
			want:   []int{0, 1},
		},
		{
			name: "same stamp skipped",
			pkg:  func() *fwpkg.Package { return testPackage(10, 20) },
			params: func() fwupdate.FirmwareParameters {
				p := testParams(2)
				p.Components[0].ActiveComparisonStamp = 2
				return p
			},
			want: []int{1},
		},
		{
			name: "forced despite lower stamp",
			pkg: func() *fwpkg.Package {
				pkg := testPackage(10)
				pkg.Components[0].Options |= fwpkg.OptionForceUpdate
				return pkg
			},
			params: func() fwupdate.FirmwareParameters {
				p := testParams(1)
				p.Components[0].ActiveComparisonStamp = 9
				return p
			},
			want: []int{0},
		},
		{
			name: "not applicable to the record",
			pkg: func() *fwpkg.Package {
				pkg := testPackage(10, 20)
				pkg.DeviceIDRecords[0].ApplicableComponents = []int{1}
				return pkg
			},
			params: func() fwupdate.FirmwareParameters { return testParams(2) },
			want:   []int{1},
		},
		{
			name: "unknown FD component",
			pkg:  func() *fwpkg.Package { return testPackage(10) },
			params: func() fwupdate.FirmwareParameters {
				p := testParams(2)
				p.Components[0].Identifier = 0x7777
				return p
			},
			want: nil,
		},
		{
			name: "version compared without stamp",
			pkg: func() *fwpkg.Package {
				pkg := testPackage(10)
				pkg.Components[0].ComparisonStamp = nil
				pkg.Components[0].Options = 0
				pkg.Components[0].Version = fwupdate.ASCIIString("1.0.0")
				return pkg
			},
			params: func() fwupdate.FirmwareParameters { return testParams(1) },
			want:   nil,
		},
		{
			name:   "record out of range",
			pkg:    func() *fwpkg.Package { return testPackage(10) },
			params: func() fwupdate.FirmwareParameters { return testParams(1) },
			record: 3,
			errMsg: "device record 3 out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := tt.pkg()
			params := tt.params()
			sel, err := DefaultUpdateActions{}.SelectComponents(pkg, tt.record, &params)
			if tt.errMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
					t.Fatalf("SelectComponents() error = %v, want %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectComponents() error = %v", err)
			}

			var got []int
			for _, s := range sel {
				got = append(got, s.Image)
				if s.Component.ClassificationIndex != params.Components[0].ClassificationIndex {
					t.Errorf("component %d index = %d", s.Image, s.Component.ClassificationIndex)
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("selected images mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDefaultDiscoveryActions(t *testing.T) {
	var d DefaultDiscoveryActions

	var both, baseOnly protocol.TypeBitmap
	both.Set(protocol.TypeBase)
	both.Set(protocol.TypeFirmwareUpdate)
	baseOnly.Set(protocol.TypeBase)

	base := protocol.NewCommandBitmap(protocol.CmdGetTID, protocol.CmdGetTypes, protocol.CmdGetVersion, protocol.CmdGetCommands)
	partial := protocol.NewCommandBitmap(fwupdate.CmdQueryDeviceIdentifiers, fwupdate.CmdGetFirmwareParameters)

	tests := []struct {
		name   string
		check  func() error
		errMsg string
	}{
		{name: "tid", check: func() error { return d.CheckTID(1, 1) }},
		{name: "tid mismatch", check: func() error { return d.CheckTID(1, 0) }, errMsg: "TID is 0x00"},
		{name: "types", check: func() error { return d.CheckTypes(both) }},
		{name: "type 5 missing", check: func() error { return d.CheckTypes(baseOnly) }, errMsg: "PLDM type 5"},
		{
			name:  "base version",
			check: func() error { return d.CheckVersion(protocol.TypeBase, protocol.MustParseVer32(protocol.BaseVersion)) },
		},
		{
			name: "firmware update version",
			check: func() error {
				return d.CheckVersion(protocol.TypeFirmwareUpdate, protocol.MustParseVer32(protocol.FirmwareUpdateVersion))
			},
		},
		{
			name: "wrong version",
			check: func() error {
				return d.CheckVersion(protocol.TypeFirmwareUpdate, protocol.MustParseVer32("1.0.0"))
			},
			errMsg: "type 5 version",
		},
		{name: "base commands", check: func() error { return d.CheckCommands(protocol.TypeBase, base) }},
		{
			name: "device commands",
			check: func() error {
				return d.CheckCommands(protocol.TypeFirmwareUpdate, protocol.NewCommandBitmap(fwupdate.DeviceCommands...))
			},
		},
		{
			name:   "device command missing",
			check:  func() error { return d.CheckCommands(protocol.TypeFirmwareUpdate, partial) },
			errMsg: "command 0x10 not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %v, want %q", err, tt.errMsg)
			}
		})
	}

	if !d.Start() || (SkipDiscovery{}).Start() {
		t.Error("Start() should be true for the default actions and false for SkipDiscovery")
	}
}
