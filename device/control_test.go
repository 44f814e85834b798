package device

import (
	"testing"

	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/protocol"
)

func TestControlTID(t *testing.T) {
	h := newHarness(t, nil, WithTID(0x10))

	var tid protocol.GetTIDResponse
	decodeControl(t, h.send(protocol.TypeBase, protocol.CmdGetTID, protocol.Empty{}), &tid)
	if tid.TID != 0x10 {
		t.Errorf("initial TID = %#x, want 0x10", tid.TID)
	}

	tests := []struct {
		tid  uint8
		want protocol.CompletionCode
	}{
		{0x00, protocol.InvalidData},
		{0xFF, protocol.InvalidData},
		{0x42, protocol.Success},
	}
	for _, tt := range tests {
		out := h.send(protocol.TypeBase, protocol.CmdSetTID, protocol.SetTIDRequest{TID: tt.tid})
		if cc, _ := protocol.ResponseCode(out); cc != tt.want {
			t.Errorf("SetTID(%#x) = %v, want %v", tt.tid, cc, tt.want)
		}
	}

	decodeControl(t, h.send(protocol.TypeBase, protocol.CmdGetTID, protocol.Empty{}), &tid)
	if tid.TID != 0x42 || h.fd.TID() != 0x42 {
		t.Errorf("TID after SetTID = %#x, want 0x42", tid.TID)
	}
}

func TestControlGetTypes(t *testing.T) {
	h := newHarness(t, nil)

	var resp protocol.GetTypesResponse
	decodeControl(t, h.send(protocol.TypeBase, protocol.CmdGetTypes, protocol.Empty{}), &resp)

	for pldmType := uint8(0); pldmType < 64; pldmType++ {
		want := pldmType == protocol.TypeBase || pldmType == protocol.TypeFirmwareUpdate
		if got := resp.Types.Has(pldmType); got != want {
			t.Errorf("type %d supported = %v, want %v", pldmType, got, want)
		}
	}
}

func TestControlGetVersion(t *testing.T) {
	tests := []struct {
		name     string
		req      protocol.GetVersionRequest
		wantCode protocol.CompletionCode
		want     string
	}{
		{
			name: "base",
			req:  protocol.GetVersionRequest{Flag: protocol.GetFirstPart, Type: protocol.TypeBase},
			want: protocol.BaseVersion,
		},
		{
			name: "firmware update",
			req:  protocol.GetVersionRequest{Flag: protocol.GetFirstPart, Type: protocol.TypeFirmwareUpdate},
			want: protocol.FirmwareUpdateVersion,
		},
		{
			name:     "next part",
			req:      protocol.GetVersionRequest{Flag: protocol.GetNextPart, Type: protocol.TypeBase},
			wantCode: protocol.InvalidTransferOperationFlag,
		},
		{
			name:     "unsupported type",
			req:      protocol.GetVersionRequest{Flag: protocol.GetFirstPart, Type: protocol.TypeBIOS},
			wantCode: protocol.InvalidPldmTypeInRequestData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			var resp protocol.GetVersionResponse
			decodeControl(t, h.send(protocol.TypeBase, protocol.CmdGetVersion, tt.req), &resp)

			if resp.CompletionCode != tt.wantCode {
				t.Fatalf("code = %v, want %v", resp.CompletionCode, tt.wantCode)
			}
			if tt.wantCode != protocol.Success {
				return
			}
			if resp.Flag != protocol.TransferStartAndEnd {
				t.Errorf("Flag = %v, want StartAndEnd", resp.Flag)
			}
			if resp.Version != protocol.MustParseVer32(tt.want) {
				t.Errorf("Version = %v, want %s", resp.Version, tt.want)
			}
		})
	}
}

func TestControlGetCommands(t *testing.T) {
	tests := []struct {
		name     string
		req      protocol.GetCommandsRequest
		wantCode protocol.CompletionCode
		has      []uint8
		hasNot   []uint8
	}{
		{
			name:   "base",
			req:    protocol.GetCommandsRequest{Type: protocol.TypeBase, Version: protocol.MustParseVer32(protocol.BaseVersion)},
			has:    []uint8{protocol.CmdSetTID, protocol.CmdGetTID, protocol.CmdGetVersion, protocol.CmdGetTypes, protocol.CmdGetCommands},
			hasNot: []uint8{0x00, 0x06},
		},
		{
			name:   "firmware update",
			req:    protocol.GetCommandsRequest{Type: protocol.TypeFirmwareUpdate, Version: protocol.MustParseVer32(protocol.FirmwareUpdateVersion)},
			has:    fwupdate.DeviceCommands,
			hasNot: []uint8{fwupdate.CmdRequestFirmwareData, fwupdate.CmdTransferComplete, fwupdate.CmdVerifyComplete, fwupdate.CmdApplyComplete},
		},
		{
			name:     "version mismatch",
			req:      protocol.GetCommandsRequest{Type: protocol.TypeFirmwareUpdate, Version: protocol.MustParseVer32("1.0.0")},
			wantCode: protocol.InvalidPldmVersionInRequestData,
		},
		{
			name:     "unsupported type",
			req:      protocol.GetCommandsRequest{Type: protocol.TypeFRU, Version: protocol.MustParseVer32("1.0.0")},
			wantCode: protocol.InvalidPldmTypeInRequestData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			var resp protocol.GetCommandsResponse
			decodeControl(t, h.send(protocol.TypeBase, protocol.CmdGetCommands, tt.req), &resp)

			if resp.CompletionCode != tt.wantCode {
				t.Fatalf("code = %v, want %v", resp.CompletionCode, tt.wantCode)
			}
			for _, c := range tt.has {
				if !resp.Commands.Has(c) {
					t.Errorf("command 0x%02X missing", c)
				}
			}
			for _, c := range tt.hasNot {
				if resp.Commands.Has(c) {
					t.Errorf("command 0x%02X unexpectedly set", c)
				}
			}
		})
	}
}

func TestControlLeavesUpdateTimerAlone(t *testing.T) {
	h := newHarness(t, nil)
	h.enterUpdate(64, 1)

	h.now = h.now.Add(119e9)
	h.send(protocol.TypeBase, protocol.CmdGetTID, protocol.Empty{})
	h.tick(2e9)

	h.wantState(fwupdate.StateIdle)
}

func decodeControl(t *testing.T, out []byte, p protocol.Decoder) {
	t.Helper()
	hdr, err := protocol.DecodeMessage(out, p)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if hdr.Request || hdr.Type != protocol.TypeBase {
		t.Fatalf("header = %v, want control response", hdr)
	}
}
