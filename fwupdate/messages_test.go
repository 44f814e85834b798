package fwupdate

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/moffa90/go-pldm/protocol"
)

func testParams() FirmwareParameters {
	return FirmwareParameters{
		Capabilities:   CapUpdateFailureRecovery | CapPartialUpdates,
		ActiveVersion:  ASCIIString("set-1.0"),
		PendingVersion: ASCIIString("set-1.5"),
		Components: []ComponentParameterEntry{
			{
				Classification:           ClassFirmware,
				Identifier:               0x0001,
				ClassificationIndex:      1,
				ActiveComparisonStamp:    0x12345678,
				ActiveVersion:            FirmwareString{Type: StringUTF8, Data: []byte("mcu-runtime-1.0")},
				ActiveReleaseDate:        [8]byte{'2', '0', '2', '5', '0', '2', '1', '0'},
				PendingComparisonStamp:   0x87654321,
				PendingVersion:           FirmwareString{Type: StringUTF8, Data: []byte("mcu-runtime-1.5")},
				ActivationMethods:        ActivationAutomatic,
				CapabilitiesDuringUpdate: CapUpdateFailureRetry,
			},
			{
				Classification:      ClassFirmware,
				Identifier:          0x0002,
				ActiveVersion:       ASCIIString("boot-2"),
				ActivationMethods:   ActivationSystemReboot,
				ClassificationIndex: 0,
			},
		},
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	id := uuid.MustParse("01020304-0506-0708-090a-0b0c0d0e0f10")

	tests := []struct {
		name string
		in   protocol.Payload
		out  protocol.Payload
	}{
		{
			name: "query device identifiers response",
			in: &QueryDeviceIdentifiersResponse{
				CompletionCode: protocol.Success,
				Descriptors: []Descriptor{
					NewUUIDDescriptor(id),
					{Type: DescPCIVendorID, Data: []byte{0x86, 0x80}},
				},
			},
			out: &QueryDeviceIdentifiersResponse{},
		},
		{
			name: "get firmware parameters response",
			in:   &GetFirmwareParametersResponse{CompletionCode: protocol.Success, Params: testParams()},
			out:  &GetFirmwareParametersResponse{},
		},
		{
			name: "request update request",
			in: &RequestUpdateRequest{
				MaxTransferSize:           512,
				NumComponents:             3,
				MaxOutstandingTransferReq: 1,
				ImageSetVersion:           ASCIIString("bundle-7"),
			},
			out: &RequestUpdateRequest{},
		},
		{
			name: "request update response",
			in:   &RequestUpdateResponse{CompletionCode: protocol.Success, FDMetaDataLength: 4},
			out:  &RequestUpdateResponse{},
		},
		{
			name: "request update response with package data size",
			in: &RequestUpdateResponse{
				CompletionCode:                protocol.Success,
				FDWillSendPackageData:         PackageDataWillSendSize,
				GetPackageDataMaxTransferSize: 128,
			},
			out: &RequestUpdateResponse{},
		},
		{
			name: "pass component table request",
			in: &PassComponentTableRequest{
				Flag:            protocol.TransferMiddle,
				Classification:  ClassFirmware,
				Identifier:      7,
				ComparisonStamp: 42,
				Version:         ASCIIString("fw-7"),
			},
			out: &PassComponentTableRequest{},
		},
		{
			name: "pass component table response",
			in: &PassComponentTableResponse{
				CompletionCode: protocol.Success,
				Response:       ComponentCannotBeUpdated,
				ResponseCode:   CompComparisonStampLower,
			},
			out: &PassComponentTableResponse{},
		},
		{
			name: "update component request",
			in: &UpdateComponentRequest{
				Classification:  ClassFirmware,
				Identifier:      7,
				ComparisonStamp: 42,
				ImageSize:       4096,
				OptionFlags:     OptionRequestForceUpdate,
				Version:         ASCIIString("fw-7"),
			},
			out: &UpdateComponentRequest{},
		},
		{
			name: "update component response",
			in: &UpdateComponentResponse{
				CompletionCode:          protocol.Success,
				FlagsEnabled:            OptionRequestForceUpdate,
				TimeBeforeRequestFwData: 10,
			},
			out: &UpdateComponentResponse{},
		},
		{
			name: "update component response with opaque data size",
			in: &UpdateComponentResponse{
				CompletionCode:            protocol.Success,
				FlagsEnabled:              OptionComponentOpaqueData,
				OpaqueDataMaxTransferSize: 256,
			},
			out: &UpdateComponentResponse{},
		},
		{
			name: "request firmware data request",
			in:   &RequestFirmwareDataRequest{Offset: 128, Length: 64},
			out:  &RequestFirmwareDataRequest{},
		},
		{
			name: "request firmware data response",
			in:   &RequestFirmwareDataResponse{CompletionCode: protocol.Success, Data: []byte{1, 2, 3, 4}},
			out:  &RequestFirmwareDataResponse{},
		},
		{
			name: "transfer complete request",
			in:   &TransferCompleteRequest{Result: FdAbortedTransfer},
			out:  &TransferCompleteRequest{},
		},
		{
			name: "verify complete request",
			in:   &VerifyCompleteRequest{Result: VerifyErrorVerificationFailure},
			out:  &VerifyCompleteRequest{},
		},
		{
			name: "apply complete request",
			in:   &ApplyCompleteRequest{Result: ApplySuccessWithActivationMethod, ActivationMethodsModification: ActivationDCPowerCycle},
			out:  &ApplyCompleteRequest{},
		},
		{
			name: "activate firmware request",
			in:   &ActivateFirmwareRequest{SelfContainedActivation: ActivateSelfContained},
			out:  &ActivateFirmwareRequest{},
		},
		{
			name: "activate firmware response",
			in:   &ActivateFirmwareResponse{CompletionCode: protocol.Success, EstimatedTime: 30},
			out:  &ActivateFirmwareResponse{},
		},
		{
			name: "get status response",
			in: &GetStatusResponse{
				CompletionCode:  protocol.Success,
				CurrentState:    StateIdle,
				PreviousState:   StateDownload,
				AuxState:        AuxOperationFailed,
				AuxStateStatus:  AuxStatusTimeout,
				ProgressPercent: ProgressNotSupported,
				Reason:          ReasonDownloadTimeout,
			},
			out: &GetStatusResponse{},
		},
		{
			name: "cancel update response",
			in:   &CancelUpdateResponse{CompletionCode: protocol.Success, NonFunctioningComponent: true, NonFunctioningBitmap: 0x5},
			out:  &CancelUpdateResponse{},
		},
		{
			name: "failure response carries only the code",
			in:   &UpdateComponentResponse{CompletionCode: InvalidStateForCommand},
			out:  &UpdateComponentResponse{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := protocol.NewMessageBuf(make([]byte, protocol.MaxMessageSize))
			if err := tt.in.Encode(m); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if err := tt.out.Decode(m); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if m.Len() != 0 {
				t.Errorf("Decode() left %d bytes", m.Len())
			}
			if diff := cmp.Diff(tt.in, tt.out); diff != "" {
				t.Errorf("round trip mismatch (-in +out):\n%s", diff)
			}
		})
	}
}

func TestRequestFirmwareDataWire(t *testing.T) {
	hdr := protocol.NewRequestHeader(3, protocol.TypeFirmwareUpdate, CmdRequestFirmwareData)
	msg, err := protocol.EncodeMessage(hdr, RequestFirmwareDataRequest{Offset: 0x100, Length: 0x40})
	if err != nil {
		t.Fatalf("EncodeMessage() error = %v", err)
	}
	want := []byte{
		0x83, 0x05, 0x15,
		0x00, 0x01, 0x00, 0x00,
		0x40, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(msg, want) {
		t.Errorf("encoded = % X, want % X", msg, want)
	}
}

func TestPassComponentTableWire(t *testing.T) {
	req := PassComponentTableRequest{
		Flag:                protocol.TransferStart,
		Classification:      ClassFirmware,
		Identifier:          0x0102,
		ClassificationIndex: 3,
		ComparisonStamp:     0x0A0B0C0D,
		Version:             ASCIIString("v1"),
	}
	m := protocol.NewMessageBuf(make([]byte, 64))
	if err := req.Encode(m); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []byte{
		0x01,
		0x0A, 0x00,
		0x02, 0x01,
		0x03,
		0x0D, 0x0C, 0x0B, 0x0A,
		0x01, 0x02,
		'v', '1',
	}
	if got := m.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("encoded = % X, want % X", got, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		out    protocol.Payload
		errMsg string
	}{
		{
			name:   "version string length mismatch",
			data:   []byte{0x01, 0x0A, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x05, 'a'},
			out:    &PassComponentTableRequest{},
			errMsg: "component version length 5",
		},
		{
			name:   "zero descriptors",
			data:   []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			out:    &QueryDeviceIdentifiersResponse{},
			errMsg: "descriptor count is zero",
		},
		{
			name:   "descriptor length disagrees with total",
			data:   []byte{0x00, 0x08, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x02, 0x00, 0x86, 0x80, 0xFF, 0xFF},
			out:    &QueryDeviceIdentifiersResponse{},
			errMsg: "descriptors used 6",
		},
		{
			name:   "truncated status",
			data:   []byte{0x00, 0x01, 0x02},
			out:    &GetStatusResponse{},
			errMsg: "underflow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.out.Decode(protocol.LoadMessageBuf(tt.data))
			if err == nil {
				t.Fatal("Decode() error = nil")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Decode() error = %v, want containing %q", err, tt.errMsg)
			}
		})
	}
}
