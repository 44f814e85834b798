package device

import (
	"context"

	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/protocol"
)

// ComponentOperation tells HandleComponent which command is asking.
type ComponentOperation uint8

const (
	// PassComponent is a PassComponentTable entry
	PassComponent ComponentOperation = iota

	// UpdateComponent is an UpdateComponent request
	UpdateComponent
)

func (op ComponentOperation) String() string {
	if op == PassComponent {
		return "PassComponent"
	}
	return "UpdateComponent"
}

// Ops is the platform side of a firmware device. The FD calls it from Step
// and never holds its own lock while doing so. Every method may fail; a
// failure is reported to the update agent through the completion code or
// result of the command in progress.
type Ops interface {
	// DeviceIdentifiers returns the descriptors of the device, initial first.
	DeviceIdentifiers(ctx context.Context) ([]fwupdate.Descriptor, error)

	// FirmwareParameters returns the capabilities and the installed components.
	FirmwareParameters(ctx context.Context) (*fwupdate.FirmwareParameters, error)

	// TransferSize returns the largest RequestFirmwareData chunk the device
	// accepts given the agent's maximum. It must be at least 32.
	TransferSize(ctx context.Context, uaSize uint32) (uint32, error)

	// HandleComponent decides whether comp can be updated.
	HandleComponent(ctx context.Context, comp *fwupdate.FirmwareComponent,
		params *fwupdate.FirmwareParameters, op ComponentOperation) (fwupdate.ComponentResponseCode, error)

	// QueryDownloadOffsetAndLength returns the next chunk the device wants.
	QueryDownloadOffsetAndLength(ctx context.Context, comp *fwupdate.FirmwareComponent) (offset, length uint32, err error)

	// DownloadFirmwareData stores one chunk received at offset.
	DownloadFirmwareData(ctx context.Context, offset uint32, data []byte,
		comp *fwupdate.FirmwareComponent) (fwupdate.TransferResult, error)

	// IsDownloadComplete reports whether the whole image has been received.
	IsDownloadComplete(ctx context.Context, comp *fwupdate.FirmwareComponent) (bool, error)

	// QueryDownloadProgress returns the download progress in percent.
	QueryDownloadProgress(ctx context.Context, comp *fwupdate.FirmwareComponent) (uint8, error)

	// Verify advances verification. Progress below 100 with VerifySuccess
	// means "call again".
	Verify(ctx context.Context, comp *fwupdate.FirmwareComponent) (uint8, fwupdate.VerifyResult, error)

	// Apply advances the apply phase, with the same progress rule as Verify.
	Apply(ctx context.Context, comp *fwupdate.FirmwareComponent) (uint8, fwupdate.ApplyResult, error)

	// Activate activates every applied component and returns the estimated
	// time in seconds.
	Activate(ctx context.Context, selfContained uint8) (uint16, protocol.CompletionCode, error)

	// CancelUpdateComponent discards the component in progress.
	CancelUpdateComponent(ctx context.Context, comp *fwupdate.FirmwareComponent) error
}
