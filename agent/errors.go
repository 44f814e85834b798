package agent

import (
	"errors"
	"fmt"

	"github.com/moffa90/go-pldm/fwupdate"
)

var (
	// ErrNoMatchingDevice is returned when no device record of the package
	// matches the descriptors reported by the FD.
	ErrNoMatchingDevice = errors.New("no device record matches the firmware device")

	// ErrNothingToUpdate is returned when the FD needs none of the package's
	// components.
	ErrNothingToUpdate = errors.New("no component to update")

	// ErrCancelled is returned when the update was stopped before it finished.
	ErrCancelled = errors.New("update cancelled")

	// ErrTimeout is returned when the FD stops answering.
	ErrTimeout = errors.New("firmware device timed out")

	// ErrDiscovery is returned when the FD fails a discovery check.
	ErrDiscovery = errors.New("discovery failed")
)

// ComponentRejectedError reports a component the FD declined in
// UpdateComponent.
type ComponentRejectedError struct {
	Component fwupdate.FirmwareComponent
	Code      fwupdate.ComponentResponseCode
}

func (e *ComponentRejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Component, e.Code)
}

// ComponentFailedError reports a component whose transfer, verification or
// application failed on the FD.
type ComponentFailedError struct {
	Component fwupdate.FirmwareComponent

	// Phase is PhaseDownload, PhaseVerify or PhaseApply
	Phase string

	// Result is the TransferResult, VerifyResult or ApplyResult sent by the FD
	Result uint8
}

func (e *ComponentFailedError) Error() string {
	return fmt.Sprintf("%s: %s failed with result 0x%02X", e.Component, e.Phase, e.Result)
}
