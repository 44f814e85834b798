package fwupdate

import (
	"fmt"

	"github.com/moffa90/go-pldm/protocol"
)

// Firmware update command codes per DSP0267.
const (
	// CmdQueryDeviceIdentifiers returns the FD's descriptor list (UA -> FD)
	CmdQueryDeviceIdentifiers uint8 = 0x01

	// CmdGetFirmwareParameters returns capabilities and per-component versions (UA -> FD)
	CmdGetFirmwareParameters uint8 = 0x02

	// CmdRequestUpdate puts the FD in update mode (UA -> FD)
	CmdRequestUpdate uint8 = 0x10

	// CmdPassComponentTable sends one component table entry (UA -> FD)
	CmdPassComponentTable uint8 = 0x13

	// CmdUpdateComponent selects the component to transfer next (UA -> FD)
	CmdUpdateComponent uint8 = 0x14

	// CmdRequestFirmwareData pulls a chunk of the component image (FD -> UA)
	CmdRequestFirmwareData uint8 = 0x15

	// CmdTransferComplete reports the end of a component transfer (FD -> UA)
	CmdTransferComplete uint8 = 0x16

	// CmdVerifyComplete reports the end of verification (FD -> UA)
	CmdVerifyComplete uint8 = 0x17

	// CmdApplyComplete reports the end of the apply phase (FD -> UA)
	CmdApplyComplete uint8 = 0x18

	// CmdActivateFirmware activates the applied components (UA -> FD)
	CmdActivateFirmware uint8 = 0x1A

	// CmdGetStatus reports the FD state, allowed at any time (UA -> FD)
	CmdGetStatus uint8 = 0x1B

	// CmdCancelUpdateComponent aborts the component in progress (UA -> FD)
	CmdCancelUpdateComponent uint8 = 0x1C

	// CmdCancelUpdate leaves update mode (UA -> FD)
	CmdCancelUpdate uint8 = 0x1D
)

// CommandName returns the DSP0267 name of a firmware update command.
func CommandName(cmd uint8) string {
	switch cmd {
	case CmdQueryDeviceIdentifiers:
		return "QueryDeviceIdentifiers"
	case CmdGetFirmwareParameters:
		return "GetFirmwareParameters"
	case CmdRequestUpdate:
		return "RequestUpdate"
	case CmdPassComponentTable:
		return "PassComponentTable"
	case CmdUpdateComponent:
		return "UpdateComponent"
	case CmdRequestFirmwareData:
		return "RequestFirmwareData"
	case CmdTransferComplete:
		return "TransferComplete"
	case CmdVerifyComplete:
		return "VerifyComplete"
	case CmdApplyComplete:
		return "ApplyComplete"
	case CmdActivateFirmware:
		return "ActivateFirmware"
	case CmdGetStatus:
		return "GetStatus"
	case CmdCancelUpdateComponent:
		return "CancelUpdateComponent"
	case CmdCancelUpdate:
		return "CancelUpdate"
	default:
		return fmt.Sprintf("Command(0x%02X)", cmd)
	}
}

// DeviceCommands are the commands a firmware device answers.
var DeviceCommands = []uint8{
	CmdQueryDeviceIdentifiers,
	CmdGetFirmwareParameters,
	CmdRequestUpdate,
	CmdPassComponentTable,
	CmdUpdateComponent,
	CmdActivateFirmware,
	CmdGetStatus,
	CmdCancelUpdateComponent,
	CmdCancelUpdate,
}

// Firmware update completion codes per DSP0267.
const (
	NotInUpdateMode                   protocol.CompletionCode = 0x80
	AlreadyInUpdateMode               protocol.CompletionCode = 0x81
	DataOutOfRange                    protocol.CompletionCode = 0x82
	InvalidTransferLength             protocol.CompletionCode = 0x83
	InvalidStateForCommand            protocol.CompletionCode = 0x84
	IncompleteUpdate                  protocol.CompletionCode = 0x85
	BusyInBackground                  protocol.CompletionCode = 0x86
	CancelPending                     protocol.CompletionCode = 0x87
	CommandNotExpected                protocol.CompletionCode = 0x88
	RetryRequestFwData                protocol.CompletionCode = 0x89
	UnableToInitiateUpdate            protocol.CompletionCode = 0x8A
	ActivationNotRequired             protocol.CompletionCode = 0x8B
	SelfContainedActivationNotAllowed protocol.CompletionCode = 0x8C
	NoDeviceMetadata                  protocol.CompletionCode = 0x8D
	RetryRequestUpdate                protocol.CompletionCode = 0x8E
	NoPackageData                     protocol.CompletionCode = 0x8F
	InvalidTransferHandle             protocol.CompletionCode = 0x90
	InvalidTransferOperationFlag      protocol.CompletionCode = 0x91
	ActivatePendingImageNotPermitted  protocol.CompletionCode = 0x92
	PackageDataError                  protocol.CompletionCode = 0x93
)

func init() {
	protocol.RegisterCodeNames(protocol.TypeFirmwareUpdate, map[protocol.CompletionCode]string{
		NotInUpdateMode:                   "not in update mode",
		AlreadyInUpdateMode:               "already in update mode",
		DataOutOfRange:                    "data out of range",
		InvalidTransferLength:             "invalid transfer length",
		InvalidStateForCommand:            "invalid state for command",
		IncompleteUpdate:                  "incomplete update",
		BusyInBackground:                  "busy in background",
		CancelPending:                     "cancel pending",
		CommandNotExpected:                "command not expected",
		RetryRequestFwData:                "retry request firmware data",
		UnableToInitiateUpdate:            "unable to initiate update",
		ActivationNotRequired:             "activation not required",
		SelfContainedActivationNotAllowed: "self-contained activation not permitted",
		NoDeviceMetadata:                  "no device metadata",
		RetryRequestUpdate:                "retry request update",
		NoPackageData:                     "no package data",
		InvalidTransferHandle:             "invalid transfer handle",
		InvalidTransferOperationFlag:      "invalid transfer operation flag",
		ActivatePendingImageNotPermitted:  "activate pending image not permitted",
		PackageDataError:                  "package data error",
	})
}

// Transfer sizes per DSP0267.
const (
	// BaselineTransferSize is the smallest transfer size every FD must accept
	BaselineTransferSize = 32

	// MaxTransferSize caps the negotiated RequestFirmwareData chunk size
	MaxTransferSize = 4096

	// MaxPaddingSize is how far past the image end a RequestFirmwareData may reach
	MaxPaddingSize = 1024

	// MaxStringLength is the longest version string a length byte can describe
	MaxStringLength = 255

	// MaxDescriptorDataLength bounds descriptor payloads
	MaxDescriptorDataLength = 64

	// ReleaseDateLength is the size of component release date fields
	ReleaseDateLength = 8
)

// State is a firmware device state as reported by GetStatus.
type State uint8

const (
	StateIdle            State = 0
	StateLearnComponents State = 1
	StateReadyXfer       State = 2
	StateDownload        State = 3
	StateVerify          State = 4
	StateApply           State = 5
	StateActivate        State = 6
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLearnComponents:
		return "LearnComponents"
	case StateReadyXfer:
		return "ReadyXfer"
	case StateDownload:
		return "Download"
	case StateVerify:
		return "Verify"
	case StateApply:
		return "Apply"
	case StateActivate:
		return "Activate"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// ReasonCode explains why the FD entered Idle.
type ReasonCode uint8

const (
	ReasonInitialization        ReasonCode = 0
	ReasonActivateFw            ReasonCode = 1
	ReasonCancelUpdate          ReasonCode = 2
	ReasonLearnComponentTimeout ReasonCode = 3
	ReasonReadyXferTimeout      ReasonCode = 4
	ReasonDownloadTimeout       ReasonCode = 5
	ReasonVerifyTimeout         ReasonCode = 6
	ReasonApplyTimeout          ReasonCode = 7
)

// TimeoutReason returns the reason code reported when the FD times out in s.
func TimeoutReason(s State) ReasonCode {
	switch s {
	case StateLearnComponents:
		return ReasonLearnComponentTimeout
	case StateReadyXfer:
		return ReasonReadyXferTimeout
	case StateDownload:
		return ReasonDownloadTimeout
	case StateVerify:
		return ReasonVerifyTimeout
	case StateApply:
		return ReasonApplyTimeout
	case StateActivate:
		return ReasonActivateFw
	default:
		return ReasonInitialization
	}
}

func (r ReasonCode) String() string {
	switch r {
	case ReasonInitialization:
		return "Initialization"
	case ReasonActivateFw:
		return "ActivateFw"
	case ReasonCancelUpdate:
		return "CancelUpdate"
	case ReasonLearnComponentTimeout:
		return "LearnComponentTimeout"
	case ReasonReadyXferTimeout:
		return "ReadyXferTimeout"
	case ReasonDownloadTimeout:
		return "DownloadTimeout"
	case ReasonVerifyTimeout:
		return "VerifyTimeout"
	case ReasonApplyTimeout:
		return "ApplyTimeout"
	default:
		return fmt.Sprintf("Reason(%d)", uint8(r))
	}
}

// AuxState qualifies the current state in GetStatus.
type AuxState uint8

const (
	AuxOperationInProgress          AuxState = 0
	AuxOperationSuccessful          AuxState = 1
	AuxOperationFailed              AuxState = 2
	AuxIdleLearnComponentsReadyXfer AuxState = 3
)

// AuxStateStatus carries the detail for AuxOperationFailed.
type AuxStateStatus uint8

const (
	AuxStatusInProgressOrSuccess AuxStateStatus = 0x00
	AuxStatusTimeout             AuxStateStatus = 0x09
	AuxStatusGenericError        AuxStateStatus = 0x0A
)

// ProgressNotSupported is the progress value reported when progress is unknown.
const ProgressNotSupported uint8 = 101

// TransferResult is the result code of TransferComplete.
type TransferResult uint8

const (
	TransferSuccess                         TransferResult = 0x00
	TransferErrorImageCorrupt               TransferResult = 0x01
	TransferErrorVersionMismatch            TransferResult = 0x02
	FdAbortedTransfer                       TransferResult = 0x03
	FdAbortedTransferLowPowerState          TransferResult = 0x0B
	FdAbortedTransferResetNeeded            TransferResult = 0x0C
	FdAbortedTransferStorageIssue           TransferResult = 0x0D
	FdAbortedTransferInvalidComponentOpaque TransferResult = 0x0E
	FdAbortedTransferDownstreamDeviceIssue  TransferResult = 0x0F
	FdAbortedTransferSecurityRevisionError  TransferResult = 0x10
)

// VerifyResult is the result code of VerifyComplete.
type VerifyResult uint8

const (
	VerifySuccess                  VerifyResult = 0x00
	VerifyErrorVerificationFailure VerifyResult = 0x01
	VerifyErrorVersionMismatch     VerifyResult = 0x02
	VerifyFailedFdSecurityChecks   VerifyResult = 0x03
	VerifyErrorImageIncomplete     VerifyResult = 0x04
	VerifyTimeOut                  VerifyResult = 0x09
	VerifyGenericError             VerifyResult = 0x0A
)

// ApplyResult is the result code of ApplyComplete.
type ApplyResult uint8

const (
	ApplySuccess                     ApplyResult = 0x00
	ApplySuccessWithActivationMethod ApplyResult = 0x01
	ApplyFailureMemoryIssue          ApplyResult = 0x02
	ApplyTimeOut                     ApplyResult = 0x09
	ApplyGenericError                ApplyResult = 0x0A
)

// Succeeded reports whether r is one of the success results.
func (r ApplyResult) Succeeded() bool {
	return r == ApplySuccess || r == ApplySuccessWithActivationMethod
}

// ComponentResponse is the PassComponentTable verdict.
type ComponentResponse uint8

const (
	ComponentCanBeUpdated    ComponentResponse = 0
	ComponentCannotBeUpdated ComponentResponse = 1
)

// ComponentResponseCode details a PassComponentTable verdict.
type ComponentResponseCode uint8

const (
	CompCanBeUpdated                     ComponentResponseCode = 0x00
	CompComparisonStampIdentical         ComponentResponseCode = 0x01
	CompComparisonStampLower             ComponentResponseCode = 0x02
	InvalidCompComparisonStamp           ComponentResponseCode = 0x03
	CompConflict                         ComponentResponseCode = 0x04
	CompPrerequisitesNotMet              ComponentResponseCode = 0x05
	CompNotSupported                     ComponentResponseCode = 0x06
	CompSecurityRestrictions             ComponentResponseCode = 0x07
	IncompleteCompImageSet               ComponentResponseCode = 0x08
	ActiveImageNotUpdateableSubsequently ComponentResponseCode = 0x09
	CompVerStrIdentical                  ComponentResponseCode = 0x0A
	CompVerStrLower                      ComponentResponseCode = 0x0B
)

// Response returns the ComponentResponse implied by c.
func (c ComponentResponseCode) Response() ComponentResponse {
	if c == CompCanBeUpdated {
		return ComponentCanBeUpdated
	}
	return ComponentCannotBeUpdated
}

func (c ComponentResponseCode) String() string {
	switch c {
	case CompCanBeUpdated:
		return "CompCanBeUpdated"
	case CompComparisonStampIdentical:
		return "CompComparisonStampIdentical"
	case CompComparisonStampLower:
		return "CompComparisonStampLower"
	case InvalidCompComparisonStamp:
		return "InvalidCompComparisonStamp"
	case CompConflict:
		return "CompConflict"
	case CompPrerequisitesNotMet:
		return "CompPrerequisitesNotMet"
	case CompNotSupported:
		return "CompNotSupported"
	case CompSecurityRestrictions:
		return "CompSecurityRestrictions"
	case IncompleteCompImageSet:
		return "IncompleteCompImageSet"
	case ActiveImageNotUpdateableSubsequently:
		return "ActiveImageNotUpdateableSubsequently"
	case CompVerStrIdentical:
		return "CompVerStrIdentical"
	case CompVerStrLower:
		return "CompVerStrLower"
	}
	if c >= 0xD0 && c <= 0xEF {
		return fmt.Sprintf("VendorDefined(0x%02X)", uint8(c))
	}
	return fmt.Sprintf("ComponentResponseCode(0x%02X)", uint8(c))
}

// CompatibilityResponseCode details an UpdateComponent verdict. Values share
// the numbering of ComponentResponseCode except 0x00 (no response code) and
// 0x09 (component info does not match).
type CompatibilityResponseCode uint8

const (
	CompatNoResponseCode  CompatibilityResponseCode = 0x00
	CompatCompInfoNoMatch CompatibilityResponseCode = 0x09
)

// CompatibilityCode maps a component verdict onto the UpdateComponent code space.
func CompatibilityCode(c ComponentResponseCode) CompatibilityResponseCode {
	return CompatibilityResponseCode(c)
}

// UpdateOptionFlags are the option bits of UpdateComponent and GetStatus.
type UpdateOptionFlags uint32

const (
	OptionRequestForceUpdate  UpdateOptionFlags = 1 << 0
	OptionComponentOpaqueData UpdateOptionFlags = 1 << 1
	OptionSVNDelayedUpdate    UpdateOptionFlags = 1 << 2
)

// DeviceCapability are the FD capability bits of GetFirmwareParameters.
type DeviceCapability uint32

const (
	CapUpdateFailureRecovery DeviceCapability = 1 << 0
	CapUpdateFailureRetry    DeviceCapability = 1 << 1
	CapHostFunctionReduced   DeviceCapability = 1 << 2
	CapPartialUpdates        DeviceCapability = 1 << 3
	CapDowngradeRestriction  DeviceCapability = 1 << 8
	CapSVNUpdateSupport      DeviceCapability = 1 << 9
)

// ActivationMethods are the component activation method bits.
type ActivationMethods uint16

const (
	ActivationAutomatic                ActivationMethods = 1 << 0
	ActivationSelfContained            ActivationMethods = 1 << 1
	ActivationMediumSpecificReset      ActivationMethods = 1 << 2
	ActivationSystemReboot             ActivationMethods = 1 << 3
	ActivationDCPowerCycle             ActivationMethods = 1 << 4
	ActivationACPowerCycle             ActivationMethods = 1 << 5
	ActivationPendingImage             ActivationMethods = 1 << 6
	ActivationPendingComponentImageSet ActivationMethods = 1 << 7
)

// Classification is the component classification of DSP0267 table 27.
type Classification uint16

const (
	ClassUnspecified           Classification = 0x0000
	ClassOther                 Classification = 0x0001
	ClassDriver                Classification = 0x0002
	ClassConfigurationSoftware Classification = 0x0003
	ClassApplicationSoftware   Classification = 0x0004
	ClassInstrumentation       Classification = 0x0005
	ClassFirmwareOrBIOS        Classification = 0x0006
	ClassDiagnosticSoftware    Classification = 0x0007
	ClassOperatingSystem       Classification = 0x0008
	ClassMiddleware            Classification = 0x0009
	ClassFirmware              Classification = 0x000A
	ClassBIOSOrFCode           Classification = 0x000B
	ClassSupportOrServicePack  Classification = 0x000C
	ClassSoftwareBundle        Classification = 0x000D
	ClassDownstreamDevice      Classification = 0xFFFF
)

// SelfContainedActivation values of ActivateFirmware.
const (
	NotActivateSelfContained uint8 = 0
	ActivateSelfContained    uint8 = 1
)
