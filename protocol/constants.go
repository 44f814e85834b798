package protocol

import "fmt"

// Protocol versions implemented by this library.
const (
	// BaseVersion is the PLDM base (DSP0240) version reported by GetPLDMVersion for type 0
	BaseVersion = "1.1.0"

	// FirmwareUpdateVersion is the PLDM firmware update (DSP0267) version reported for type 5
	FirmwareUpdateVersion = "1.3.0"
)

// Message framing constants per DSP0240.
const (
	// HeaderSize is the size of the PLDM message header in bytes:
	// Rq/D/InstanceID(1) + HdrVer/Type(1) + Command(1)
	HeaderSize = 3

	// MaxMessageSize bounds every encoded message handled by the codec. It
	// fits a RequestFirmwareData response carrying 4096 bytes.
	MaxMessageSize = 4104

	// InstanceIDCount is the size of the 5-bit instance ID space
	InstanceIDCount = 32

	// HeaderVersion is the only header version defined for PLDM 1.x
	HeaderVersion = 0

	// TypesBitmapSize is the length of the GetPLDMTypes bitmap (64 types)
	TypesBitmapSize = 8

	// CommandsBitmapSize is the length of the GetPLDMCommands bitmap (256 commands)
	CommandsBitmapSize = 32
)

// PLDM types.
const (
	// TypeBase is the PLDM messaging control and discovery type
	TypeBase uint8 = 0x00

	// TypePlatform is the platform monitoring and control type
	TypePlatform uint8 = 0x02

	// TypeBIOS is the BIOS control and configuration type
	TypeBIOS uint8 = 0x03

	// TypeFRU is the FRU data type
	TypeFRU uint8 = 0x04

	// TypeFirmwareUpdate is the firmware update type (DSP0267)
	TypeFirmwareUpdate uint8 = 0x05

	// TypeOEM is the OEM-specific type
	TypeOEM uint8 = 0x3F
)

// Control (type 0) command codes.
const (
	CmdSetTID      uint8 = 0x01
	CmdGetTID      uint8 = 0x02
	CmdGetVersion  uint8 = 0x03
	CmdGetTypes    uint8 = 0x04
	CmdGetCommands uint8 = 0x05
)

// ControlCommandName returns the DSP0240 name of a control command.
func ControlCommandName(cmd uint8) string {
	switch cmd {
	case CmdSetTID:
		return "SetTID"
	case CmdGetTID:
		return "GetTID"
	case CmdGetVersion:
		return "GetPLDMVersion"
	case CmdGetTypes:
		return "GetPLDMTypes"
	case CmdGetCommands:
		return "GetPLDMCommands"
	default:
		return fmt.Sprintf("Command(0x%02X)", cmd)
	}
}

// TransferOperationFlag selects which part of a multipart transfer is requested.
type TransferOperationFlag uint8

const (
	// GetNextPart requests the part following the given transfer handle
	GetNextPart TransferOperationFlag = 0x00

	// GetFirstPart requests the first part of the transfer
	GetFirstPart TransferOperationFlag = 0x01
)

// TransferFlag marks the position of a part within a multipart transfer.
// The same values are used for component table transfers in PassComponentTable.
type TransferFlag uint8

const (
	TransferStart       TransferFlag = 0x01
	TransferMiddle      TransferFlag = 0x02
	TransferEnd         TransferFlag = 0x04
	TransferStartAndEnd TransferFlag = 0x05
)

// Valid reports whether f is one of the defined transfer flags.
func (f TransferFlag) Valid() bool {
	switch f {
	case TransferStart, TransferMiddle, TransferEnd, TransferStartAndEnd:
		return true
	}
	return false
}

func (f TransferFlag) String() string {
	switch f {
	case TransferStart:
		return "Start"
	case TransferMiddle:
		return "Middle"
	case TransferEnd:
		return "End"
	case TransferStartAndEnd:
		return "StartAndEnd"
	default:
		return "Unknown"
	}
}
