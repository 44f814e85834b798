package protocol

import (
	"fmt"
	"sync"
)

// CompletionCode is the first byte of every PLDM response payload.
// Codes below 0x80 are generic; 0x80 and above are defined per PLDM type.
type CompletionCode uint8

// Generic completion codes per DSP0240.
const (
	// Success indicates the command completed normally
	Success CompletionCode = 0x00

	// Error is a generic failure
	Error CompletionCode = 0x01

	// InvalidData indicates a field in the request was out of range or malformed
	InvalidData CompletionCode = 0x02

	// InvalidLength indicates the request payload had the wrong size
	InvalidLength CompletionCode = 0x03

	// NotReady indicates the responder cannot process the command right now
	NotReady CompletionCode = 0x04

	// UnsupportedCmd indicates the command is not implemented for the type
	UnsupportedCmd CompletionCode = 0x05

	// InvalidPldmType indicates the PLDM type is not supported
	InvalidPldmType CompletionCode = 0x20
)

// Control (type 0) completion codes.
const (
	InvalidDataTransferHandle       CompletionCode = 0x80
	InvalidTransferOperationFlag    CompletionCode = 0x81
	InvalidPldmTypeInRequestData    CompletionCode = 0x83
	InvalidPldmVersionInRequestData CompletionCode = 0x84
)

var (
	codeNamesMu sync.RWMutex
	codeNames   = map[uint8]map[CompletionCode]string{
		TypeBase: {
			InvalidDataTransferHandle:       "invalid data transfer handle",
			InvalidTransferOperationFlag:    "invalid transfer operation flag",
			InvalidPldmTypeInRequestData:    "invalid PLDM type in request data",
			InvalidPldmVersionInRequestData: "invalid PLDM version in request data",
		},
	}
)

// RegisterCodeNames installs human-readable names for the type-specific
// completion codes (0x80 and above) of a PLDM type.
func RegisterCodeNames(pldmType uint8, names map[CompletionCode]string) {
	codeNamesMu.Lock()
	defer codeNamesMu.Unlock()

	m := codeNames[pldmType]
	if m == nil {
		m = make(map[CompletionCode]string, len(names))
		codeNames[pldmType] = m
	}
	for cc, name := range names {
		m[cc] = name
	}
}

// CodeName returns a human-readable name for a completion code of the given PLDM type.
func CodeName(pldmType uint8, cc CompletionCode) string {
	switch cc {
	case Success:
		return "success"
	case Error:
		return "error"
	case InvalidData:
		return "invalid data"
	case InvalidLength:
		return "invalid length"
	case NotReady:
		return "not ready"
	case UnsupportedCmd:
		return "unsupported command"
	case InvalidPldmType:
		return "invalid PLDM type"
	}

	codeNamesMu.RLock()
	name, ok := codeNames[pldmType][cc]
	codeNamesMu.RUnlock()
	if ok {
		return name
	}
	return fmt.Sprintf("unknown completion code 0x%02X", uint8(cc))
}

func (cc CompletionCode) String() string {
	return CodeName(TypeBase, cc)
}
