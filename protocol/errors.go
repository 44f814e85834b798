package protocol

import (
	"errors"
	"fmt"
)

// Codec errors. Every cursor move on a MessageBuf is bounds-checked and
// reports one of these instead of panicking.
var (
	// ErrBufferTooSmall is returned when the backing slice cannot hold the requested reservation
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrBufferOverflow is returned when writing past the end of the backing slice
	ErrBufferOverflow = errors.New("buffer overflow")

	// ErrBufferUnderflow is returned when reading or trimming past the valid data
	ErrBufferUnderflow = errors.New("buffer underflow")

	// ErrRead wraps failures while decoding a message payload
	ErrRead = errors.New("read error")

	// ErrWrite wraps failures while encoding a message payload
	ErrWrite = errors.New("write error")

	// ErrInvalidHeader is returned for headers with an unknown version or out of range fields
	ErrInvalidHeader = errors.New("invalid header")

	// ErrInvalidVersion is returned when a dotted version string or Ver32 cannot be converted
	ErrInvalidVersion = errors.New("invalid version")
)

// ProtocolError represents a non-success completion code returned by a PLDM responder.
type ProtocolError struct {
	// Operation is the command that failed
	Operation string

	// Type is the PLDM type of the command
	Type uint8

	// Code is the completion code from the response
	Code CompletionCode
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s failed: %s (0x%02X)", e.Operation, CodeName(e.Type, e.Code), uint8(e.Code))
}

// IsProtocolError returns true if err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// CheckCompletion returns a ProtocolError when cc is not Success.
func CheckCompletion(operation string, pldmType uint8, cc CompletionCode) error {
	if cc == Success {
		return nil
	}
	return &ProtocolError{Operation: operation, Type: pldmType, Code: cc}
}
