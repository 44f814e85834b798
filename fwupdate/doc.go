// Package fwupdate defines the PLDM firmware update message set (DMTF DSP0267):
// command and completion codes, the FD state and reason codes, descriptors,
// version strings and the request/response payloads exchanged between an
// update agent and a firmware device.
//
// Payloads implement protocol.Payload and are framed with protocol.EncodeMessage:
//
//	msg, err := protocol.EncodeMessage(
//	    protocol.NewRequestHeader(iid, protocol.TypeFirmwareUpdate, fwupdate.CmdRequestFirmwareData),
//	    fwupdate.RequestFirmwareDataRequest{Offset: 0, Length: 64},
//	)
//
// Variable-length strings travel as a type and length byte in the fixed part
// of a message, followed by the string data at the end of it. The length of
// FirmwareString.Data is what gets written.
package fwupdate
