// Package protocol implements the PLDM base protocol (DMTF DSP0240) shared by
// firmware devices and update agents.
//
// # Message Layout
//
// Every PLDM message starts with a 3-byte header:
//
//	byte 0: [Rq][D][rsvd][InstanceID:5]
//	byte 1: [HdrVer:2][PLDMType:6]
//	byte 2: [Command]
//
// Multi-byte payload integers are little-endian. Version fields (Ver32) are
// BCD and travel most significant byte first.
//
// # Codec
//
// Messages are built over a MessageBuf. Payload structs append at the tail,
// the Header is pushed in front afterwards:
//
//	msg, err := protocol.EncodeMessage(
//	    protocol.NewRequestHeader(iid, protocol.TypeBase, protocol.CmdGetTID),
//	    protocol.Empty{},
//	)
//
// and decoding goes the other way:
//
//	var resp protocol.GetTIDResponse
//	hdr, err := protocol.DecodeMessage(msg, &resp)
//
// Response decoders stop after the completion code when it is not Success,
// matching responders that send only the code on failure.
//
// # Control Messages
//
// GetTID, SetTID, GetPLDMTypes, GetPLDMVersion and GetPLDMCommands are used
// by both sides during discovery. GetPLDMVersion always answers with one
// StartAndEnd part.
//
// # Errors
//
// Codec failures wrap ErrBufferTooSmall, ErrBufferOverflow, ErrBufferUnderflow,
// ErrRead, ErrWrite or ErrInvalidHeader. Non-success completion codes are
// reported as *ProtocolError:
//
//	if err := protocol.CheckCompletion("get tid", protocol.TypeBase, resp.CompletionCode); err != nil {
//	    // err.Error() returns: "get tid failed: not ready (0x04)"
//	}
package protocol
