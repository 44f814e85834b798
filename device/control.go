package device

import (
	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/protocol"
)

var (
	baseVersion     = protocol.MustParseVer32(protocol.BaseVersion)
	firmwareVersion = protocol.MustParseVer32(protocol.FirmwareUpdateVersion)

	baseCommands = protocol.NewCommandBitmap(
		protocol.CmdSetTID,
		protocol.CmdGetTID,
		protocol.CmdGetVersion,
		protocol.CmdGetTypes,
		protocol.CmdGetCommands,
	)
	firmwareCommands = protocol.NewCommandBitmap(fwupdate.DeviceCommands...)
)

// handleControl answers the PLDM messaging control and discovery commands.
// They are valid in every FD state and never touch the T1 timer.
func (fd *FD) handleControl(hdr protocol.Header, msg []byte) ([]byte, error) {
	switch hdr.Command {
	case protocol.CmdSetTID:
		var req protocol.SetTIDRequest
		if err := protocol.DecodePayload(msg, &req); err != nil {
			return fd.fail(hdr, protocol.InvalidLength)
		}
		if req.TID == protocol.TIDUnassigned || req.TID == 0xFF {
			return fd.fail(hdr, protocol.InvalidData)
		}
		fd.mu.Lock()
		fd.st.tid = req.TID
		fd.mu.Unlock()
		fd.config.Logger.Info("terminus ID assigned", "tid", req.TID)
		return fd.fail(hdr, protocol.Success)

	case protocol.CmdGetTID:
		return fd.respond(hdr, protocol.GetTIDResponse{
			CompletionCode: protocol.Success,
			TID:            fd.TID(),
		})

	case protocol.CmdGetTypes:
		var types protocol.TypeBitmap
		types.Set(protocol.TypeBase)
		types.Set(protocol.TypeFirmwareUpdate)
		return fd.respond(hdr, protocol.GetTypesResponse{
			CompletionCode: protocol.Success,
			Types:          types,
		})

	case protocol.CmdGetVersion:
		var req protocol.GetVersionRequest
		if err := protocol.DecodePayload(msg, &req); err != nil {
			return fd.fail(hdr, protocol.InvalidLength)
		}
		if req.Flag != protocol.GetFirstPart {
			return fd.fail(hdr, protocol.InvalidTransferOperationFlag)
		}
		var v protocol.Ver32
		switch req.Type {
		case protocol.TypeBase:
			v = baseVersion
		case protocol.TypeFirmwareUpdate:
			v = firmwareVersion
		default:
			return fd.fail(hdr, protocol.InvalidPldmTypeInRequestData)
		}
		return fd.respond(hdr, protocol.GetVersionResponse{
			CompletionCode: protocol.Success,
			Flag:           protocol.TransferStartAndEnd,
			Version:        v,
		})

	case protocol.CmdGetCommands:
		var req protocol.GetCommandsRequest
		if err := protocol.DecodePayload(msg, &req); err != nil {
			return fd.fail(hdr, protocol.InvalidLength)
		}
		var (
			want protocol.Ver32
			cmds protocol.CommandBitmap
		)
		switch req.Type {
		case protocol.TypeBase:
			want, cmds = baseVersion, baseCommands
		case protocol.TypeFirmwareUpdate:
			want, cmds = firmwareVersion, firmwareCommands
		default:
			return fd.fail(hdr, protocol.InvalidPldmTypeInRequestData)
		}
		if req.Version != want {
			return fd.fail(hdr, protocol.InvalidPldmVersionInRequestData)
		}
		return fd.respond(hdr, protocol.GetCommandsResponse{
			CompletionCode: protocol.Success,
			Commands:       cmds,
		})

	default:
		return fd.fail(hdr, protocol.UnsupportedCmd)
	}
}
